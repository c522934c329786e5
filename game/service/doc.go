// Package service is the command layer of the tank tactics engine.
//
// GameService is what every transport (HTTP, WebSocket, MCP) talks to. Each
// command runs as exactly one store unit of work:
//
//	transport ─▶ GameService ─▶ Store.Within ─▶ lifecycle / combat ─▶ ledger
//	                  │
//	                  └─ after commit: publish event, arm or cancel scheduler
//
// Actions (walk, attack, gift, range) require a started game and fail with
// engine.ErrWrongPhase otherwise. Attacks and departures are followed by the
// game-over check in the same unit of work; a finished game is ended, its
// point timer cancelled and an end event published.
//
// Usage:
//
//	svc := service.NewGameService(service.Deps{
//		Store:     st,
//		Lifecycle: lifecycle.New(l),
//		Combat:    combat.New(l),
//		Scheduler: sched,
//		Bus:       bus,
//	})
//	g, err := svc.CreateGame(ctx, "alice", service.CreateOptions{})
//
// Failures are *engine.Error values; use engine.KindOf to map them onto a
// transport status.
package service
