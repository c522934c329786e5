package service

import (
	"context"
	"time"

	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Game Management
	CreateGame(ctx context.Context, creator string, opts CreateOptions) (*engine.Game, error)
	GetGame(ctx context.Context, gameID string) (*engine.Game, error)
	ViewGame(ctx context.Context, gameID, viewer string) (*GameView, error)
	ListGames(ctx context.Context, phases ...engine.Phase) ([]*GameSummary, error)

	// Setup
	AddPlayer(ctx context.Context, gameID, actor, userID string) (*engine.Player, error)
	RemovePlayer(ctx context.Context, gameID, actor, userID string) error
	SetMode(ctx context.Context, gameID, actor string, mode engine.Mode) (*engine.Game, error)
	SetPointInterval(ctx context.Context, gameID, actor string, interval time.Duration) (*engine.Game, error)
	SetTeam(ctx context.Context, gameID, actor, userID, team string) (*engine.Player, error)
	FinishSetup(ctx context.Context, gameID, actor string) (*engine.Game, error)

	// Lifecycle
	Start(ctx context.Context, gameID, actor string) (*engine.Game, error)
	ForceEnd(ctx context.Context, gameID, actor string) (*engine.Game, error)
	Leave(ctx context.Context, gameID, userID string) (*LeaveResult, error)
	PlayAgain(ctx context.Context, gameID, actor string) (*engine.Game, error)

	// Actions
	Walk(ctx context.Context, gameID, userID string, dir engine.Direction, steps int) (*combat.WalkResult, error)
	Attack(ctx context.Context, gameID, userID, targetID string) (*AttackOutcome, error)
	Gift(ctx context.Context, gameID, userID, targetID string, amount int) (*GiftOutcome, error)
	IncreaseRange(ctx context.Context, gameID, userID string) (*combat.RangeResult, error)

	// Views
	Board(ctx context.Context, gameID string) (*engine.Board, error)
	PlayerStats(ctx context.Context, gameID, viewer string) ([]PlayerStats, error)
	PlayersInRange(ctx context.Context, gameID, userID string) ([]engine.BoardPlayer, error)
	Logs(ctx context.Context, gameID, viewer string, limit int) ([]engine.LogEntry, error)

	// Resume re-arms point grants for running games after a restart
	Resume(ctx context.Context) (int, error)
}

// CreateOptions are the optional settings of a new game
type CreateOptions struct {
	Mode          engine.Mode   `json:"mode,omitempty"`
	PointInterval time.Duration `json:"point_interval,omitempty"`
}
