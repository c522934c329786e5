// Package store defines the unit-of-work persistence boundary for games,
// players and audit logs.
//
// Every command runs inside Store.Within. The Tx handed to the callback sees
// its own writes, and nothing it did is visible to other callers until the
// callback returns nil. Implementations live in the memory and sqlstore
// subpackages.
package store

import (
	"context"
	"errors"

	"github.com/wricardo/tank-tactics/game/engine"
)

var (
	// ErrNotFound is returned when a game or player row does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a player was written by someone else
	// since it was read
	ErrConflict = errors.New("store: version conflict")
)

// TxFunc is the body of a unit of work
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the persistence layer consumed by the game engine
type Store interface {
	// Within runs fn in one transaction, committing when fn returns nil
	Within(ctx context.Context, fn TxFunc) error

	// Game loads a committed game with its roster
	Game(ctx context.Context, id string) (*engine.Game, error)

	// Games lists committed games, optionally filtered by phase
	Games(ctx context.Context, phases ...engine.Phase) ([]*engine.Game, error)

	// Logs returns the newest limit entries of a game in append order;
	// limit <= 0 returns every entry
	Logs(ctx context.Context, gameID string, limit int) ([]engine.LogEntry, error)

	Close() error
}

// Tx is the view of the store inside a unit of work
type Tx interface {
	// Game loads a game and its roster, locking it for the rest of the unit
	// of work where the backend supports row locks
	Game(ctx context.Context, id string) (*engine.Game, error)

	// InsertGame writes a new game and every player in its roster
	InsertGame(ctx context.Context, g *engine.Game) error

	// UpdateGame writes the game row; players are written separately
	UpdateGame(ctx context.Context, g *engine.Game) error

	InsertPlayer(ctx context.Context, p *engine.Player) error

	// UpdatePlayer writes p if the stored version still equals p.Version,
	// then bumps p.Version. A stale version yields ErrConflict.
	UpdatePlayer(ctx context.Context, p *engine.Player) error

	DeletePlayer(ctx context.Context, gameID, playerID string) error

	// AppendLog stores e and returns it with its assigned id
	AppendLog(ctx context.Context, e engine.LogEntry) (engine.LogEntry, error)
}

// MatchPhase reports whether phase is in phases; an empty filter matches all
func MatchPhase(phase engine.Phase, phases []engine.Phase) bool {
	if len(phases) == 0 {
		return true
	}
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}
