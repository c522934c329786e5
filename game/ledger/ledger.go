// Package ledger applies single-player stat changes inside a store
// transaction, pairing every change with an audit log entry.
//
// Operations read the player from the game loaded in the current unit of
// work, write it back with a version check and then update that game in
// place, so later steps of the same command see the new values.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store"
)

// PointsChange is the payload of point_add and point_subtract entries
type PointsChange struct {
	Player    string `json:"player"`
	Amount    int    `json:"amount"`
	OldPoints int    `json:"old_points"`
	NewPoints int    `json:"new_points"`
}

// LivesChange is the payload of life_add and life_remove entries
type LivesChange struct {
	Player   string `json:"player"`
	OldLives int    `json:"old_lives"`
	NewLives int    `json:"new_lives"`
}

// RangeChange is the payload of range_increase entries
type RangeChange struct {
	Player   string `json:"player"`
	Cost     int    `json:"cost"`
	OldRange int    `json:"old_range"`
	NewRange int    `json:"new_range"`
}

// Kill is the payload of kill entries
type Kill struct {
	Player       string `json:"player"`
	KilledPlayer string `json:"killed_player"`
	Kills        int    `json:"kills"`
}

// WalkStep is the payload of walk entries, one per cell entered
type WalkStep struct {
	Player    string           `json:"player"`
	Direction engine.Direction `json:"direction"`
	OldX      int              `json:"old_x"`
	OldY      int              `json:"old_y"`
	NewX      int              `json:"new_x"`
	NewY      int              `json:"new_y"`
}

// Grant is the payload of ap_granted entries
type Grant struct {
	Amount  int      `json:"amount"`
	Players []string `json:"players"`
}

// Leave is the payload of leave entries
type Leave struct {
	Player string `json:"player"`
	Lives  int    `json:"lives"`
	Points int    `json:"points"`
}

// Ledger performs audited player mutations
type Ledger struct {
	now func() time.Time
}

// New creates a ledger stamping entries with now
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Log appends an entry of type typ to the game's audit log
func (l *Ledger) Log(ctx context.Context, tx store.Tx, gameID string, typ engine.LogType, payload any) (engine.LogEntry, error) {
	entry, err := engine.NewLogEntry(gameID, typ, payload, l.now().UTC())
	if err != nil {
		return engine.LogEntry{}, fmt.Errorf("encode %s log: %w", typ, err)
	}
	entry, err = tx.AppendLog(ctx, entry)
	if err != nil {
		return engine.LogEntry{}, fmt.Errorf("append %s log: %w", typ, err)
	}
	return entry, nil
}

// mutation changes a copy of the player and returns the log payload
type mutation func(p *engine.Player) (any, error)

// apply is the shared write path: mutate a copy, compare-and-swap it into
// the store, log, then refresh the in-memory game
func (l *Ledger) apply(ctx context.Context, tx store.Tx, g *engine.Game, userID string, typ engine.LogType, fn mutation) (*engine.Player, error) {
	current := g.Player(userID)
	if current == nil {
		return nil, engine.ErrPlayerNotFound
	}
	next := current.Clone()
	payload, err := fn(next)
	if err != nil {
		return nil, err
	}
	if err := write(ctx, tx, next); err != nil {
		return nil, err
	}
	if _, err := l.Log(ctx, tx, g.ID, typ, payload); err != nil {
		return nil, err
	}
	g.Replace(next)
	return next.Clone(), nil
}

func write(ctx context.Context, tx store.Tx, p *engine.Player) error {
	if err := tx.UpdatePlayer(ctx, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.ErrPlayerNotFound
		}
		return fmt.Errorf("update player %s: %w", p.UserID, err)
	}
	return nil
}

// AddPoints credits n points
func (l *Ledger) AddPoints(ctx context.Context, tx store.Tx, g *engine.Game, userID string, n int) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogPointAdd, func(p *engine.Player) (any, error) {
		if n < 0 {
			return nil, engine.ErrInvalidAmount
		}
		old := p.Points
		p.Points += n
		return PointsChange{Player: userID, Amount: n, OldPoints: old, NewPoints: p.Points}, nil
	})
}

// SubtractPoints debits n points, failing when the player has fewer
func (l *Ledger) SubtractPoints(ctx context.Context, tx store.Tx, g *engine.Game, userID string, n int) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogPointSubtract, func(p *engine.Player) (any, error) {
		if n < 0 {
			return nil, engine.ErrInvalidAmount
		}
		if p.Points < n {
			return nil, engine.ErrInsufficientPoints
		}
		old := p.Points
		p.Points -= n
		return PointsChange{Player: userID, Amount: n, OldPoints: old, NewPoints: p.Points}, nil
	})
}

// AddLife grants one life
func (l *Ledger) AddLife(ctx context.Context, tx store.Tx, g *engine.Game, userID string) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogLifeAdd, func(p *engine.Player) (any, error) {
		old := p.Lives
		p.Lives++
		return LivesChange{Player: userID, OldLives: old, NewLives: p.Lives}, nil
	})
}

// RemoveLife takes one life, failing when none are left
func (l *Ledger) RemoveLife(ctx context.Context, tx store.Tx, g *engine.Game, userID string) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogLifeRemove, func(p *engine.Player) (any, error) {
		if p.Lives < 1 {
			return nil, engine.ErrNoLivesLeft
		}
		old := p.Lives
		p.Lives--
		return LivesChange{Player: userID, OldLives: old, NewLives: p.Lives}, nil
	})
}

// IncreaseRange buys one range for engine.RangeCost points
func (l *Ledger) IncreaseRange(ctx context.Context, tx store.Tx, g *engine.Game, userID string) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogRangeIncrease, func(p *engine.Player) (any, error) {
		if p.Points < engine.RangeCost {
			return nil, engine.ErrInsufficientPoints
		}
		old := p.Range
		p.Points -= engine.RangeCost
		p.Range++
		return RangeChange{Player: userID, Cost: engine.RangeCost, OldRange: old, NewRange: p.Range}, nil
	})
}

// AddKill records that userID killed victim
func (l *Ledger) AddKill(ctx context.Context, tx store.Tx, g *engine.Game, userID, victim string) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogKill, func(p *engine.Player) (any, error) {
		p.Kills++
		return Kill{Player: userID, KilledPlayer: victim, Kills: p.Kills}, nil
	})
}

// Move puts the player at the end of path and charges engine.WalkCost per
// cell. Each cell entered gets its own walk entry.
func (l *Ledger) Move(ctx context.Context, tx store.Tx, g *engine.Game, userID string, dir engine.Direction, path []engine.Position) (*engine.Player, error) {
	current := g.Player(userID)
	if current == nil {
		return nil, engine.ErrPlayerNotFound
	}
	if len(path) == 0 {
		return current.Clone(), nil
	}
	cost := len(path) * engine.WalkCost
	if current.Points < cost {
		return nil, engine.ErrInsufficientPoints
	}

	next := current.Clone()
	next.Position = path[len(path)-1]
	next.Points -= cost
	if err := write(ctx, tx, next); err != nil {
		return nil, err
	}

	from := current.Position
	for _, to := range path {
		step := WalkStep{Player: userID, Direction: dir, OldX: from.X, OldY: from.Y, NewX: to.X, NewY: to.Y}
		if _, err := l.Log(ctx, tx, g.ID, engine.LogWalk, step); err != nil {
			return nil, err
		}
		from = to
	}
	g.Replace(next)
	return next.Clone(), nil
}

// Vacate removes a leaving player from play: no lives and no cell
func (l *Ledger) Vacate(ctx context.Context, tx store.Tx, g *engine.Game, userID string) (*engine.Player, error) {
	return l.apply(ctx, tx, g, userID, engine.LogLeave, func(p *engine.Player) (any, error) {
		payload := Leave{Player: userID, Lives: p.Lives, Points: p.Points}
		p.Lives = 0
		p.Position = engine.Unplaced
		return payload, nil
	})
}

// GrantAll credits n points to every living player under a single
// ap_granted entry
func (l *Ledger) GrantAll(ctx context.Context, tx store.Tx, g *engine.Game, n int) ([]*engine.Player, error) {
	if n < 0 {
		return nil, engine.ErrInvalidAmount
	}
	var granted []*engine.Player
	for _, p := range g.Living() {
		next := p.Clone()
		next.Points += n
		if err := write(ctx, tx, next); err != nil {
			return nil, err
		}
		g.Replace(next)
		granted = append(granted, next.Clone())
	}
	if _, err := l.Log(ctx, tx, g.ID, engine.LogAPGranted, Grant{Amount: n, Players: engine.UserIDs(granted)}); err != nil {
		return nil, err
	}
	return granted, nil
}
