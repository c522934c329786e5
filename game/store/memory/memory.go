// Package memory provides an in-process implementation of store.Store.
//
// Units of work are serialised by a store-wide mutex. Each one works on
// copies of the games it touches, which replace the committed games only
// when the callback succeeds. An optional JSON snapshot file keeps state
// across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store"
)

// Store keeps games and logs in memory
type Store struct {
	mu        sync.RWMutex
	games     map[string]*engine.Game
	logs      map[string][]engine.LogEntry
	nextLogID int64
	snapshot  *Snapshot
	log       logrus.FieldLogger
}

// Option configures a Store
type Option func(*Store)

// WithSnapshot persists the store to a JSON file after every commit and
// restores it on open
func WithSnapshot(s *Snapshot) Option {
	return func(st *Store) { st.snapshot = s }
}

// WithLogger sets the logger used for snapshot warnings
func WithLogger(l logrus.FieldLogger) Option {
	return func(st *Store) { st.log = l }
}

// New creates an empty store, loading the snapshot when one is configured
func New(opts ...Option) (*Store, error) {
	s := &Store{
		games: make(map[string]*engine.Game),
		logs:  make(map[string][]engine.LogEntry),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshot != nil {
		state, err := s.snapshot.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		if state != nil {
			for _, g := range state.Games {
				s.games[g.ID] = g
			}
			for id, entries := range state.Logs {
				s.logs[id] = entries
			}
			s.nextLogID = state.NextLogID
			s.log.WithField("games", len(s.games)).Info("restored snapshot")
		}
	}
	return s, nil
}

// Within runs fn while holding the store lock. fn must not call back into
// the Store's own read methods.
func (s *Store) Within(ctx context.Context, fn store.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:         s,
		games:     make(map[string]*engine.Game),
		nextLogID: s.nextLogID,
	}
	if err := fn(ctx, t); err != nil {
		return err
	}

	for id, g := range t.games {
		if g == nil {
			continue
		}
		s.games[id] = g
	}
	for _, e := range t.logs {
		s.logs[e.GameID] = append(s.logs[e.GameID], e)
	}
	s.nextLogID = t.nextLogID

	if s.snapshot != nil {
		if err := s.snapshot.Save(s.state()); err != nil {
			// The commit already happened in memory
			s.log.WithError(err).Warn("failed to write snapshot")
		}
	}
	return nil
}

// Game returns a copy of a committed game
func (s *Store) Game(ctx context.Context, id string) (*engine.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g.Clone(), nil
}

// Games lists committed games oldest first
func (s *Store) Games(ctx context.Context, phases ...engine.Phase) ([]*engine.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*engine.Game, 0, len(s.games))
	for _, g := range s.games {
		if store.MatchPhase(g.Phase, phases) {
			result = append(result, g.Clone())
		}
	}
	sortGames(result)
	return result, nil
}

// Logs returns the newest limit entries of a game
func (s *Store) Logs(ctx context.Context, gameID string, limit int) ([]engine.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[gameID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]engine.LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Close writes a final snapshot
func (s *Store) Close() error {
	if s.snapshot == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Save(s.state())
}

func (s *Store) state() *State {
	st := &State{
		Games:     make([]*engine.Game, 0, len(s.games)),
		Logs:      s.logs,
		NextLogID: s.nextLogID,
	}
	for _, g := range s.games {
		st.Games = append(st.Games, g)
	}
	sortGames(st.Games)
	return st
}

func sortGames(games []*engine.Game) {
	sort.Slice(games, func(i, j int) bool {
		if games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].ID < games[j].ID
		}
		return games[i].CreatedAt.Before(games[j].CreatedAt)
	})
}

// tx is a copy-on-write view over the committed games
type tx struct {
	s         *Store
	games     map[string]*engine.Game
	logs      []engine.LogEntry
	nextLogID int64
}

func (t *tx) working(id string) (*engine.Game, error) {
	if g, ok := t.games[id]; ok {
		return g, nil
	}
	g, ok := t.s.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := g.Clone()
	t.games[id] = c
	return c, nil
}

func (t *tx) Game(ctx context.Context, id string) (*engine.Game, error) {
	g, err := t.working(id)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

func (t *tx) InsertGame(ctx context.Context, g *engine.Game) error {
	if _, err := t.working(g.ID); err == nil {
		return fmt.Errorf("game %s already exists", g.ID)
	}
	t.games[g.ID] = g.Clone()
	return nil
}

func (t *tx) UpdateGame(ctx context.Context, g *engine.Game) error {
	w, err := t.working(g.ID)
	if err != nil {
		return err
	}
	players := w.Players
	*w = *g.Clone()
	w.Players = players
	return nil
}

func (t *tx) InsertPlayer(ctx context.Context, p *engine.Player) error {
	w, err := t.working(p.GameID)
	if err != nil {
		return err
	}
	for _, existing := range w.Players {
		if existing.ID == p.ID || existing.UserID == p.UserID {
			return fmt.Errorf("player %s already in game %s", p.UserID, p.GameID)
		}
	}
	w.Players = append(w.Players, p.Clone())
	return nil
}

func (t *tx) UpdatePlayer(ctx context.Context, p *engine.Player) error {
	w, err := t.working(p.GameID)
	if err != nil {
		return err
	}
	for i, existing := range w.Players {
		if existing.ID != p.ID {
			continue
		}
		if existing.Version != p.Version {
			return store.ErrConflict
		}
		p.Version++
		w.Players[i] = p.Clone()
		return nil
	}
	return store.ErrNotFound
}

func (t *tx) DeletePlayer(ctx context.Context, gameID, playerID string) error {
	w, err := t.working(gameID)
	if err != nil {
		return err
	}
	for i, existing := range w.Players {
		if existing.ID == playerID {
			w.Players = append(w.Players[:i], w.Players[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *tx) AppendLog(ctx context.Context, e engine.LogEntry) (engine.LogEntry, error) {
	if _, err := t.working(e.GameID); err != nil {
		return engine.LogEntry{}, err
	}
	t.nextLogID++
	e.ID = t.nextLogID
	t.logs = append(t.logs, e)
	return e, nil
}
