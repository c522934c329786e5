// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store"
)

// Factory opens a fresh, empty store for one subtest
type Factory func(t *testing.T) store.Store

// NewGame builds a setup game owned by owner with the given extra users
func NewGame(owner string, users ...string) *engine.Game {
	id := uuid.NewString()
	g := &engine.Game{
		ID:            id,
		Phase:         engine.PhaseSetup,
		Mode:          engine.ModeFFA,
		PointInterval: time.Minute,
		CreatedBy:     owner,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	for i, u := range append([]string{owner}, users...) {
		g.Players = append(g.Players, &engine.Player{
			ID:       uuid.NewString(),
			GameID:   id,
			UserID:   u,
			Seat:     i,
			Position: engine.Unplaced,
			Lives:    engine.DefaultLives,
			Points:   engine.DefaultPoints,
			Range:    engine.DefaultRange,
			Color:    engine.UnsetColor,
		})
	}
	return g
}

// Insert commits g in its own unit of work
func Insert(t *testing.T, s store.Store, g *engine.Game) {
	t.Helper()
	err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertGame(ctx, g)
	})
	require.NoError(t, err)
}

// Run exercises the store contract against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndLoad", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice", "bob")
		Insert(t, s, g)

		got, err := s.Game(context.Background(), g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.ID, got.ID)
		assert.Equal(t, engine.PhaseSetup, got.Phase)
		assert.Equal(t, time.Minute, got.PointInterval)
		assert.Nil(t, got.NextPointAt)
		require.Len(t, got.Players, 2)
		assert.Equal(t, "alice", got.Players[0].UserID)
		assert.Equal(t, "bob", got.Players[1].UserID)
		assert.Equal(t, engine.Unplaced, got.Players[1].Position)
		assert.True(t, g.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("MissingGame", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Game(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, err := tx.Game(ctx, uuid.NewString())
			return err
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice", "bob")
		Insert(t, s, g)

		boom := errors.New("boom")
		err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			loaded, err := tx.Game(ctx, g.ID)
			if err != nil {
				return err
			}
			p := loaded.Players[0]
			p.Points = 50
			if err := tx.UpdatePlayer(ctx, p); err != nil {
				return err
			}
			loaded.Phase = engine.PhaseEnded
			if err := tx.UpdateGame(ctx, loaded); err != nil {
				return err
			}
			if _, err := tx.AppendLog(ctx, mustLog(t, g.ID)); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.Game(context.Background(), g.ID)
		require.NoError(t, err)
		assert.Equal(t, engine.PhaseSetup, got.Phase)
		assert.Equal(t, engine.DefaultPoints, got.Players[0].Points)
		logs, err := s.Logs(context.Background(), g.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("UpdateGameAndPlayers", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice", "bob")
		Insert(t, s, g)

		next := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
		err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			loaded, err := tx.Game(ctx, g.ID)
			if err != nil {
				return err
			}
			loaded.Phase = engine.PhaseStarted
			loaded.Width, loaded.Height = 10, 6
			loaded.Mode = engine.ModeTeam
			loaded.NextPointAt = &next
			if err := tx.UpdateGame(ctx, loaded); err != nil {
				return err
			}
			p := loaded.Players[1]
			p.Position = engine.Position{X: 3, Y: 4}
			p.Points = 7
			p.Kills = 2
			p.Team = "red"
			p.Color = "#ffffff"
			return tx.UpdatePlayer(ctx, p)
		})
		require.NoError(t, err)

		got, err := s.Game(context.Background(), g.ID)
		require.NoError(t, err)
		assert.Equal(t, engine.PhaseStarted, got.Phase)
		assert.Equal(t, engine.ModeTeam, got.Mode)
		assert.Equal(t, 10, got.Width)
		assert.Equal(t, 6, got.Height)
		require.NotNil(t, got.NextPointAt)
		assert.True(t, next.Equal(*got.NextPointAt))
		require.Len(t, got.Players, 2, "updating the game keeps its roster")

		bob := got.Player("bob")
		require.NotNil(t, bob)
		assert.Equal(t, engine.Position{X: 3, Y: 4}, bob.Position)
		assert.Equal(t, 7, bob.Points)
		assert.Equal(t, 2, bob.Kills)
		assert.Equal(t, "red", bob.Team)
		assert.Equal(t, "#ffffff", bob.Color)
		assert.Equal(t, 1, bob.Version)
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice", "bob")
		Insert(t, s, g)

		err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			loaded, err := tx.Game(ctx, g.ID)
			if err != nil {
				return err
			}
			first := loaded.Players[0].Clone()
			stale := loaded.Players[0].Clone()
			first.Points = 3
			if err := tx.UpdatePlayer(ctx, first); err != nil {
				return err
			}
			stale.Points = 9
			return tx.UpdatePlayer(ctx, stale)
		})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("ConcurrentUnitsOfWork", func(t *testing.T) {
		s := newStore(t)
		const rounds = 16
		g := Started(NewGame("alice", "bob"), 10, 6, engine.Position{X: 0, Y: 0}, engine.Position{X: 1, Y: 1})
		g.Player("alice").Points = rounds
		g.Player("bob").Lives = rounds + 1
		Insert(t, s, g)

		update := func(change func(loaded *engine.Game) []*engine.Player) func() error {
			return func() error {
				return s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
					loaded, err := tx.Game(ctx, g.ID)
					if err != nil {
						return err
					}
					for _, p := range change(loaded) {
						if err := tx.UpdatePlayer(ctx, p); err != nil {
							return err
						}
					}
					e, err := engine.NewLogEntry(g.ID, engine.LogInfo, map[string]string{"message": "round"}, time.Now().UTC())
					if err != nil {
						return err
					}
					_, err = tx.AppendLog(ctx, e)
					return err
				})
			}
		}
		// a point for every living tank, like a grant tick
		grant := func(loaded *engine.Game) []*engine.Player {
			living := loaded.Living()
			for _, p := range living {
				p.Points++
			}
			return living
		}
		// alice spends a point to take one of bob's lives, like an attack
		hit := func(loaded *engine.Game) []*engine.Player {
			alice, bob := loaded.Player("alice"), loaded.Player("bob")
			alice.Points--
			bob.Lives--
			return []*engine.Player{alice, bob}
		}

		var eg errgroup.Group
		for i := 0; i < rounds; i++ {
			eg.Go(update(grant))
			eg.Go(update(hit))
		}
		require.NoError(t, eg.Wait())

		got, err := s.Game(context.Background(), g.ID)
		require.NoError(t, err)
		assert.Equal(t, rounds, got.Player("alice").Points, "grants minus attack costs")
		assert.Equal(t, engine.DefaultPoints+rounds, got.Player("bob").Points)
		assert.Equal(t, 1, got.Player("bob").Lives, "every hit landed once")
		assert.Equal(t, 2*rounds, got.Player("alice").Version)

		logs, err := s.Logs(context.Background(), g.ID, 0)
		require.NoError(t, err)
		require.Len(t, logs, 2*rounds)
		for i := 1; i < len(logs); i++ {
			assert.Greater(t, logs[i].ID, logs[i-1].ID)
		}
	})

	t.Run("InsertAndDeletePlayer", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice", "bob")
		Insert(t, s, g)

		carol := NewGame("carol").Players[0]
		carol.GameID = g.ID
		carol.Seat = 2
		err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if err := tx.InsertPlayer(ctx, carol); err != nil {
				return err
			}
			return tx.DeletePlayer(ctx, g.ID, g.Players[1].ID)
		})
		require.NoError(t, err)

		got, err := s.Game(context.Background(), g.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "carol"}, engine.UserIDs(got.Players))

		err = s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			return tx.DeletePlayer(ctx, g.ID, uuid.NewString())
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DuplicateUserRejected", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice")
		Insert(t, s, g)

		dup := NewGame("alice").Players[0]
		dup.GameID = g.ID
		err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
			return tx.InsertPlayer(ctx, dup)
		})
		assert.Error(t, err)
	})

	t.Run("GamesFilterByPhase", func(t *testing.T) {
		s := newStore(t)
		setup := NewGame("alice")
		started := NewGame("bob")
		started.Phase = engine.PhaseStarted
		started.CreatedAt = setup.CreatedAt.Add(time.Second)
		Insert(t, s, setup)
		Insert(t, s, started)

		// stores may be shared with other runs, so only look at our games
		ours := func(games []*engine.Game) []*engine.Game {
			var out []*engine.Game
			for _, g := range games {
				if g.ID == setup.ID || g.ID == started.ID {
					out = append(out, g)
				}
			}
			return out
		}

		all, err := s.Games(context.Background())
		require.NoError(t, err)
		all = ours(all)
		require.Len(t, all, 2)
		assert.Equal(t, setup.ID, all[0].ID)

		running, err := s.Games(context.Background(), engine.PhaseStarted)
		require.NoError(t, err)
		running = ours(running)
		require.Len(t, running, 1)
		assert.Equal(t, started.ID, running[0].ID)
		assert.Len(t, running[0].Players, 1)
	})

	t.Run("LogsAppendInOrder", func(t *testing.T) {
		s := newStore(t)
		g := NewGame("alice")
		Insert(t, s, g)

		var ids []int64
		for i := 0; i < 3; i++ {
			err := s.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
				e, err := tx.AppendLog(ctx, mustLog(t, g.ID))
				ids = append(ids, e.ID)
				return err
			})
			require.NoError(t, err)
		}
		assert.Less(t, ids[0], ids[1])
		assert.Less(t, ids[1], ids[2])

		logs, err := s.Logs(context.Background(), g.ID, 0)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, ids[0], logs[0].ID)
		assert.Equal(t, engine.LogInfo, logs[0].Type)
		assert.JSONEq(t, `{"message":"hello"}`, string(logs[0].Payload))

		latest, err := s.Logs(context.Background(), g.ID, 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, ids[1], latest[0].ID)
		assert.Equal(t, ids[2], latest[1].ID)
	})
}

func mustLog(t *testing.T, gameID string) engine.LogEntry {
	t.Helper()
	e, err := engine.NewLogEntry(gameID, engine.LogInfo, map[string]string{"message": "hello"}, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, err)
	return e
}

// Started turns g into a running width x height game, placing its players
// on cells in seat order and giving each a distinct color
func Started(g *engine.Game, width, height int, cells ...engine.Position) *engine.Game {
	g.Phase = engine.PhaseStarted
	g.Width, g.Height = width, height
	for i, p := range g.Players {
		if i < len(cells) {
			p.Position = cells[i]
		}
		p.Color = engine.Palette[i%len(engine.Palette)]
	}
	return g
}
