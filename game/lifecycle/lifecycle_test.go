package lifecycle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/store"
	"github.com/wricardo/tank-tactics/game/store/memory"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store *memory.Store
	m     *Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	s, err := memory.New()
	require.NoError(t, err)
	now := func() time.Time { return epoch }
	base := []Option{WithClock(now), WithRand(rand.New(rand.NewPCG(1, 1)))}
	return &harness{store: s, m: New(ledger.New(now), append(base, opts...)...)}
}

// in runs fn against gameID in one unit of work
func (h *harness) in(t *testing.T, gameID string, fn func(ctx context.Context, tx store.Tx, g *engine.Game) error) error {
	t.Helper()
	return h.store.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
		g, err := tx.Game(ctx, gameID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, g)
	})
}

func (h *harness) create(t *testing.T, owner string, users ...string) *engine.Game {
	t.Helper()
	var g *engine.Game
	err := h.store.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		g, err = h.m.CreateSetupGame(ctx, tx, owner, engine.ModeFFA, time.Minute)
		if err != nil {
			return err
		}
		for _, u := range users {
			if _, err := h.m.AddPlayer(ctx, tx, g, owner, u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return g
}

func (h *harness) load(t *testing.T, id string) *engine.Game {
	t.Helper()
	g, err := h.store.Game(context.Background(), id)
	require.NoError(t, err)
	return g
}

// started creates a running game with the given players
func (h *harness) started(t *testing.T, owner string, users ...string) *engine.Game {
	t.Helper()
	g := h.create(t, owner, users...)
	require.NoError(t, h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		if err := h.m.FinishSetup(ctx, tx, g, owner); err != nil {
			return err
		}
		return h.m.Start(ctx, tx, g, owner)
	}))
	return h.load(t, g.ID)
}

func TestCreateSetupGame(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "alice")

	got := h.load(t, g.ID)
	assert.Equal(t, engine.PhaseSetup, got.Phase)
	assert.Equal(t, 0, got.Width)
	assert.Equal(t, 0, got.Height)
	assert.Equal(t, "alice", got.CreatedBy)
	assert.Equal(t, epoch, got.CreatedAt)
	require.Len(t, got.Players, 1)

	p := got.Players[0]
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, engine.Unplaced, p.Position)
	assert.Equal(t, 3, p.Lives)
	assert.Equal(t, 1, p.Points)
	assert.Equal(t, 2, p.Range)
	assert.Equal(t, engine.UnsetColor, p.Color)
}

func TestCreateSetupGameValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name     string
		creator  string
		mode     engine.Mode
		interval time.Duration
		want     error
	}{
		{"no creator", "", engine.ModeFFA, time.Minute, engine.ErrMissingUser},
		{"bad mode", "alice", engine.Mode("royale"), time.Minute, engine.ErrInvalidMode},
		{"zero interval", "alice", engine.ModeFFA, 0, engine.ErrInvalidPointInterval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.store.Within(context.Background(), func(ctx context.Context, tx store.Tx) error {
				_, err := h.m.CreateSetupGame(ctx, tx, tc.creator, tc.mode, tc.interval)
				return err
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRoster(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "alice", "bob")

	add := func(actor, user string) error {
		return h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
			_, err := h.m.AddPlayer(ctx, tx, g, actor, user)
			return err
		})
	}
	remove := func(actor, user string) error {
		return h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
			return h.m.RemovePlayer(ctx, tx, g, actor, user)
		})
	}

	assert.ErrorIs(t, add("bob", "carol"), engine.ErrNotOwner)
	assert.ErrorIs(t, add("alice", "bob"), engine.ErrAlreadyInGame)
	assert.Equal(t, engine.KindInvalidState, engine.KindOf(add("alice", "bob")))

	err := remove("alice", "bob")
	require.ErrorIs(t, err, engine.ErrRosterMinimum)
	assert.Equal(t, engine.KindInvalidState, engine.KindOf(err))

	require.NoError(t, add("alice", "carol"))
	assert.ErrorIs(t, remove("alice", "mallory"), engine.ErrPlayerNotFound)
	assert.ErrorIs(t, remove("carol", "bob"), engine.ErrNotOwner)
	require.NoError(t, remove("alice", "bob"))

	got := h.load(t, g.ID)
	assert.Equal(t, []string{"alice", "carol"}, engine.UserIDs(got.Players))
	assert.Equal(t, 2, got.Players[1].Seat)
}

func TestRosterFull(t *testing.T) {
	h := newHarness(t, WithRules(Rules{MaxPlayers: 3, StartLives: 3, StartPoints: 1, StartRange: 2}))
	g := h.create(t, "alice", "bob", "carol")

	err := h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		_, err := h.m.AddPlayer(ctx, tx, g, "alice", "dave")
		return err
	})
	require.ErrorIs(t, err, engine.ErrRosterFull)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))
}

func TestSettingsOnlyInSetup(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "alice", "bob")

	require.NoError(t, h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		if err := h.m.SetMode(ctx, tx, g, "alice", engine.ModeTeam); err != nil {
			return err
		}
		if err := h.m.SetPointInterval(ctx, tx, g, "alice", 2*time.Hour); err != nil {
			return err
		}
		_, err := h.m.SetTeam(ctx, tx, g, "alice", "bob", "blue")
		return err
	}))

	got := h.load(t, g.ID)
	assert.Equal(t, engine.ModeTeam, got.Mode)
	assert.Equal(t, 2*time.Hour, got.PointInterval)
	assert.Equal(t, "blue", got.Player("bob").Team)

	err := h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return h.m.SetPointInterval(ctx, tx, g, "alice", -time.Second)
	})
	assert.ErrorIs(t, err, engine.ErrInvalidPointInterval)

	err = h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return h.m.SetMode(ctx, tx, g, "bob", engine.ModeHidden)
	})
	assert.ErrorIs(t, err, engine.ErrNotOwner)

	started := h.started(t, "carol", "dave")
	err = h.in(t, started.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return h.m.SetMode(ctx, tx, g, "carol", engine.ModeHidden)
	})
	assert.ErrorIs(t, err, engine.ErrWrongPhase)
}

func TestFinishSetupPlacesEveryone(t *testing.T) {
	h := newHarness(t)
	users := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		users = append(users, fmt.Sprintf("user-%d", i))
	}
	g := h.create(t, "owner", users...)

	require.NoError(t, h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return h.m.FinishSetup(ctx, tx, g, "owner")
	}))

	got := h.load(t, g.ID)
	assert.Equal(t, engine.PhaseStarting, got.Phase)
	assert.Equal(t, 30, got.Width)
	assert.Equal(t, 18, got.Height)

	cells := map[engine.Position]bool{}
	colors := map[string]bool{}
	for _, p := range got.Players {
		assert.True(t, got.InBounds(p.Position), p.UserID)
		assert.False(t, cells[p.Position], "shared cell %v", p.Position)
		assert.False(t, colors[p.Color], "shared color %s", p.Color)
		assert.NotEqual(t, engine.UnsetColor, p.Color)
		cells[p.Position] = true
		colors[p.Color] = true
	}
}

func TestFinishSetupNeedsTwoPlayers(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "alice")

	err := h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return h.m.FinishSetup(ctx, tx, g, "alice")
	})
	assert.ErrorIs(t, err, engine.ErrRosterMinimum)

	err = h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		return h.m.Start(ctx, tx, g, "alice")
	})
	assert.ErrorIs(t, err, engine.ErrWrongPhase)
}

func TestStartSetsFirstGrantDue(t *testing.T) {
	h := newHarness(t)
	g := h.started(t, "alice", "bob")

	assert.Equal(t, engine.PhaseStarted, g.Phase)
	require.NotNil(t, g.NextPointAt)
	assert.Equal(t, epoch, *g.NextPointAt)
}

func TestForceEndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	g := h.started(t, "alice", "bob")

	var first, second bool
	require.NoError(t, h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		first, err = h.m.ForceEnd(ctx, tx, g, "alice")
		return err
	}))
	require.NoError(t, h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		var err error
		second, err = h.m.ForceEnd(ctx, tx, g, "alice")
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)

	got := h.load(t, g.ID)
	assert.Equal(t, engine.PhaseEnded, got.Phase)
	assert.Nil(t, got.NextPointAt)

	logs, err := h.store.Logs(context.Background(), g.ID, 0)
	require.NoError(t, err)
	ends := 0
	for _, e := range logs {
		if e.Type == engine.LogEnd {
			ends++
			assert.JSONEq(t, `{"message":"Game was force-ended","actor":"alice"}`, string(e.Payload))
		}
	}
	assert.Equal(t, 1, ends)
}

func TestForceEndBeforeStart(t *testing.T) {
	h := newHarness(t)
	g := h.create(t, "alice", "bob")

	err := h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		_, err := h.m.ForceEnd(ctx, tx, g, "alice")
		return err
	})
	assert.ErrorIs(t, err, engine.ErrWrongPhase)
}

func TestEndRecordsWinners(t *testing.T) {
	h := newHarness(t)
	g := h.started(t, "alice", "bob")

	require.NoError(t, h.in(t, g.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		bob := g.Player("bob").Clone()
		bob.Lives = 0
		if err := tx.UpdatePlayer(ctx, bob); err != nil {
			return err
		}
		g.Replace(bob)
		ended, err := h.m.End(ctx, tx, g)
		assert.True(t, ended)
		return err
	}))

	logs, err := h.store.Logs(context.Background(), g.ID, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, engine.LogEnd, logs[0].Type)
	assert.JSONEq(t, `{"message":"Game over","actor":"SYSTEM","winners":["alice"]}`, string(logs[0].Payload))
}

func TestLeave(t *testing.T) {
	h := newHarness(t)
	small := h.started(t, "a", "b", "c", "d")

	err := h.in(t, small.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		_, err := h.m.Leave(ctx, tx, g, "a")
		return err
	})
	require.ErrorIs(t, err, engine.ErrLeaveDenied)
	assert.Equal(t, engine.KindInvalidState, engine.KindOf(err))

	big := h.started(t, "a", "b", "c", "d", "e")
	require.NoError(t, h.in(t, big.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		p, err := h.m.Leave(ctx, tx, g, "e")
		if err != nil {
			return err
		}
		assert.Equal(t, 0, p.Lives)
		assert.Equal(t, engine.Unplaced, p.Position)
		return nil
	}))

	got := h.load(t, big.ID)
	assert.Len(t, got.Living(), 4)
	assert.Len(t, got.Players, 5, "players are never deleted after setup")

	err = h.in(t, big.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		_, err := h.m.Leave(ctx, tx, g, "e")
		return err
	})
	assert.ErrorIs(t, err, engine.ErrPlayerNotAlive)
}

func TestPlayAgain(t *testing.T) {
	h := newHarness(t)
	src := h.create(t, "alice", "bob")
	require.NoError(t, h.in(t, src.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		if err := h.m.SetMode(ctx, tx, g, "alice", engine.ModeTeam); err != nil {
			return err
		}
		if _, err := h.m.SetTeam(ctx, tx, g, "alice", "bob", "red"); err != nil {
			return err
		}
		return nil
	}))

	playAgain := func(id string) (*engine.Game, error) {
		var next *engine.Game
		err := h.in(t, id, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
			var err error
			next, err = h.m.PlayAgain(ctx, tx, g, "bob")
			return err
		})
		return next, err
	}

	_, err := playAgain(src.ID)
	require.ErrorIs(t, err, engine.ErrWrongPhase)

	require.NoError(t, h.in(t, src.ID, func(ctx context.Context, tx store.Tx, g *engine.Game) error {
		if err := h.m.FinishSetup(ctx, tx, g, "alice"); err != nil {
			return err
		}
		if err := h.m.Start(ctx, tx, g, "alice"); err != nil {
			return err
		}
		_, err := h.m.ForceEnd(ctx, tx, g, "alice")
		return err
	}))

	next, err := playAgain(src.ID)
	require.NoError(t, err)

	got := h.load(t, next.ID)
	assert.NotEqual(t, src.ID, got.ID)
	assert.Equal(t, engine.PhaseSetup, got.Phase)
	assert.Equal(t, engine.ModeTeam, got.Mode)
	assert.Equal(t, time.Minute, got.PointInterval)
	assert.Equal(t, "bob", got.CreatedBy)
	assert.Equal(t, src.ID, got.PreviousGameID)
	assert.Equal(t, []string{"alice", "bob"}, engine.UserIDs(got.Players))
	assert.Equal(t, "red", got.Player("bob").Team)
	for _, p := range got.Players {
		assert.Equal(t, engine.Unplaced, p.Position)
		assert.Equal(t, engine.UnsetColor, p.Color)
		assert.Equal(t, 0, p.Kills)
	}
}
