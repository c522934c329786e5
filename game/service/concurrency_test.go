package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/store"
	"github.com/wricardo/tank-tactics/game/store/memory"
	"github.com/wricardo/tank-tactics/game/store/sqlstore"
	"github.com/wricardo/tank-tactics/game/store/storetest"
)

func TestTicksAndAttacksInterleave(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) store.Store
	}{
		{"memory", func(t *testing.T) store.Store {
			st, err := memory.New()
			require.NoError(t, err)
			return st
		}},
		{"sqlite", func(t *testing.T) store.Store {
			log, _ := test.NewNullLogger()
			st, err := sqlstore.Open(context.Background(), sqlstore.SQLite, filepath.Join(t.TempDir(), "tanks.db"), log)
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			e := newEnvOn(t, b.open(t))
			ctx := context.Background()

			const rounds = 12
			g := storetest.Started(storetest.NewGame("alice", "bob"), 10, 6,
				engine.Position{X: 0, Y: 0},
				engine.Position{X: 1, Y: 1},
			)
			g.NextPointAt = &epoch
			g.Player("alice").Points = rounds
			g.Player("bob").Lives = rounds + 1
			storetest.Insert(t, e.store, g)

			var eg errgroup.Group
			for i := 0; i < rounds; i++ {
				eg.Go(func() error { return e.sched.Tick(ctx, g.ID) })
				eg.Go(func() error {
					_, err := e.svc.Attack(ctx, g.ID, "alice", "bob")
					return err
				})
			}
			require.NoError(t, eg.Wait())

			got, err := e.svc.GetGame(ctx, g.ID)
			require.NoError(t, err)
			assert.Equal(t, engine.PhaseStarted, got.Phase)
			assert.Equal(t, rounds+rounds-rounds*engine.AttackCost, got.Player("alice").Points, "grants minus attack costs")
			assert.Equal(t, engine.DefaultPoints+rounds, got.Player("bob").Points, "every grant landed once")
			assert.Equal(t, 1, got.Player("bob").Lives, "every attack landed once")

			logs, err := e.svc.Logs(ctx, g.ID, "", 0)
			require.NoError(t, err)
			counts := map[engine.LogType]int{}
			for _, entry := range logs {
				counts[entry.Type]++
			}
			assert.Equal(t, rounds, counts[engine.LogAPGranted])
			assert.Equal(t, rounds, counts[engine.LogAttack])
			assert.True(t, e.sched.Registry().Armed(g.ID))
		})
	}
}
