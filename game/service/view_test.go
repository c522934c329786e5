package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/events"
	"github.com/wricardo/tank-tactics/game/service"
)

func pointsOf(v *service.GameView) map[string]*int {
	out := make(map[string]*int, len(v.Players))
	for _, p := range v.Players {
		out[p.UserID] = p.Points
	}
	return out
}

func TestViewGameHiddenMode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cells := map[string]engine.Position{"alice": {X: 0, Y: 0}, "bob": {X: 1, Y: 1}}

	hidden := e.arena(t, engine.ModeHidden, cells, "alice", "bob")
	v, err := e.svc.ViewGame(ctx, hidden.ID, "bob")
	require.NoError(t, err)
	points := pointsOf(v)
	assert.Nil(t, points["alice"])
	require.NotNil(t, points["bob"])
	assert.Equal(t, 1, *points["bob"])

	data, err := json.Marshal(v)
	require.NoError(t, err)
	var wire struct {
		ID      string           `json:"id"`
		Players []map[string]any `json:"players"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, hidden.ID, wire.ID)
	require.Len(t, wire.Players, 2)
	assert.NotContains(t, wire.Players[0], "points", "alice's total is not on the wire")
	assert.EqualValues(t, 1, wire.Players[1]["points"])

	v, err = e.svc.ViewGame(ctx, hidden.ID, "")
	require.NoError(t, err)
	for user, p := range pointsOf(v) {
		assert.Nil(t, p, user)
	}

	open := e.arena(t, engine.ModeFFA, cells, "alice", "bob")
	v, err = e.svc.ViewGame(ctx, open.ID, "")
	require.NoError(t, err)
	for user, p := range pointsOf(v) {
		assert.NotNil(t, p, user)
	}

	_, err = e.svc.ViewGame(ctx, "nope", "alice")
	assert.ErrorIs(t, err, engine.ErrGameNotFound)
}

func TestHiddenModeActionsKeepTotalsSecret(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.arena(t, engine.ModeHidden, map[string]engine.Position{
		"alice": {X: 0, Y: 0},
		"bob":   {X: 1, Y: 1},
	}, "alice", "bob")
	require.NoError(t, e.sched.Tick(ctx, g.ID))

	ch, cancel := e.bus.Subscribe(g.ID)
	defer cancel()

	gift, err := e.svc.Gift(ctx, g.ID, "alice", "bob", 1)
	require.NoError(t, err)
	assert.Nil(t, gift.Receiver.Points)
	assert.Equal(t, 1, gift.Amount)

	out, err := e.svc.Attack(ctx, g.ID, "bob", "alice")
	require.NoError(t, err)
	assert.Nil(t, out.Defender.Points)
	assert.Equal(t, "alice", out.Defender.UserID)

	var attack *events.Event
	for _, ev := range drain(ch) {
		if ev.Type == events.TypeAttack {
			attack = &ev
		}
	}
	require.NotNil(t, attack)
	assert.NotContains(t, string(attack.Data), "points_transferred")
}

func TestLogsRedactedInHiddenMode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cells := map[string]engine.Position{"alice": {X: 0, Y: 0}, "bob": {X: 1, Y: 1}}

	for _, mode := range []engine.Mode{engine.ModeHidden, engine.ModeFFA} {
		t.Run(string(mode), func(t *testing.T) {
			g := e.arena(t, mode, cells, "alice", "bob")
			require.NoError(t, e.sched.Tick(ctx, g.ID))
			_, err := e.svc.Gift(ctx, g.ID, "alice", "bob", 1)
			require.NoError(t, err)

			logs, err := e.svc.Logs(ctx, g.ID, "bob", 0)
			require.NoError(t, err)

			seen := 0
			for _, entry := range logs {
				if entry.Type != engine.LogPointAdd && entry.Type != engine.LogPointSubtract {
					continue
				}
				seen++
				var payload map[string]any
				require.NoError(t, json.Unmarshal(entry.Payload, &payload))
				if payload["player"] == "bob" || mode != engine.ModeHidden {
					assert.Contains(t, payload, "new_points", entry.Type)
					assert.Contains(t, payload, "old_points", entry.Type)
				} else {
					assert.Equal(t, map[string]any{"player": "alice"}, payload, entry.Type)
				}
			}
			assert.Equal(t, 2, seen)

			raw, err := e.store.Logs(ctx, g.ID, 0)
			require.NoError(t, err)
			for _, entry := range raw {
				if entry.Type == engine.LogPointSubtract {
					assert.Contains(t, string(entry.Payload), "old_points", "stored entries stay whole")
				}
			}
		})
	}
}
