package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/tank-tactics/api"
	"github.com/wricardo/tank-tactics/game/combat"
	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/events"
	"github.com/wricardo/tank-tactics/game/ledger"
	"github.com/wricardo/tank-tactics/game/lifecycle"
	"github.com/wricardo/tank-tactics/game/scheduler"
	"github.com/wricardo/tank-tactics/game/service"
	"github.com/wricardo/tank-tactics/game/store/memory"
)

func newCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func newTestClient(t *testing.T, baseURL, user string) *Client {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewClient(baseURL, user, log)
}

func TestNewClient(t *testing.T) {
	client := newTestClient(t, "http://localhost:8080/", "alice")

	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.Equal(t, "alice", client.userID)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.GetMCPServer())
}

func TestClient_apiCall(t *testing.T) {
	var gotUser, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(userHeader)
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "g1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "alice")

	var response map[string]string
	require.NoError(t, client.apiCall(context.Background(), "bob", "POST", "/api/games", map[string]string{}, &response))
	assert.Equal(t, "g1", response["id"])
	assert.Equal(t, "bob", gotUser)
	assert.Equal(t, "application/json", gotType)
}

func TestClient_apiCall_Error(t *testing.T) {
	client := newTestClient(t, "http://invalid-url-that-does-not-exist:9999", "alice")

	err := client.apiCall(context.Background(), "", "GET", "/api/games", nil, nil)
	assert.Error(t, err)
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/games/missing" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "game not found", "code": "GAME_NOT_FOUND"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "alice")

	err := client.apiCall(context.Background(), "", "GET", "/api/games/missing", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, engine.CodeGameNotFound, apiErr.Code)
	assert.Equal(t, "game not found (GAME_NOT_FOUND)", err.Error())

	err = client.apiCall(context.Background(), "", "GET", "/api/other", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error: 500")
}

func TestClient_walkRequest(t *testing.T) {
	var body map[string]interface{}
	var user string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/games/g1/walk", r.URL.Path)
		user = r.Header.Get(userHeader)
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(combat.WalkResult{
			Direction: engine.Up,
			Requested: 3,
			Taken:     1,
			From:      engine.Position{X: 2, Y: 2},
			To:        engine.Position{X: 2, Y: 1},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "alice")
	res, err := client.handleWalk(context.Background(), newCallToolRequest("walk", map[string]any{
		"game_id":   "g1",
		"direction": "up",
		"steps":     3,
		"as_user":   "carol",
	}))
	require.NoError(t, err)

	text := resultText(t, res)
	assert.Contains(t, text, "Walked 1/3 step(s) up: (2,2) -> (2,1)")
	assert.Contains(t, text, "Blocked")
	assert.Equal(t, "carol", user)
	assert.Equal(t, "up", body["direction"])
	assert.Equal(t, float64(3), body["steps"])
}

func TestClient_toolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "target is out of range", "code": "TARGET_OUT_OF_RANGE"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "alice")
	res, err := client.handleAttack(context.Background(), newCallToolRequest("attack", map[string]any{
		"game_id": "g1",
		"target":  "bob",
	}))
	require.NoError(t, err, "API failures are tool errors, not protocol errors")
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "TARGET_OUT_OF_RANGE")
}

func TestFormatBoard(t *testing.T) {
	board := &engine.Board{
		GameID: "g1",
		Width:  5,
		Height: 3,
		Players: []engine.BoardPlayer{
			{UserID: "bob", X: 4, Y: 2, Lives: 1, Range: 2},
			{UserID: "alice", X: 0, Y: 0, Lives: 3, Range: 2},
			{UserID: "carol", X: 2, Y: 1, Lives: 0, Range: 2},
		},
	}

	out := formatBoard(board)
	lines := strings.Split(out, "\n")
	assert.Equal(t, "A....", lines[0])
	assert.Equal(t, ".....", lines[1], "dead tanks are not drawn")
	assert.Equal(t, "....B", lines[2])
	assert.Contains(t, out, "alice (0,0) lives=3 range=2")
	assert.Contains(t, out, "carol dead")
	assert.Less(t, strings.Index(out, "  alice"), strings.Index(out, "  bob"))

	assert.Equal(t, "Board not placed yet", formatBoard(&engine.Board{}))
}

func TestFormatStats(t *testing.T) {
	points := 4
	out := formatStats([]service.PlayerStats{
		{UserID: "alice", Lives: 3, Points: &points, Range: 2},
		{UserID: "bob", Lives: 2, Range: 3, Kills: 1},
	})

	assert.Regexp(t, `alice\s+3\s+4\s+2\s+0`, out)
	assert.Regexp(t, `bob\s+2\s+\?\s+3\s+1`, out)
}

func TestFormatAttack(t *testing.T) {
	out := formatAttack("bob", &service.AttackOutcome{
		AttackResult: &combat.AttackResult{Killed: true, PointsTransferred: 3},
		GameOver:     true,
		Winners:      []string{"alice"},
	})
	assert.Contains(t, out, "Destroyed bob and took 3 point(s)")
	assert.Contains(t, out, "Winner(s): alice")

	out = formatAttack("bob", &service.AttackOutcome{AttackResult: &combat.AttackResult{RemainingLives: 2}})
	assert.Equal(t, "Hit bob; 2 lives left", out)
}

func TestGameRules(t *testing.T) {
	client := newTestClient(t, "http://localhost:8080", "alice")
	res, err := client.handleGameRules(context.Background(), newCallToolRequest("game_rules", nil))
	require.NoError(t, err)

	text := resultText(t, res)
	assert.Contains(t, text, "increase_range: 2 points for +1 range")
	assert.Contains(t, text, "leave: only while at least 5 tanks are alive")
}

type idleClock struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleClock) Now() time.Time { return time.Now() }

func (idleClock) AfterFunc(time.Duration, func()) scheduler.Timer { return idleTimer{} }

// TestClient_againstAPI drives a game through the tools over a real API server
func TestClient_againstAPI(t *testing.T) {
	st, err := memory.New()
	require.NoError(t, err)
	log, _ := test.NewNullLogger()

	l := ledger.New(time.Now)
	life := lifecycle.New(l)
	bus := events.NewLocalBus(log)
	sched := scheduler.New(st, l, life, bus, scheduler.WithClock(idleClock{}), scheduler.WithLogger(log))
	defer sched.Stop()

	svc := service.NewGameService(service.Deps{
		Store:     st,
		Lifecycle: life,
		Combat:    combat.New(l),
		Scheduler: sched,
		Bus:       bus,
		Logger:    log,
	})
	server := httptest.NewServer(api.NewServer(svc, nil, api.WithLogger(log)))
	defer server.Close()

	client := newTestClient(t, server.URL, "alice")
	ctx := context.Background()

	var g engine.Game
	require.NoError(t, client.apiCall(ctx, "alice", "POST", "/api/games", nil, &g))

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"add_player":   client.handleAddPlayer,
		"finish_setup": client.handleFinishSetup,
		"start_game":   client.handleStart,
		"board":        client.handleBoard,
		"stats":        client.handleStats,
		"in_range":     client.handleInRange,
		"end_game":     client.handleEnd,
		"logs":         client.handleLogs,
		"play_again":   client.handlePlayAgain,
	}
	call := func(name string, args map[string]any) string {
		args["game_id"] = g.ID
		res, err := handlers[name](ctx, newCallToolRequest(name, args))
		require.NoError(t, err)
		text := resultText(t, res)
		require.False(t, res.IsError, text)
		return text
	}

	assert.Contains(t, call("add_player", map[string]any{"player": "bob"}), "Added bob to seat 2")
	call("finish_setup", map[string]any{})
	assert.Contains(t, call("start_game", map[string]any{}), "phase=started")
	assert.Contains(t, call("board", map[string]any{}), "Legend:")
	assert.Contains(t, call("stats", map[string]any{}), "alice")
	assert.Contains(t, call("in_range", map[string]any{}), "alice")
	assert.Contains(t, call("end_game", map[string]any{"as_user": "bob"}), "phase=ended")
	assert.Contains(t, call("logs", map[string]any{"limit": 1}), "end")
	assert.Contains(t, call("play_again", map[string]any{}), "New game:")
}
