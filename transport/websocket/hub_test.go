package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/tank-tactics/game/events"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewHub(log)
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := newTestHub(t)

	a := &Client{hub: hub, gameID: "g1", send: make(chan []byte, sendBuffer)}
	b := &Client{hub: hub, gameID: "g1", send: make(chan []byte, sendBuffer)}
	hub.registerClient(a)
	hub.registerClient(b)
	assert.Len(t, hub.games["g1"], 2)

	hub.unregisterClient(a)
	assert.Len(t, hub.games["g1"], 1)
	_, open := <-a.send
	assert.False(t, open, "send channel closed")

	// unregistering twice is harmless
	hub.unregisterClient(a)

	hub.unregisterClient(b)
	assert.NotContains(t, hub.games, "g1", "empty games are dropped")
}

func TestBroadcastEventOnlyReachesItsGame(t *testing.T) {
	hub := newTestHub(t)

	watcher := &Client{hub: hub, gameID: "g1", send: make(chan []byte, 1)}
	other := &Client{hub: hub, gameID: "g2", send: make(chan []byte, 1)}
	hub.registerClient(watcher)
	hub.registerClient(other)

	e, err := events.New(events.TypeWalk, "g1", map[string]int{"steps": 2}, time.Unix(0, 0).UTC())
	require.NoError(t, err)
	hub.broadcastEvent(e)

	require.Len(t, watcher.send, 1)
	assert.JSONEq(t, `{"type":"walk","game_id":"g1","at":"1970-01-01T00:00:00Z","data":{"steps":2}}`, string(<-watcher.send))
	assert.Empty(t, other.send)
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := newTestHub(t)

	slow := &Client{hub: hub, gameID: "g1", send: make(chan []byte, 1)}
	hub.registerClient(slow)

	e, err := events.New(events.TypeGift, "g1", nil, time.Now())
	require.NoError(t, err)
	hub.broadcastEvent(e)
	hub.broadcastEvent(e)

	assert.NotContains(t, hub.games, "g1")
}

func TestServeWSRelaysBusEvents(t *testing.T) {
	log, _ := test.NewNullLogger()
	bus := events.NewLocalBus(log)
	hub := NewHub(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, bus)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("game"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?game=g1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Clients()["g1"] == 1
	}, time.Second, 10*time.Millisecond)

	skipped, err := events.New(events.TypeAttack, "g2", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, skipped))

	e, err := events.New(events.TypeAttack, "g1", map[string]string{"attacker": "alice"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, e))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TypeAttack, got.Type)
	assert.Equal(t, "g1", got.GameID)
	assert.JSONEq(t, `{"attacker":"alice"}`, string(got.Data))

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.Clients()["g1"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunStopsWithContext(t *testing.T) {
	hub := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx, nil)
		close(stopped)
	}()

	client := &Client{hub: hub, gameID: "g1", send: make(chan []byte, 1)}
	hub.register <- client
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-client.send
	assert.False(t, open)
	assert.Nil(t, hub.Clients())
}
