package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection watching a game
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	gameID string
}

// Hub fans game events out to the WebSocket clients watching each game
type Hub struct {
	// Registered clients by game ID
	games map[string]map[*Client]bool

	broadcast  chan events.Event
	register   chan *Client
	unregister chan *Client
	count      chan chan map[string]int
	done       chan struct{}

	log logrus.FieldLogger
}

// NewHub creates a new WebSocket hub
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		games:      make(map[string]map[*Client]bool),
		broadcast:  make(chan events.Event, events.SubscriberBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan map[string]int),
		done:       make(chan struct{}),
		log:        log.WithField("component", "websocket"),
	}
}

// Run starts the hub's event loop. Events from bus, when given, are relayed
// to the clients of their game. Run returns when ctx is done.
func (h *Hub) Run(ctx context.Context, bus events.Bus) {
	var feed <-chan events.Event
	if bus != nil {
		ch, cancel := bus.Subscribe("")
		defer cancel()
		feed = ch
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case e, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			h.broadcastEvent(e)

		case e := <-h.broadcast:
			h.broadcastEvent(e)

		case reply := <-h.count:
			counts := make(map[string]int, len(h.games))
			for id, clients := range h.games {
				counts[id] = len(clients)
			}
			reply <- counts
		}
	}
}

// ServeWS upgrades the request and attaches the connection to gameID
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		gameID: gameID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Broadcast sends e to the clients of its game without going through a bus
func (h *Hub) Broadcast(e events.Event) {
	select {
	case h.broadcast <- e:
	case <-h.done:
	}
}

// Clients returns the number of clients per game
func (h *Hub) Clients() map[string]int {
	reply := make(chan map[string]int)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

func (h *Hub) registerClient(client *Client) {
	if h.games[client.gameID] == nil {
		h.games[client.gameID] = make(map[*Client]bool)
	}
	h.games[client.gameID][client] = true

	h.log.WithFields(logrus.Fields{
		"game_id": client.gameID,
		"clients": len(h.games[client.gameID]),
	}).Debug("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.games[client.gameID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	if len(clients) == 0 {
		delete(h.games, client.gameID)
	}

	h.log.WithFields(logrus.Fields{
		"game_id": client.gameID,
		"clients": len(clients),
	}).Debug("client unregistered")
}

func (h *Hub) closeAll() {
	for _, clients := range h.games {
		for client := range clients {
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) broadcastEvent(e events.Event) {
	clients, ok := h.games[e.GameID]
	if !ok {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		h.log.WithError(err).WithField("game_id", e.GameID).Error("marshal event")
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
			// slow consumer
			h.unregisterClient(client)
		}
	}
}

// readPump keeps the connection alive; clients only listen
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("game_id", c.gameID).Warn("read failed")
			}
			return
		}
	}
}

// writePump sends queued events, one JSON document per message
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
