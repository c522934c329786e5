// Package events carries game notifications from the engine to observers.
//
// The engine publishes one Event after each committed mutation. LocalBus
// fans events out to in-process subscribers such as the WebSocket hub;
// RedisBus additionally relays them between processes through Redis
// pub/sub.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Type names a notification
type Type string

const (
	TypeAttack        Type = "attack"
	TypeWalk          Type = "walk"
	TypeGift          Type = "gift"
	TypeRangeIncrease Type = "range_increase"
	TypeEnd           Type = "end"
	TypeAPGranted     Type = "ap_granted"
	TypeStarted       Type = "started"
	TypeLeave         Type = "leave"
)

// Event is a notification about one game
type Event struct {
	Type   Type            `json:"type"`
	GameID string          `json:"game_id"`
	At     time.Time       `json:"at"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// New builds an event, marshalling data as its payload
func New(typ Type, gameID string, data any, at time.Time) (Event, error) {
	e := Event{Type: typ, GameID: gameID, At: at}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		e.Data = raw
	}
	return e, nil
}

// Publisher accepts events for delivery
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus is a Publisher that observers can subscribe to
type Bus interface {
	Publisher
	// Subscribe delivers events for gameID, or for every game when gameID
	// is empty. The returned func cancels the subscription.
	Subscribe(gameID string) (<-chan Event, func())
}

// SubscriberBuffer is the channel capacity of each subscription
const SubscriberBuffer = 64

type subscriber struct {
	gameID string
	ch     chan Event
}

// LocalBus is an in-process Bus. Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the event.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	log    logrus.FieldLogger
}

// NewLocalBus creates an empty bus
func NewLocalBus(log logrus.FieldLogger) *LocalBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalBus{
		subs: make(map[int]*subscriber),
		log:  log,
	}
}

// Publish fans e out to matching subscribers
func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.gameID != "" && s.gameID != e.GameID {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.log.WithFields(logrus.Fields{
				"game_id": e.GameID,
				"event":   e.Type,
			}).Warn("subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber
func (b *LocalBus) Subscribe(gameID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	s := &subscriber{gameID: gameID, ch: make(chan Event, SubscriberBuffer)}
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Len returns the number of live subscriptions
func (b *LocalBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
