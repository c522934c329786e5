package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus publishes events to Redis and relays every event seen on Redis,
// including its own, to local subscribers. Run must be running for
// subscribers to receive anything.
type RedisBus struct {
	client *redis.Client
	prefix string
	local  *LocalBus
	log    logrus.FieldLogger
}

// NewRedisBus wraps client; channels are named <prefix>:events:<game id>
func NewRedisBus(client *redis.Client, prefix string, log logrus.FieldLogger) *RedisBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if prefix == "" {
		prefix = "tanks"
	}
	return &RedisBus{
		client: client,
		prefix: prefix,
		local:  NewLocalBus(log),
		log:    log,
	}
}

// Channel returns the Redis channel used for gameID
func (b *RedisBus) Channel(gameID string) string {
	return b.prefix + ":events:" + gameID
}

// Publish sends e to Redis
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel(e.GameID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local subscriber fed by Run
func (b *RedisBus) Subscribe(gameID string) (<-chan Event, func()) {
	return b.local.Subscribe(gameID)
}

// Run relays Redis messages to local subscribers until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.Channel("*"))
	defer pubsub.Close()

	// wait for the subscription to be confirmed before relaying
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.Channel("*"), err)
	}
	b.log.WithField("pattern", b.Channel("*")).Info("relaying events from redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed event")
				continue
			}
			if e.GameID == "" {
				e.GameID = strings.TrimPrefix(msg.Channel, b.prefix+":events:")
			}
			_ = b.local.Publish(ctx, e)
		}
	}
}
