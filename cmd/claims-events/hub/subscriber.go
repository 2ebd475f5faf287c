package hub

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/logger"
)

// Subscriber forwards claim events from Redis PubSub to the hub
type Subscriber struct {
	redis   *goredis.Client
	hub     *Hub
	channel string
	log     *logger.Logger
}

// NewSubscriber creates a subscriber for lifecycle.EventsChannel
func NewSubscriber(rdb *goredis.Client, hub *Hub, log *logger.Logger) *Subscriber {
	return &Subscriber{
		redis:   rdb,
		hub:     hub,
		channel: lifecycle.EventsChannel,
		log:     log,
	}
}

// Start listens until ctx is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	pubsub := s.redis.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for confirmation that subscription was successful
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.Info("redis subscription confirmed", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("redis subscriber stopping")
			return nil

		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription %s closed", s.channel)
			}

			message, err := decodeEvent(msg.Payload)
			if err != nil {
				s.log.Warn("dropping malformed claim event", "error", err)
				continue
			}
			s.hub.Publish(ctx, message)
		}
	}
}

func decodeEvent(payload string) (*Message, error) {
	var event lifecycle.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if event.ClaimID <= 0 {
		return nil, fmt.Errorf("event without claim id: %q", payload)
	}
	return &Message{ClaimID: event.ClaimID, Data: []byte(payload)}, nil
}
