package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

const channelPrefix = "notifications:"

func userChannel(userID string) string {
	return channelPrefix + userID
}

// RedisBroadcaster publishes notifications on notifications:{userID} so that
// every API replica can relay them to its own Hub.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub
	logger *logging.Logger
}

func NewRedisBroadcaster(client *redis.Client, hub *Hub, logger *logging.Logger) *RedisBroadcaster {
	if client == nil {
		panic("notify: redis client cannot be nil")
	}
	if hub == nil {
		panic("notify: hub cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroadcaster{client: client, hub: hub, logger: logger}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, userChannel(n.UserID), data).Err(); err != nil {
		return fmt.Errorf("notify: redis publish: %w", err)
	}
	return nil
}

// Run relays published notifications into the local Hub until ctx is done.
// ready, when non-nil, is closed once the subscription is active.
func (b *RedisBroadcaster) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("notify: redis subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				b.logger.Warn("dropping malformed notification", "error", err, "channel", msg.Channel)
				continue
			}
			if n.UserID == "" {
				n.UserID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			b.hub.deliver(n)
		}
	}
}
