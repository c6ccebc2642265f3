package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ubva/crm-scheduler/pkg/logging"
)

// DefaultChannel is the Redis pub/sub channel carrying schedule topics.
const DefaultChannel = "crm:schedule-updates"

// Publisher is anything a topic can be handed to.
type Publisher interface {
	Publish(ctx context.Context, topic string) error
}

// RedisNotifier publishes topics on a Redis channel instead of a local hub.
type RedisNotifier struct {
	redis   *redis.Client
	channel string
}

// NewRedisNotifier creates a notifier on channel (DefaultChannel when empty).
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{redis: client, channel: channel}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	if err := n.redis.Publish(ctx, n.channel, topic).Err(); err != nil {
		return fmt.Errorf("realtime: redis publish: %w", err)
	}
	return nil
}

// Relay forwards topics from the Redis channel to a local publisher.
type Relay struct {
	redis   *redis.Client
	channel string
	local   Publisher
	logger  *logging.Logger
	ready   chan struct{}
}

// NewRelay creates a relay into local.
func NewRelay(client *redis.Client, channel string, local Publisher, logger *logging.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{redis: client, channel: channel, local: local, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes and forwards until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.redis.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info("realtime: relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.local.Publish(ctx, msg.Payload); err != nil {
				r.logger.Warn("realtime: relay forward failed", "error", err)
			}
		}
	}
}
