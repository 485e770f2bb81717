package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel carrying realtime events.
const DefaultChannel = "brokerdesk:events"

// RedisPublisher publishes events on a Redis channel so that every server
// process relays them to its own websocket clients.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher creates a RedisPublisher. An empty channel means DefaultChannel.
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish encodes the event as a Message and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, event string, payload any) error {
	frame, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event %q: %w", event, err)
	}
	if err := p.rdb.Publish(ctx, p.channel, frame).Err(); err != nil {
		return fmt.Errorf("failed to publish event %q: %w", event, err)
	}
	return nil
}

// Relay subscribes to channel and forwards every message to the hub until ctx is done.
// It returns once the subscription is confirmed; forwarding runs in the background.
func Relay(ctx context.Context, rdb *redis.Client, channel string, h *Hub, log *zap.Logger) error {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !json.Valid([]byte(msg.Payload)) {
					log.Warn("discarding malformed realtime event", zap.String("channel", msg.Channel))
					continue
				}
				if err := h.BroadcastRaw(ctx, []byte(msg.Payload)); err != nil {
					return
				}
			}
		}
	}()

	log.Info("realtime relay subscribed", zap.String("channel", channel))
	return nil
}
