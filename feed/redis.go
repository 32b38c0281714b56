// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/danielhkuo/fingervote/models"
)

// DefaultRedisChannel carries vote events between server instances
const DefaultRedisChannel = "fingervote:votes"

// RedisBridge publishes vote events to a redis channel and forwards every
// message on that channel (including its own) into a local Hub, so SSE
// clients on any instance see inserts committed by any instance.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub) *RedisBridge {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBridge{client: client, channel: channel, hub: hub}
}

func (b *RedisBridge) Publish(ctx context.Context, ev models.VoteEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode vote event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish vote event to redis: %w", err)
	}
	return nil
}

// Run forwards redis messages to the hub until ctx is cancelled
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for subscription confirmation so startup errors surface here
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	slog.Info("redis feed bridge subscribed", "channel", b.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev models.VoteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("ignoring malformed vote event", "channel", msg.Channel, "error", err)
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}
}
