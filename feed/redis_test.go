// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feed

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/danielhkuo/fingervote/models"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisBridge_DefaultChannel(t *testing.T) {
	b := NewRedisBridge(unreachableRedis(t), "", NewHub(1))
	if b.channel != DefaultRedisChannel {
		t.Errorf("Expected channel %s, got %s", DefaultRedisChannel, b.channel)
	}
}

func TestRedisBridge_UnreachableErrors(t *testing.T) {
	hub := NewHub(1)
	b := NewRedisBridge(unreachableRedis(t), "test:votes", hub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.Publish(ctx, models.VoteEvent{VoteID: "v1", ParticipantID: "p1"}); err == nil {
		t.Error("Expected publish error with redis down")
	}
	if err := b.Run(ctx); err == nil {
		t.Error("Expected Run to fail when subscribe cannot connect")
	}
}
