// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/danielhkuo/fingervote/feed"
	"github.com/danielhkuo/fingervote/models"
)

const (
	DefaultTallyCacheKey = "fingervote:tallies"
	DefaultTallyCacheTTL = 5 * time.Second

	// present in every cached hash so an empty tally is still a hit
	cacheMarkerField = "_"
)

// CachedBackend serves CountVotes from a Redis hash and invalidates it on
// every successful insert. Redis failures fall through to the wrapped
// backend; the cache never decides anything about a vote.
//
// Vote events are published here, after invalidation, so a subscriber that
// refreshes on an event never reads counts from before that vote. The
// wrapped backend must not publish on its own.
type CachedBackend struct {
	Backend
	client     *redis.Client
	pub        feed.Publisher
	key        string
	versionKey string
	ttl        time.Duration
}

func NewCachedBackend(inner Backend, client *redis.Client, ttl time.Duration, pub feed.Publisher) *CachedBackend {
	if ttl <= 0 {
		ttl = DefaultTallyCacheTTL
	}
	return &CachedBackend{
		Backend:    inner,
		client:     client,
		pub:        pub,
		key:        DefaultTallyCacheKey,
		versionKey: DefaultTallyCacheKey + ":version",
		ttl:        ttl,
	}
}

func (c *CachedBackend) CountVotes(ctx context.Context) (map[string]int64, error) {
	cached, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		slog.Warn("tally cache read failed", "error", err)
		return c.Backend.CountVotes(ctx)
	}
	if _, ok := cached[cacheMarkerField]; ok {
		counts, err := decodeCounts(cached)
		if err == nil {
			return counts, nil
		}
		slog.Warn("tally cache entry corrupt", "error", err)
	}

	// Read the version before the database so an insert that lands
	// during the query blocks the fill below
	version, verErr := c.version(ctx, c.client)

	counts, err := c.Backend.CountVotes(ctx)
	if err != nil {
		return nil, err
	}

	if verErr != nil {
		slog.Warn("tally cache version read failed", "error", verErr)
		return counts, nil
	}
	if err := c.fill(ctx, version, counts); err != nil {
		slog.Warn("tally cache write failed", "error", err)
	}
	return counts, nil
}

// fill writes counts only if no insert has bumped the version since it
// was read. WATCH aborts the write if one lands mid-transaction.
func (c *CachedBackend) fill(ctx context.Context, version string, counts map[string]int64) error {
	fields := make(map[string]interface{}, len(counts)+1)
	fields[cacheMarkerField] = "1"
	for id, n := range counts {
		fields[id] = n
	}

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx)
		if err != nil {
			return err
		}
		if current != version {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, c.key)
			pipe.HSet(ctx, c.key, fields)
			pipe.Expire(ctx, c.key, c.ttl)
			return nil
		})
		return err
	}, c.versionKey)

	if errors.Is(err, redis.TxFailedErr) {
		slog.Debug("tally cache fill skipped, votes changed during read")
		return nil
	}
	return err
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *CachedBackend) version(ctx context.Context, cmd getter) (string, error) {
	v, err := cmd.Get(ctx, c.versionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (c *CachedBackend) InsertVote(ctx context.Context, participantID, voterID string) (models.Vote, error) {
	vote, err := c.Backend.InsertVote(ctx, participantID, voterID)
	if err != nil {
		return vote, err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		slog.Warn("tally cache invalidation failed", "error", err)
	}

	if c.pub != nil {
		ev := models.VoteEvent{VoteID: vote.ID, ParticipantID: vote.ParticipantID, CreatedAt: vote.CreatedAt}
		if err := c.pub.Publish(ctx, ev); err != nil {
			slog.Warn("failed to publish vote event", "vote_id", vote.ID, "error", err)
		}
	}

	return vote, nil
}

func decodeCounts(fields map[string]string) (map[string]int64, error) {
	counts := make(map[string]int64, len(fields))
	for k, v := range fields {
		if k == cacheMarkerField {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		counts[k] = n
	}
	return counts, nil
}
