// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielhkuo/fingervote/models"
)

const (
	streamBackoffMin = time.Second
	streamBackoffMax = 30 * time.Second
)

type subscribeFunc func(ctx context.Context) (<-chan models.VoteEvent, error)

// streamVotes keeps a vote stream open until ctx is done, reconnecting
// with exponential backoff. The wait resets after each successful connect.
// Every reconnect after the first emits an empty event so the reader
// refreshes anything missed while disconnected.
func streamVotes(ctx context.Context, subscribe subscribeFunc, minWait, maxWait time.Duration) <-chan models.VoteEvent {
	out := make(chan models.VoteEvent, 16)
	go func() {
		defer close(out)

		wait := minWait
		connected := false
		for {
			events, err := subscribe(ctx)
			switch {
			case err != nil:
				slog.Warn("vote stream unavailable", "error", err, "retry_in", wait)
			default:
				if connected && !send(ctx, out, models.VoteEvent{}) {
					return
				}
				connected = true
				wait = minWait
				if !forwardEvents(ctx, events, out) {
					return
				}
				slog.Warn("vote stream ended", "retry_in", wait)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			wait = nextBackoff(wait, maxWait)
		}
	}()
	return out
}

// forwardEvents copies events until the stream closes. It returns false
// if ctx ended first.
func forwardEvents(ctx context.Context, events <-chan models.VoteEvent, out chan<- models.VoteEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() == nil
			}
			if !send(ctx, out, ev) {
				return false
			}
		}
	}
}

func send(ctx context.Context, out chan<- models.VoteEvent, ev models.VoteEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(wait, maxWait time.Duration) time.Duration {
	wait *= 2
	if wait > maxWait {
		return maxWait
	}
	return wait
}
