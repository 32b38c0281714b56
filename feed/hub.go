// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/danielhkuo/fingervote/models"
)

// Publisher delivers a committed vote to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, ev models.VoteEvent) error
}

// Hub fans vote events out to in-process subscribers.
// Subscribers that fall behind lose events instead of blocking the
// publisher; consumers re-fetch tally snapshots, so a dropped event only
// delays a refresh.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan models.VoteEvent
	nextID int
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[int]chan models.VoteEvent),
		buffer: buffer,
	}
}

// Publish never blocks and never fails
func (h *Hub) Publish(ctx context.Context, ev models.VoteEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("feed subscriber behind, dropping event", "subscriber", id, "vote_id", ev.VoteID)
		}
	}
	return nil
}

// Subscribe returns a channel of events and a cancel func that closes it.
// Cancel is safe to call more than once.
func (h *Hub) Subscribe() (<-chan models.VoteEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan models.VoteEvent, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev models.VoteEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
