// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/danielhkuo/fingervote/identity"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/models"
)

const (
	DefaultTallyInterval  = 15 * time.Second
	DefaultLeaderInterval = 30 * time.Second
)

var (
	ErrClosed         = errors.New("reconciler closed")
	ErrAlreadyRunning = errors.New("reconciler already running")
)

// Source is the read side of the ledger
type Source interface {
	FetchTallies(ctx context.Context) (map[string]int64, error)
	FetchVoterStatus(ctx context.Context, token string) (ledger.VoterStatus, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)
}

// Identity supplies the voter token and the local voted marker
type Identity interface {
	GetOrCreate() (string, error)
	VotedMarker() (identity.VotedMarker, bool)
}

type Config struct {
	TallyInterval  time.Duration
	LeaderInterval time.Duration
}

// Leader is the participant with the most votes. Tied is set when other
// participants share the top count; ParticipantID is then the lowest id.
type Leader struct {
	ParticipantID string
	Count         int64
	Tied          bool
}

// Snapshot is a copy of the projection; callers may keep it
type Snapshot struct {
	Ready        bool
	HasVoted     bool
	VotedFor     string
	Tallies      map[string]int64
	Leader       *Leader
	Participants []models.Participant
}

// Reconciler holds the client-side projection of the ledger: whether
// this voter has voted, for whom, and the per-participant tallies.
//
// Tally responses are tagged with the generation current when the request
// was issued. A response is applied only if its generation is newer than
// the last one applied; a local optimistic write advances the generation,
// so requests issued before it are discarded when they land.
type Reconciler struct {
	src   Source
	ident Identity
	cfg   Config

	mu           sync.Mutex
	ready        bool
	closed       bool
	hasVoted     bool
	votedFor     string
	tallies      map[string]int64
	participants []models.Participant
	leader       *Leader
	issued       uint64
	applied      uint64

	subs    map[int]chan Snapshot
	nextSub int

	running   bool
	cancelRun context.CancelFunc
	runWG     sync.WaitGroup
}

func NewReconciler(src Source, ident Identity, cfg Config) *Reconciler {
	if cfg.TallyInterval <= 0 {
		cfg.TallyInterval = DefaultTallyInterval
	}
	if cfg.LeaderInterval <= 0 {
		cfg.LeaderInterval = DefaultLeaderInterval
	}
	return &Reconciler{
		src:     src,
		ident:   ident,
		cfg:     cfg,
		tallies: make(map[string]int64),
		subs:    make(map[int]chan Snapshot),
	}
}

// Initialize loads voter status, roster and tallies. Voting stays
// disabled until it succeeds.
//
// If voter status cannot be fetched the local voted marker is used; with
// no marker the voter is allowed to try, and the ledger's uniqueness
// constraint rejects a second vote. A roster failure is returned. A tally
// failure is logged and left to the next refresh.
func (r *Reconciler) Initialize(ctx context.Context) error {
	token, err := r.ident.GetOrCreate()
	if err != nil {
		return fmt.Errorf("voter identity: %w", err)
	}

	status, statusErr := r.src.FetchVoterStatus(ctx, token)
	if statusErr != nil {
		if m, ok := r.ident.VotedMarker(); ok {
			slog.Warn("voter status unavailable, using local marker", "error", statusErr)
			status = ledger.VoterStatus{HasVoted: true, VotedFor: m.ParticipantID}
		} else {
			slog.Warn("voter status unavailable, voting left open", "error", statusErr)
		}
	}

	participants, err := r.src.ListParticipants(ctx)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if status.HasVoted {
		r.hasVoted = true
		if status.VotedFor != "" {
			r.votedFor = status.VotedFor
		}
	}
	r.participants = participants
	r.mu.Unlock()

	if err := r.RefreshTallies(ctx); err != nil {
		slog.Warn("initial tally fetch failed", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.ready = true
	r.leader = computeLeader(r.tallies, r.participants)
	r.publishLocked()

	slog.Info("projection initialized", "has_voted", r.hasVoted, "participants", len(r.participants))
	return nil
}

// RefreshTallies fetches tallies and replaces the projection wholesale,
// unless a newer response or local write has been applied meanwhile.
func (r *Reconciler) RefreshTallies(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.issued++
	gen := r.issued
	r.mu.Unlock()

	counts, err := r.src.FetchTallies(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if gen <= r.applied {
		slog.Debug("discarding stale tally response", "generation", gen, "applied", r.applied)
		return nil
	}
	r.applied = gen
	r.tallies = maps.Clone(counts)
	if r.tallies == nil {
		r.tallies = make(map[string]int64)
	}
	r.publishLocked()
	return nil
}

// RefreshLeader reloads the roster and tallies and recomputes the leader
func (r *Reconciler) RefreshLeader(ctx context.Context) error {
	participants, err := r.src.ListParticipants(ctx)
	if err != nil {
		slog.Warn("roster refresh failed", "error", err)
	} else {
		r.mu.Lock()
		r.participants = participants
		r.mu.Unlock()
	}

	refreshErr := r.RefreshTallies(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.leader = computeLeader(r.tallies, r.participants)
	r.publishLocked()
	return refreshErr
}

// OnExternalVoteEvent reacts to a vote committed anywhere in the ledger.
// Duplicate and out-of-order events are harmless.
func (r *Reconciler) OnExternalVoteEvent(ctx context.Context) error {
	return r.RefreshTallies(ctx)
}

// RecordLocalVoteOutcome applies a confirmed local vote ahead of the next
// refresh. The next applied refresh overwrites the optimistic count.
func (r *Reconciler) RecordLocalVoteOutcome(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.hasVoted = true
	r.votedFor = participantID

	tallies := maps.Clone(r.tallies)
	if tallies == nil {
		tallies = make(map[string]int64)
	}
	tallies[participantID]++
	r.tallies = tallies

	r.issued++
	r.applied = r.issued
	r.publishLocked()
}

// MarkVoted records an authoritative "already voted" signal. Tallies are
// left alone. An empty votedFor keeps whatever is already known.
func (r *Reconciler) MarkVoted(votedFor string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.hasVoted = true
	if votedFor != "" {
		r.votedFor = votedFor
	}
	r.publishLocked()
}

func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *Reconciler) HasVoted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasVoted
}

func (r *Reconciler) VotedFor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.votedFor
}

// CanVote reports whether a new vote attempt may start
func (r *Reconciler) CanVote() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready && !r.closed && !r.hasVoted
}

func (r *Reconciler) Tallies() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.tallies)
}

func (r *Reconciler) Leader() (Leader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leader == nil {
		return Leader{}, false
	}
	return *r.leader, true
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	s := Snapshot{
		Ready:        r.ready,
		HasVoted:     r.hasVoted,
		VotedFor:     r.votedFor,
		Tallies:      maps.Clone(r.tallies),
		Participants: append([]models.Participant(nil), r.participants...),
	}
	if r.leader != nil {
		l := *r.leader
		s.Leader = &l
	}
	return s
}

// Subscribe returns a channel that receives the latest snapshot after
// every change. Only the newest undelivered snapshot is kept.
func (r *Reconciler) Subscribe() (<-chan Snapshot, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}

	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

func (r *Reconciler) publishLocked() {
	if len(r.subs) == 0 {
		return
	}
	snap := r.snapshotLocked()
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

type updateKind int

const (
	updateTallies updateKind = iota
	updateLeader
	updatePush
)

// Run drives refreshes until ctx is done or Close is called. Ticker and
// push events feed one channel read by this goroutine, so refreshes never
// overlap. If push closes, polling continues alone.
func (r *Reconciler) Run(ctx context.Context, push <-chan models.VoteEvent) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancelRun = cancel
	r.runWG.Add(1)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancelRun = nil
		r.mu.Unlock()
		r.runWG.Done()
	}()
	defer cancel()

	updates := make(chan updateKind, 1)
	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		r.tick(ctx, updates)
	}()
	go func() {
		defer producers.Done()
		r.forward(ctx, push, updates)
	}()

	for {
		select {
		case <-ctx.Done():
			cancel()
			producers.Wait()
			return nil
		case u := <-updates:
			r.handle(ctx, u)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context, updates chan<- updateKind) {
	tallyTicker := time.NewTicker(r.cfg.TallyInterval)
	defer tallyTicker.Stop()
	leaderTicker := time.NewTicker(r.cfg.LeaderInterval)
	defer leaderTicker.Stop()

	for {
		var u updateKind
		select {
		case <-ctx.Done():
			return
		case <-tallyTicker.C:
			u = updateTallies
		case <-leaderTicker.C:
			u = updateLeader
		}
		select {
		case updates <- u:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) forward(ctx context.Context, push <-chan models.VoteEvent, updates chan<- updateKind) {
	if push == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-push:
			if !ok {
				slog.Warn("vote push channel closed, continuing with polling")
				return
			}
			slog.Debug("vote event received", "vote_id", ev.VoteID, "participant_id", ev.ParticipantID)
			// A queued update already refreshes tallies
			select {
			case updates <- updatePush:
			default:
			}
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, u updateKind) {
	var err error
	switch u {
	case updateLeader:
		err = r.RefreshLeader(ctx)
	default:
		err = r.RefreshTallies(ctx)
	}
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrClosed) {
		slog.Warn("projection refresh failed", "error", err)
	}
}

// Close stops Run, closes subscriptions and ignores any response still
// in flight. It is safe to call more than once.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.ready = false
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	if r.cancelRun != nil {
		r.cancelRun()
	}
	r.mu.Unlock()

	r.runWG.Wait()
}

func computeLeader(tallies map[string]int64, roster []models.Participant) *Leader {
	var candidates []string
	if len(roster) > 0 {
		for _, p := range roster {
			candidates = append(candidates, p.ID)
		}
	} else {
		for id := range tallies {
			candidates = append(candidates, id)
		}
	}

	var best *Leader
	for _, id := range candidates {
		n := tallies[id]
		if n <= 0 {
			continue
		}
		switch {
		case best == nil || n > best.Count:
			best = &Leader{ParticipantID: id, Count: n}
		case n == best.Count:
			best.Tied = true
			if id < best.ParticipantID {
				best.ParticipantID = id
			}
		}
	}
	return best
}
