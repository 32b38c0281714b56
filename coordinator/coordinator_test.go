// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/fingervote/identity"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/models"
	"github.com/danielhkuo/fingervote/tally"
	"github.com/danielhkuo/fingervote/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []NoticeKind
}

func (r *recordingNotifier) Notify(kind NoticeKind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingNotifier) last() NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.kinds) == 0 {
		return ""
	}
	return r.kinds[len(r.kinds)-1]
}

// scriptedLedger returns queued SubmitVote errors, then succeeds
type scriptedLedger struct {
	mu          sync.Mutex
	submitErrs  []error
	gate        chan struct{}
	inflight    chan struct{}
	status      ledger.VoterStatus
	statusCalls atomic.Int32
	submitCalls atomic.Int32
}

func (s *scriptedLedger) SubmitVote(ctx context.Context, participantID, token string) (models.Vote, error) {
	s.submitCalls.Add(1)
	if s.inflight != nil {
		s.inflight <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]
		if err != nil {
			return models.Vote{}, err
		}
	}
	return models.Vote{ID: "v-" + participantID, ParticipantID: participantID, VoterIdentifier: token}, nil
}

func (s *scriptedLedger) FetchVoterStatus(ctx context.Context, token string) (ledger.VoterStatus, error) {
	s.statusCalls.Add(1)
	return s.status, nil
}

// emptySource is a ledger with two participants and no votes
type emptySource struct{}

func (emptySource) FetchTallies(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (emptySource) FetchVoterStatus(ctx context.Context, token string) (ledger.VoterStatus, error) {
	return ledger.VoterStatus{}, nil
}

func (emptySource) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	return []models.Participant{{ID: "p1"}, {ID: "p2"}}, nil
}

func newScripted(t *testing.T, l Ledger) (*Coordinator, *tally.Reconciler, *identity.Store, *recordingNotifier) {
	t.Helper()
	store := identity.NewStore(identity.NewMemoryKV())
	rec := tally.NewReconciler(emptySource{}, store, tally.Config{})
	if err := rec.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(rec.Close)
	notes := &recordingNotifier{}
	return New(l, rec, store, notes), rec, store, notes
}

// stack wires a coordinator to a real ledger over SQLite
type stack struct {
	coord *Coordinator
	rec   *tally.Reconciler
	store *identity.Store
	notes *recordingNotifier
}

func newStack(t *testing.T, conn *sql.DB, kv identity.KV) stack {
	t.Helper()
	client := ledger.NewClient(ledger.NewSQLBackend(conn, nil))
	store := identity.NewStore(kv)
	rec := tally.NewReconciler(client, store, tally.Config{})
	if err := rec.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(rec.Close)
	notes := &recordingNotifier{}
	return stack{coord: New(client, rec, store, notes), rec: rec, store: store, notes: notes}
}

func TestCoordinator_AttemptVote_Success(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	p1 := testutil.CreateTestParticipant(t, conn, "Aroha")
	p2 := testutil.CreateTestParticipant(t, conn, "Bjorn")
	s := newStack(t, conn, identity.NewMemoryKV())
	ctx := context.Background()

	out, err := s.coord.AttemptVote(ctx, p1)
	if err != nil {
		t.Fatalf("AttemptVote failed: %v", err)
	}
	if out.Result != Success || out.VotedFor != p1 || out.Vote.ID == "" {
		t.Errorf("Unexpected outcome: %+v", out)
	}
	if !s.rec.HasVoted() || s.rec.VotedFor() != p1 {
		t.Error("Expected projection to record the vote")
	}
	if got := s.rec.Tallies()[p1]; got != 1 {
		t.Errorf("Expected optimistic tally 1, got %d", got)
	}
	if m, ok := s.store.VotedMarker(); !ok || m.ParticipantID != p1 {
		t.Errorf("Expected voted marker for %s, got %+v", p1, m)
	}
	if s.notes.last() != NoticeSuccess {
		t.Errorf("Expected success notice, got %q", s.notes.last())
	}
	if s.coord.State() != Idle {
		t.Errorf("Expected Idle after settle, got %s", s.coord.State())
	}

	// One-way gate
	if _, err := s.coord.AttemptVote(ctx, p2); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Expected ErrAlreadyVoted, got %v", err)
	}
	if n := testutil.CountVotes(t, conn); n != 1 {
		t.Errorf("Expected 1 vote row, got %d", n)
	}
}

func TestCoordinator_DuplicateFromStaleProjection(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	p1 := testutil.CreateTestParticipant(t, conn, "Aroha")
	p2 := testutil.CreateTestParticipant(t, conn, "Bjorn")
	kv := identity.NewMemoryKV()
	s := newStack(t, conn, kv)

	// The same identity voted elsewhere after this projection loaded
	token, _ := s.store.GetOrCreate()
	testutil.CreateTestVote(t, conn, p1, token)

	out, err := s.coord.AttemptVote(context.Background(), p2)
	if err != nil {
		t.Fatalf("AttemptVote failed: %v", err)
	}
	if out.Result != Duplicate || out.VotedFor != p1 {
		t.Errorf("Expected duplicate for %s, got %+v", p1, out)
	}
	if !s.rec.HasVoted() || s.rec.VotedFor() != p1 {
		t.Error("Expected projection marked voted for p1")
	}
	if got := s.rec.Tallies()[p2]; got != 0 {
		t.Errorf("Duplicate must not bump tallies, got %d", got)
	}
	if s.notes.last() != NoticeAlreadyVoted {
		t.Errorf("Expected already-voted notice, got %q", s.notes.last())
	}
	if n := testutil.CountVotes(t, conn); n != 1 {
		t.Errorf("Expected 1 vote row, got %d", n)
	}
}

func TestCoordinator_DuplicateLooksUpPriorVote(t *testing.T) {
	l := &scriptedLedger{
		submitErrs: []error{&ledger.DuplicateVoteError{}},
		status:     ledger.VoterStatus{HasVoted: true, VotedFor: "p2"},
	}
	coord, rec, _, _ := newScripted(t, l)

	out, err := coord.AttemptVote(context.Background(), "p1")
	if err != nil {
		t.Fatalf("AttemptVote failed: %v", err)
	}
	if out.Result != Duplicate || out.VotedFor != "p2" {
		t.Errorf("Expected duplicate for p2, got %+v", out)
	}
	if l.statusCalls.Load() != 1 {
		t.Errorf("Expected 1 status lookup, got %d", l.statusCalls.Load())
	}
	if rec.VotedFor() != "p2" {
		t.Errorf("Expected projection VotedFor p2, got %q", rec.VotedFor())
	}
}

func TestCoordinator_TransientFailureAllowsRetry(t *testing.T) {
	transient := fmt.Errorf("record vote: %w", ledger.ErrTransient)
	l := &scriptedLedger{submitErrs: []error{transient}}
	coord, rec, store, notes := newScripted(t, l)
	ctx := context.Background()

	out, err := coord.AttemptVote(ctx, "p1")
	if err != nil {
		t.Fatalf("AttemptVote failed: %v", err)
	}
	if out.Result != Failure || !errors.Is(out.Err, ledger.ErrTransient) {
		t.Errorf("Expected transient failure, got %+v", out)
	}
	if rec.HasVoted() {
		t.Error("Transient failure must not set HasVoted")
	}
	if _, ok := store.VotedMarker(); ok {
		t.Error("Transient failure must not write a voted marker")
	}
	if notes.last() != NoticeFailure {
		t.Errorf("Expected failure notice, got %q", notes.last())
	}

	// Retry for a different participant
	out, err = coord.AttemptVote(ctx, "p2")
	if err != nil || out.Result != Success {
		t.Fatalf("Expected retry to succeed, got %+v, %v", out, err)
	}
	if rec.VotedFor() != "p2" {
		t.Errorf("Expected VotedFor p2, got %q", rec.VotedFor())
	}
}

func TestCoordinator_SingleFlight(t *testing.T) {
	l := &scriptedLedger{
		gate:     make(chan struct{}),
		inflight: make(chan struct{}, 1),
	}
	coord, _, _, _ := newScripted(t, l)
	ctx := context.Background()

	first := make(chan Outcome, 1)
	go func() {
		out, _ := coord.AttemptVote(ctx, "p1")
		first <- out
	}()

	select {
	case <-l.inflight:
	case <-time.After(2 * time.Second):
		t.Fatal("First attempt never reached the ledger")
	}
	if coord.State() != Submitting {
		t.Errorf("Expected Submitting, got %s", coord.State())
	}

	var rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := coord.AttemptVote(ctx, "p2"); errors.Is(err, ErrAttemptInProgress) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	if rejected.Load() != 10 {
		t.Errorf("Expected 10 rejections, got %d", rejected.Load())
	}

	close(l.gate)
	if out := <-first; out.Result != Success {
		t.Errorf("Expected first attempt to succeed, got %+v", out)
	}
	if l.submitCalls.Load() != 1 {
		t.Errorf("Expected 1 submission, got %d", l.submitCalls.Load())
	}
}

func TestCoordinator_StageAndCancel(t *testing.T) {
	l := &scriptedLedger{}
	coord, _, _, _ := newScripted(t, l)
	ctx := context.Background()

	if _, err := coord.Confirm(ctx); !errors.Is(err, ErrNotStaged) {
		t.Errorf("Expected ErrNotStaged, got %v", err)
	}
	if err := coord.Cancel(); !errors.Is(err, ErrNotStaged) {
		t.Errorf("Expected ErrNotStaged, got %v", err)
	}

	if err := coord.Stage("p1"); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if err := coord.Stage("p2"); !errors.Is(err, ErrAttemptInProgress) {
		t.Errorf("Expected ErrAttemptInProgress, got %v", err)
	}
	if err := coord.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if coord.State() != Idle {
		t.Errorf("Expected Idle, got %s", coord.State())
	}
	if l.submitCalls.Load() != 0 {
		t.Error("Cancelled attempt must not submit")
	}

	if err := coord.Stage("p2"); err != nil {
		t.Fatalf("Stage after cancel failed: %v", err)
	}
	out, err := coord.Confirm(ctx)
	if err != nil || out.ParticipantID != "p2" {
		t.Errorf("Expected confirmed vote for p2, got %+v, %v", out, err)
	}
}

func TestCoordinator_NotReady(t *testing.T) {
	store := identity.NewStore(identity.NewMemoryKV())
	rec := tally.NewReconciler(emptySource{}, store, tally.Config{})
	defer rec.Close()
	coord := New(&scriptedLedger{}, rec, store, nil)

	if _, err := coord.AttemptVote(context.Background(), "p1"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestCoordinator_SingleVotePerIdentity(t *testing.T) {
	const voters = 6
	const tabs = 3

	conn := testutil.SetupTestDB(t)
	participants := []string{
		testutil.CreateTestParticipant(t, conn, "Aroha"),
		testutil.CreateTestParticipant(t, conn, "Bjorn"),
		testutil.CreateTestParticipant(t, conn, "Chiara"),
	}

	// Each voter has one profile shared by several tabs
	var stacks []stack
	for v := 0; v < voters; v++ {
		kv := identity.NewMemoryKV()
		for i := 0; i < tabs; i++ {
			stacks = append(stacks, newStack(t, conn, kv))
		}
	}

	var successes, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i, s := range stacks {
		for round := 0; round < 2; round++ {
			wg.Add(1)
			go func(s stack, pid string) {
				defer wg.Done()
				out, err := s.coord.AttemptVote(context.Background(), pid)
				if err != nil {
					return
				}
				switch out.Result {
				case Success:
					successes.Add(1)
				case Duplicate:
					duplicates.Add(1)
				default:
					t.Errorf("Unexpected failure: %v", out.Err)
				}
			}(s, participants[(i+round)%len(participants)])
		}
	}
	wg.Wait()

	if successes.Load() != voters {
		t.Errorf("Expected %d successful votes, got %d", voters, successes.Load())
	}

	rows, err := conn.Query(`SELECT voter_identifier, COUNT(*) FROM vote GROUP BY voter_identifier`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	perToken := map[string]int{}
	for rows.Next() {
		var token string
		var n int
		if err := rows.Scan(&token, &n); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		perToken[token] = n
	}
	rows.Close()

	if len(perToken) != voters {
		t.Errorf("Expected %d distinct voters, got %d", voters, len(perToken))
	}
	for token, n := range perToken {
		if n != 1 {
			t.Errorf("Voter %s has %d votes", token, n)
		}
	}
}
