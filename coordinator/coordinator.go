// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/models"
)

// Entry guard rejections
var (
	ErrNotReady          = errors.New("voting not ready")
	ErrAlreadyVoted      = errors.New("already voted")
	ErrAttemptInProgress = errors.New("a vote attempt is already in progress")
	ErrNotStaged         = errors.New("no vote attempt staged")
)

type State int

const (
	Idle State = iota
	GestureStaged
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GestureStaged:
		return "gesture_staged"
	case Submitting:
		return "submitting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Result int

const (
	Success Result = iota
	Duplicate
	Failure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Duplicate:
		return "duplicate"
	case Failure:
		return "failure"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Outcome of a settled attempt. VotedFor is the participant the voter's
// recorded vote is for, if known. Err is set on Failure.
type Outcome struct {
	Result        Result
	ParticipantID string
	VotedFor      string
	Vote          models.Vote
	Err           error
}

type Ledger interface {
	SubmitVote(ctx context.Context, participantID, token string) (models.Vote, error)
	FetchVoterStatus(ctx context.Context, token string) (ledger.VoterStatus, error)
}

// Projection is the part of the reconciler the coordinator reads and updates
type Projection interface {
	Ready() bool
	HasVoted() bool
	VotedFor() string
	RecordLocalVoteOutcome(participantID string)
	MarkVoted(votedFor string)
}

type Identity interface {
	GetOrCreate() (string, error)
	MarkVoted(participantID string) error
}

// Coordinator runs one vote attempt at a time:
// Idle -> GestureStaged -> Submitting -> settled, then back to Idle.
type Coordinator struct {
	ledger   Ledger
	proj     Projection
	ident    Identity
	notifier Notifier

	mu     sync.Mutex
	state  State
	staged string
}

func New(l Ledger, proj Projection, ident Identity, notifier Notifier) *Coordinator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Coordinator{
		ledger:   l,
		proj:     proj,
		ident:    ident,
		notifier: notifier,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stage opens an attempt for participantID if the voter may vote and no
// other attempt is open. The check and the state change happen under one
// lock.
func (c *Coordinator) Stage(participantID string) error {
	if participantID == "" {
		return errors.New("participant id required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state != Idle:
		return ErrAttemptInProgress
	case !c.proj.Ready():
		return ErrNotReady
	case c.proj.HasVoted():
		return ErrAlreadyVoted
	}

	c.state = GestureStaged
	c.staged = participantID
	return nil
}

// Cancel abandons a staged attempt
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != GestureStaged {
		return ErrNotStaged
	}
	c.state = Idle
	c.staged = ""
	return nil
}

// Confirm submits the staged vote and settles it. The returned error is
// only for guard failures; ledger failures are reported in the Outcome.
func (c *Coordinator) Confirm(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.state != GestureStaged {
		c.mu.Unlock()
		return Outcome{}, ErrNotStaged
	}
	c.state = Submitting
	participantID := c.staged
	c.mu.Unlock()

	out := c.submit(ctx, participantID)

	// Projection is already updated, so the guard sees HasVoted first
	c.mu.Lock()
	c.state = Idle
	c.staged = ""
	c.mu.Unlock()

	return out, nil
}

// AttemptVote stages and confirms in one call
func (c *Coordinator) AttemptVote(ctx context.Context, participantID string) (Outcome, error) {
	if err := c.Stage(participantID); err != nil {
		return Outcome{}, err
	}
	return c.Confirm(ctx)
}

func (c *Coordinator) submit(ctx context.Context, participantID string) Outcome {
	out := Outcome{ParticipantID: participantID}

	token, err := c.ident.GetOrCreate()
	if err != nil {
		out.Result = Failure
		out.Err = fmt.Errorf("voter identity: %w", err)
		c.notifier.Notify(NoticeFailure, "Could not load your voter identity. Please try again.")
		return out
	}

	vote, err := c.ledger.SubmitVote(ctx, participantID, token)
	switch {
	case err == nil:
		out.Result = Success
		out.Vote = vote
		out.VotedFor = participantID
		c.proj.RecordLocalVoteOutcome(participantID)
		c.markLocal(participantID)
		slog.Info("vote submitted", "participant_id", participantID, "vote_id", vote.ID)
		c.notifier.Notify(NoticeSuccess, "Your vote has been recorded.")

	case errors.Is(err, ledger.ErrDuplicateVote):
		out.Result = Duplicate
		out.VotedFor = c.learnVotedFor(ctx, token, err)
		c.markLocal(out.VotedFor)
		slog.Info("vote rejected as duplicate", "participant_id", participantID, "voted_for", out.VotedFor)
		c.notifier.Notify(NoticeAlreadyVoted, alreadyVotedMessage(out.VotedFor))

	default:
		out.Result = Failure
		out.Err = err
		slog.Warn("vote submission failed", "participant_id", participantID, "error", err)
		c.notifier.Notify(NoticeFailure, failureMessage(err))
	}

	return out
}

// learnVotedFor marks the projection as voted and finds out for whom:
// from the rejection, the projection, or finally the ledger.
func (c *Coordinator) learnVotedFor(ctx context.Context, token string, err error) string {
	var votedFor string
	var dup *ledger.DuplicateVoteError
	if errors.As(err, &dup) {
		votedFor = dup.VotedFor
	}
	if votedFor == "" {
		votedFor = c.proj.VotedFor()
	}
	c.proj.MarkVoted(votedFor)

	if votedFor != "" {
		return votedFor
	}

	status, err := c.ledger.FetchVoterStatus(ctx, token)
	if err != nil {
		slog.Warn("could not look up prior vote", "error", err)
		return ""
	}
	if status.VotedFor != "" {
		c.proj.MarkVoted(status.VotedFor)
	}
	return status.VotedFor
}

func (c *Coordinator) markLocal(participantID string) {
	if err := c.ident.MarkVoted(participantID); err != nil {
		slog.Warn("could not persist voted marker", "error", err)
	}
}

func alreadyVotedMessage(votedFor string) string {
	if votedFor == "" {
		return "You have already voted."
	}
	return fmt.Sprintf("You have already voted for %s.", votedFor)
}

func failureMessage(err error) string {
	if errors.Is(err, ledger.ErrUnknownParticipant) {
		return "That participant no longer exists."
	}
	return "Your vote could not be submitted. Please try again."
}
