// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielhkuo/fingervote/models"
)

type VoterStatus struct {
	HasVoted bool
	VotedFor string
}

// Client reads tallies and voter status and records votes against a
// Backend. It holds no per-voter state; the caller passes the voter token.
type Client struct {
	backend Backend
}

func NewClient(backend Backend) *Client {
	return &Client{backend: backend}
}

// FetchTallies returns a snapshot of per-participant counts
func (c *Client) FetchTallies(ctx context.Context) (map[string]int64, error) {
	counts, err := c.backend.CountVotes(ctx)
	if err != nil {
		return nil, transient("fetch tallies", err)
	}
	if counts == nil {
		counts = make(map[string]int64)
	}
	return counts, nil
}

// FetchVoterStatus reports whether token has a vote on the ledger.
// More than one row cannot happen under the uniqueness constraint; if it
// ever does, the oldest row is reported.
func (c *Client) FetchVoterStatus(ctx context.Context, token string) (VoterStatus, error) {
	if token == "" {
		return VoterStatus{}, errors.New("voter token required")
	}

	votes, err := c.backend.FindVotesByVoter(ctx, token, 2)
	if err != nil {
		return VoterStatus{}, transient("fetch voter status", err)
	}
	if len(votes) == 0 {
		return VoterStatus{}, nil
	}
	if len(votes) > 1 {
		slog.Warn("multiple votes recorded for one voter", "votes", len(votes))
	}
	return VoterStatus{HasVoted: true, VotedFor: votes[0].ParticipantID}, nil
}

// SubmitVote records a vote for participantID.
//
// The pre-check only saves a write in the common case. Correctness comes
// from the store's uniqueness constraint: a writer that loses the race
// between pre-check and insert gets ErrConflict from the backend, which is
// reported as a duplicate.
func (c *Client) SubmitVote(ctx context.Context, participantID, token string) (models.Vote, error) {
	if participantID == "" {
		return models.Vote{}, errors.New("participant id required")
	}
	if token == "" {
		return models.Vote{}, errors.New("voter token required")
	}

	existing, err := c.backend.FindVotesByVoter(ctx, token, 1)
	if err != nil {
		return models.Vote{}, transient("check prior vote", err)
	}
	if len(existing) > 0 {
		return models.Vote{}, &DuplicateVoteError{VotedFor: existing[0].ParticipantID}
	}

	vote, err := c.backend.InsertVote(ctx, participantID, token)
	switch {
	case err == nil:
		return vote, nil
	case errors.Is(err, ErrConflict):
		slog.Info("vote rejected by uniqueness constraint", "participant_id", participantID)
		return models.Vote{}, &DuplicateVoteError{}
	case errors.Is(err, ErrUnknownParticipant):
		return models.Vote{}, fmt.Errorf("record vote: %w", err)
	default:
		return models.Vote{}, transient("record vote", err)
	}
}

// ListParticipants returns the current roster
func (c *Client) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	participants, err := c.backend.ListParticipants(ctx)
	if err != nil {
		return nil, transient("list participants", err)
	}
	return participants, nil
}
