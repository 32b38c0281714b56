// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"

	"github.com/danielhkuo/fingervote/models"
)

// Backend is the row-level API of the vote store.
//
// InsertVote must return an error wrapping ErrConflict when the store's
// uniqueness constraint on voter_identifier rejects the row, and
// ErrUnknownParticipant when the participant does not exist.
type Backend interface {
	// CountVotes aggregates per participant on the store side
	CountVotes(ctx context.Context) (map[string]int64, error)
	FindVotesByVoter(ctx context.Context, voterID string, limit int) ([]models.Vote, error)
	InsertVote(ctx context.Context, participantID, voterID string) (models.Vote, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)
}
