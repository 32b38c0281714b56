// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateVote is the authoritative "this voter already voted"
	// rejection. It is never retried.
	ErrDuplicateVote = errors.New("voter has already cast a vote")

	// ErrTransient marks failures that are not a verdict on the vote
	// (network errors, 5xx, database errors). Safe to retry.
	ErrTransient = errors.New("ledger temporarily unavailable")

	// ErrUnknownParticipant is returned when a vote references a
	// participant that does not exist.
	ErrUnknownParticipant = errors.New("participant not found")

	// ErrConflict is a backend-level uniqueness violation on insert
	ErrConflict = errors.New("unique constraint violation")

	ErrNotFound = errors.New("not found")
)

// DuplicateVoteError carries the participant of the prior vote when the
// ledger already knows it (pre-check hit). VotedFor is empty when the
// rejection came from the uniqueness constraint.
type DuplicateVoteError struct {
	VotedFor string
}

func (e *DuplicateVoteError) Error() string {
	if e.VotedFor == "" {
		return ErrDuplicateVote.Error()
	}
	return fmt.Sprintf("%s (voted for %s)", ErrDuplicateVote, e.VotedFor)
}

func (e *DuplicateVoteError) Is(target error) bool {
	return target == ErrDuplicateVote
}

func transient(op string, err error) error {
	if errors.Is(err, ErrTransient) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
