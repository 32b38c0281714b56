// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger records votes and reads tallies from the vote store.

# Client

Client is the voter-facing API:

  - FetchTallies: per-participant counts, aggregated by the store
  - FetchVoterStatus: whether a voter token already has a vote
  - SubmitVote: pre-check, then insert
  - ListParticipants: the roster

SubmitVote's pre-check is an optimisation only. Two submissions with the
same token can both pass it; the store's UNIQUE constraint on
voter_identifier then admits exactly one and the other is reported as
ErrDuplicateVote.

# Backends

  - SQLBackend: PostgreSQL or SQLite, publishes a VoteEvent per insert
  - CachedBackend: Redis-cached tallies in front of another Backend
  - HTTPBackend: the REST surface served by this module's router, plus
    the vote stream and administrator operations

# Errors

  - ErrDuplicateVote (or *DuplicateVoteError): authoritative, never retried
  - ErrTransient: network, 5xx, or database failure; retryable
  - ErrUnknownParticipant: the participant does not exist
  - ErrConflict: backend-level uniqueness violation, mapped to ErrDuplicateVote by Client
*/
package ledger
