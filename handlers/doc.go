// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the fingervote ledger API.

# Handler Types

Each handler is a struct with its storage and config dependencies:

  - VoteHandler: vote inserts, voter lookups, tallies and the vote stream
  - ParticipantHandler: roster reads and admin-only roster edits
  - AuthHandler: administrator sign-in, sign-out and session checks

Handlers are created via constructor functions:

	votes := handlers.NewVoteHandler(backend, hub, cfg)
	participants := handlers.NewParticipantHandler(store, cfg)
	authHandler := handlers.NewAuthHandler(db, cfg)

# Votes

The vote table carries a UNIQUE constraint on voter_identifier. Inserts
are never pre-checked here; a second insert for the same identifier fails
inside the database and is reported as 409 Conflict:

	POST /votes                              → InsertVote
	GET  /votes?voter_identifier=...&limit=1 → ListVotes
	GET  /rpc/vote-counts                    → VoteCounts
	GET  /votes/stream                       → Stream (text/event-stream)

Stream events never carry the voter identifier.

# Administration

Roster writes are wrapped in RequireAdmin, which expects
"Authorization: Bearer <token>" from SignIn. Sessions are rows in
admin_session; SignOut revokes the row so the token stops working before
its JWT expiry.

EnsureAdminUser seeds or resets the administrator account at startup.
*/
package handlers
