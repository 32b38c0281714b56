// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types shared by the
ledger server and the voter client.

# Request Types

Types for parsing incoming JSON:

  - ParticipantRequest: name, picture_url, country, age, description
  - InsertVoteRequest: participant_id, voter_identifier
  - SignInRequest: email, password

# Response Types

  - SignInResponse: access_token, expires_at, user
  - SessionResponse: user (null when signed out), expires_at
  - VoteCount: participant_id, vote_count
  - ErrorResponse: error, message

# Domain Types

  - Participant: roster entry, managed by administrators
  - Vote: immutable ledger row, one per voter_identifier
  - VoteEvent: change-feed payload for a committed vote
  - AdminUser, AdminSession: administrator credentials and sessions

# Constants

Feed event names:

	EventVote = "vote"
*/
package models
