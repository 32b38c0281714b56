// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the fingervote ledger server.

fingervote runs a live popularity vote in which every voter may cast
exactly one vote across the whole roster, ever. The server owns the vote
ledger; the voter client lives in cmd/fingervote.

# Starting the Server

The server reads environment variables (optionally from .env) or flags:

	DATABASE_URL=fingervote.db JWT_SECRET=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..." --jwt-secret ...

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - JWT_SECRET (--jwt-secret): administrator session signing secret

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - ADMIN_EMAIL, ADMIN_PASSWORD: seed or reset the administrator account
  - REDIS_URL (--redis): tally cache and cross-instance vote feed
  - KAFKA_BROKERS, KAFKA_TOPIC: export every committed vote

# Architecture

  - handlers: HTTP request handlers (votes, participants, auth)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, JSON helpers
  - ledger: vote storage backends and the one-vote ledger client
  - feed: vote change feed (in-process hub, redis bridge, kafka export)
  - db: connection and schema for both database engines
  - auth: identifiers, password hashing, session tokens
  - identity, tally, coordinator: voter-side state used by cmd/fingervote
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
