// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the fingervote ledger API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	store := ledger.NewSQLBackend(db, hub)
	mux := router.NewRouter(db, cfg, store, store, hub)

The votes argument may be a ledger.CachedBackend wrapping the store so
tallies are served from redis.

# Endpoints

Health:

	GET /health

Roster (writes require Authorization: Bearer <token>):

	GET    /participants      - List, newest first
	GET    /participants/{id} - Get one
	POST   /participants      - Create
	PUT    /participants/{id} - Update
	DELETE /participants/{id} - Delete (votes cascade)

Vote ledger (public):

	GET  /votes?voter_identifier=&limit= - Votes cast by one identifier
	POST /votes                          - Insert; 409 when already voted
	GET  /votes/stream                   - Server-sent insert events
	GET  /rpc/vote-counts                - Per-participant tallies

Administrator sessions:

	POST /auth/sign-in  - Exchange credentials for a token
	POST /auth/sign-out - Revoke the current token
	GET  /auth/session  - Current administrator, or null

Every route except /health and the root is wrapped in middleware.WithLogging.
*/
package router
