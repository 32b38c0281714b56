// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/feed"
	"github.com/danielhkuo/fingervote/handlers"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/middleware"
)

// NewRouter wires the ledger API. votes serves the vote routes (usually a
// CachedBackend over store); store owns the roster.
func NewRouter(db *sql.DB, cfg cliparse.Config, votes ledger.Backend, store handlers.ParticipantStore, hub *feed.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	voteHandler := handlers.NewVoteHandler(votes, hub, cfg)
	participantHandler := handlers.NewParticipantHandler(store, cfg)
	authHandler := handlers.NewAuthHandler(db, cfg)
	admin := authHandler.RequireAdmin

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Roster (reads public, writes admin)
	mux.HandleFunc("GET /participants", middleware.WithLogging(participantHandler.ListParticipants))
	mux.HandleFunc("GET /participants/{id}", middleware.WithLogging(participantHandler.GetParticipant))
	mux.HandleFunc("POST /participants", middleware.WithLogging(admin(participantHandler.CreateParticipant)))
	mux.HandleFunc("PUT /participants/{id}", middleware.WithLogging(admin(participantHandler.UpdateParticipant)))
	mux.HandleFunc("DELETE /participants/{id}", middleware.WithLogging(admin(participantHandler.DeleteParticipant)))

	// Vote ledger (public)
	mux.HandleFunc("GET /votes", middleware.WithLogging(voteHandler.ListVotes))
	mux.HandleFunc("POST /votes", middleware.WithLogging(voteHandler.InsertVote))
	mux.HandleFunc("GET /votes/stream", middleware.WithLogging(voteHandler.Stream))
	mux.HandleFunc("GET /rpc/vote-counts", middleware.WithLogging(voteHandler.VoteCounts))

	// Administrator sessions
	mux.HandleFunc("POST /auth/sign-in", middleware.WithLogging(authHandler.SignIn))
	mux.HandleFunc("POST /auth/sign-out", middleware.WithLogging(admin(authHandler.SignOut)))
	mux.HandleFunc("GET /auth/session", middleware.WithLogging(authHandler.Session))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fingervote API v1"))
	})

	return mux
}
