// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/feed"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/middleware"
	"github.com/danielhkuo/fingervote/models"
)

const (
	DefaultKeepAlive = 25 * time.Second
	maxVoteLimit     = 100
)

type VoteHandler struct {
	backend ledger.Backend
	hub     *feed.Hub
	cfg     cliparse.Config

	// KeepAlive is the interval between stream ping comments
	KeepAlive time.Duration
}

func NewVoteHandler(backend ledger.Backend, hub *feed.Hub, cfg cliparse.Config) *VoteHandler {
	return &VoteHandler{backend: backend, hub: hub, cfg: cfg, KeepAlive: DefaultKeepAlive}
}

// ListVotes handles GET /votes?voter_identifier=&limit=
func (h *VoteHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	voterID := strings.TrimSpace(r.URL.Query().Get("voter_identifier"))
	if voterID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "voter_identifier is required")
		return
	}

	limit := 1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxVoteLimit {
			middleware.ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxVoteLimit))
			return
		}
		limit = n
	}

	votes, err := h.backend.FindVotesByVoter(r.Context(), voterID, limit)
	if err != nil {
		slog.Error("failed to query votes", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, votes)
}

// InsertVote handles POST /votes
func (h *VoteHandler) InsertVote(w http.ResponseWriter, r *http.Request) {
	var req models.InsertVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	req.VoterIdentifier = strings.TrimSpace(req.VoterIdentifier)
	if req.ParticipantID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "participant_id is required")
		return
	}
	if req.VoterIdentifier == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "voter_identifier is required")
		return
	}

	// The UNIQUE constraint on voter_identifier decides duplicates
	vote, err := h.backend.InsertVote(r.Context(), req.ParticipantID, req.VoterIdentifier)
	switch {
	case errors.Is(err, ledger.ErrConflict):
		middleware.ErrorResponse(w, http.StatusConflict, "voter has already voted")
		return
	case errors.Is(err, ledger.ErrUnknownParticipant):
		middleware.ErrorResponse(w, http.StatusNotFound, "Participant not found")
		return
	case err != nil:
		slog.Error("failed to insert vote", "error", err, "participant_id", req.ParticipantID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to record vote")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, vote)
}

// VoteCounts handles GET /rpc/vote-counts
func (h *VoteHandler) VoteCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.backend.CountVotes(r.Context())
	if err != nil {
		slog.Error("failed to count votes", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	resp := make([]models.VoteCount, 0, len(counts))
	for id, n := range counts {
		resp = append(resp, models.VoteCount{ParticipantID: id, VoteCount: n})
	}
	sort.Slice(resp, func(i, j int) bool {
		return resp[i].ParticipantID < resp[j].ParticipantID
	})

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Stream handles GET /votes/stream as server-sent events. Each committed
// vote is sent as "event: vote"; comment lines keep idle connections open.
func (h *VoteHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	events, cancel := h.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("vote stream not supported", "error", err)
		return
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	slog.Info("vote stream opened", "remote", middleware.GetClientIP(r), "subscribers", h.hub.Subscribers())

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to encode vote event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", models.EventVote, data); err != nil {
				return
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
