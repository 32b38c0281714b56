// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/middleware"
	"github.com/danielhkuo/fingervote/models"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 2000
)

// ParticipantStore is the roster repository; *ledger.SQLBackend implements it
type ParticipantStore interface {
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	GetParticipant(ctx context.Context, id string) (models.Participant, error)
	CreateParticipant(ctx context.Context, req models.ParticipantRequest) (models.Participant, error)
	UpdateParticipant(ctx context.Context, id string, req models.ParticipantRequest) (models.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error
}

type ParticipantHandler struct {
	store ParticipantStore
	cfg   cliparse.Config
}

func NewParticipantHandler(store ParticipantStore, cfg cliparse.Config) *ParticipantHandler {
	return &ParticipantHandler{store: store, cfg: cfg}
}

// ListParticipants handles GET /participants
func (h *ParticipantHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.store.ListParticipants(r.Context())
	if err != nil {
		slog.Error("failed to list participants", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, participants)
}

// GetParticipant handles GET /participants/{id}
func (h *ParticipantHandler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "id is required")
		return
	}

	p, err := h.store.GetParticipant(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Participant not found")
		return
	}
	if err != nil {
		slog.Error("failed to get participant", "error", err, "participant_id", id)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, p)
}

// CreateParticipant handles POST /participants (admin)
func (h *ParticipantHandler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	req, ok := parseParticipantRequest(w, r)
	if !ok {
		return
	}

	p, err := h.store.CreateParticipant(r.Context(), req)
	if err != nil {
		slog.Error("failed to create participant", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create participant")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, p)
}

// UpdateParticipant handles PUT /participants/{id} (admin)
func (h *ParticipantHandler) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "id is required")
		return
	}

	req, ok := parseParticipantRequest(w, r)
	if !ok {
		return
	}

	p, err := h.store.UpdateParticipant(r.Context(), id, req)
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Participant not found")
		return
	}
	if err != nil {
		slog.Error("failed to update participant", "error", err, "participant_id", id)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update participant")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, p)
}

// DeleteParticipant handles DELETE /participants/{id} (admin).
// Votes for the participant are removed with it.
func (h *ParticipantHandler) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "id is required")
		return
	}

	err := h.store.DeleteParticipant(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Participant not found")
		return
	}
	if err != nil {
		slog.Error("failed to delete participant", "error", err, "participant_id", id)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete participant")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseParticipantRequest(w http.ResponseWriter, r *http.Request) (models.ParticipantRequest, bool) {
	var req models.ParticipantRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return req, false
	}

	req.Name = strings.TrimSpace(req.Name)
	req.PictureURL = strings.TrimSpace(req.PictureURL)
	req.Country = strings.TrimSpace(req.Country)
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" {
			req.Description = nil
		} else {
			req.Description = &d
		}
	}

	switch {
	case req.Name == "":
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return req, false
	case len(req.Name) > maxNameLength:
		middleware.ErrorResponse(w, http.StatusBadRequest, "name must be at most 100 characters")
		return req, false
	case req.Age <= 0:
		middleware.ErrorResponse(w, http.StatusBadRequest, "age must be positive")
		return req, false
	case req.Description != nil && len(*req.Description) > maxDescriptionLength:
		middleware.ErrorResponse(w, http.StatusBadRequest, "description must be at most 2000 characters")
		return req, false
	}

	return req, true
}
