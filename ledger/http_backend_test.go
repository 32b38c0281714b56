// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/fingervote/models"
)

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: code})
}

func TestHTTPBackend_InsertVoteStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
		notErr  error
	}{
		{"conflict is duplicate", http.StatusConflict, ErrDuplicateVote, ErrTransient},
		{"not found is unknown participant", http.StatusNotFound, ErrUnknownParticipant, ErrDuplicateVote},
		{"server error is transient", http.StatusInternalServerError, ErrTransient, ErrDuplicateVote},
		{"unavailable is transient", http.StatusServiceUnavailable, ErrTransient, ErrDuplicateVote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					json.NewEncoder(w).Encode([]models.Vote{})
					return
				}
				writeError(w, tt.status, http.StatusText(tt.status))
			}))
			defer srv.Close()

			client := NewClient(NewHTTPBackend(srv.URL, srv.Client()))
			_, err := client.SubmitVote(context.Background(), "p1", "voter-1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, tt.notErr) {
				t.Errorf("Did not expect %v in %v", tt.notErr, err)
			}
		})
	}
}

func TestHTTPBackend_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(NewHTTPBackend(url, nil))
	ctx := context.Background()

	if _, err := client.FetchTallies(ctx); !errors.Is(err, ErrTransient) {
		t.Errorf("Expected ErrTransient from FetchTallies, got %v", err)
	}
	if _, err := client.FetchVoterStatus(ctx, "voter-1"); !errors.Is(err, ErrTransient) {
		t.Errorf("Expected ErrTransient from FetchVoterStatus, got %v", err)
	}
	_, err := client.SubmitVote(ctx, "p1", "voter-1")
	if !errors.Is(err, ErrTransient) || errors.Is(err, ErrDuplicateVote) {
		t.Errorf("Expected transient, non-duplicate error, got %v", err)
	}
}

func TestHTTPBackend_ReadsAndQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rpc/vote-counts":
			json.NewEncoder(w).Encode([]models.VoteCount{{ParticipantID: "p1", VoteCount: 3}, {ParticipantID: "p2", VoteCount: 1}})
		case "/votes":
			if r.URL.Query().Get("voter_identifier") != "voter-1" || r.URL.Query().Get("limit") != "2" {
				writeError(w, http.StatusBadRequest, "bad query")
				return
			}
			json.NewEncoder(w).Encode([]models.Vote{{ID: "v1", ParticipantID: "p2", VoterIdentifier: "voter-1"}})
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
	}))
	defer srv.Close()

	client := NewClient(NewHTTPBackend(srv.URL+"/", srv.Client()))
	ctx := context.Background()

	tallies, err := client.FetchTallies(ctx)
	if err != nil {
		t.Fatalf("FetchTallies failed: %v", err)
	}
	if tallies["p1"] != 3 || tallies["p2"] != 1 {
		t.Errorf("Unexpected tallies: %v", tallies)
	}

	status, err := client.FetchVoterStatus(ctx, "voter-1")
	if err != nil {
		t.Fatalf("FetchVoterStatus failed: %v", err)
	}
	if !status.HasVoted || status.VotedFor != "p2" {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestHTTPBackend_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	backend := NewHTTPBackend(srv.URL, srv.Client())
	backend.timeout = 50 * time.Millisecond

	_, err := NewClient(backend).FetchTallies(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Expected ErrTransient on timeout, got %v", err)
	}
}

func TestHTTPBackend_SubscribeVotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "event: vote\ndata: {\"vote_id\":\"v1\",\"participant_id\":\"p1\"}\n\n")
		fmt.Fprint(w, "event: other\ndata: {}\n\n")
		fmt.Fprint(w, "event: vote\ndata: not-json\n\n")
		fmt.Fprint(w, "event: vote\ndata: {\"vote_id\":\"v2\",\"participant_id\":\"p2\"}\n\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := NewHTTPBackend(srv.URL, srv.Client()).SubscribeVotes(ctx)
	if err != nil {
		t.Fatalf("SubscribeVotes failed: %v", err)
	}

	var got []models.VoteEvent
	for ev := range events {
		got = append(got, ev)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 vote events, got %d: %+v", len(got), got)
	}
	if got[0].VoteID != "v1" || got[1].ParticipantID != "p2" {
		t.Errorf("Unexpected events: %+v", got)
	}
}

func TestStatusError_Unwrap(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, ErrConflict},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &StatusError{StatusCode: tt.status}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %d to unwrap to %v", tt.status, tt.want)
			}
		})
	}

	if errors.Unwrap(&StatusError{StatusCode: http.StatusBadRequest}) != nil {
		t.Error("Expected 400 to unwrap to nil")
	}
}
