// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/fingervote/auth"
)

// Storage keys
const (
	KeyVoterID     = "voter_id"
	KeyVotedMarker = "voted_marker"
	KeyAdminToken  = "admin_token"
)

// VotedMarker is the locally cached "already voted" flag. It is only a
// hint; the ledger stays authoritative.
type VotedMarker struct {
	Token         string    `json:"token"`
	ParticipantID string    `json:"participant_id"`
	MarkedAt      time.Time `json:"marked_at"`
}

// Store is the voter's session context: the identity token, the voted
// marker and, for administrators, the access token. Construct one per
// process and share it.
type Store struct {
	kv KV

	mu        sync.Mutex
	token     string
	ephemeral bool
	marker    *VotedMarker

	newToken func() (string, error)
	now      func() time.Time
}

func NewStore(kv KV) *Store {
	return &Store{
		kv:       kv,
		newToken: auth.GenerateVoterIdentifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the voter token, creating and persisting one on
// first use. When storage cannot be read or written the token lives only
// in this Store; it is never replaced for the life of the process.
func (s *Store) GetOrCreate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}

	stored, ok, err := s.kv.Get(KeyVoterID)
	if err != nil {
		// Never write over a token we could not read
		return s.useEphemeral(err)
	}
	if ok && stored != "" {
		s.token = stored
		return s.token, nil
	}

	token, err := s.newToken()
	if err != nil {
		return "", fmt.Errorf("generate voter token: %w", err)
	}
	// Adopt whatever is stored: another process on this profile may have
	// created the token between our Get and this write
	stored, err = s.kv.SetIfAbsent(KeyVoterID, token)
	if err != nil {
		slog.Warn("voter token not persisted, using ephemeral identity", "error", err)
		s.token = token
		s.ephemeral = true
		return s.token, nil
	}
	s.token = stored
	if stored != token {
		slog.Info("voter identity adopted from another process")
		return s.token, nil
	}
	slog.Info("voter identity created")
	return s.token, nil
}

func (s *Store) useEphemeral(cause error) (string, error) {
	token, err := s.newToken()
	if err != nil {
		return "", fmt.Errorf("generate voter token: %w", err)
	}
	slog.Warn("identity storage unreadable, using ephemeral identity", "error", cause)
	s.token = token
	s.ephemeral = true
	return s.token, nil
}

// Ephemeral reports whether the token will be lost when the process exits
func (s *Store) Ephemeral() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ephemeral
}

// MarkVoted records that the current token has voted for participantID.
// The marker is kept in memory even if persisting it fails.
func (s *Store) MarkVoted(participantID string) error {
	token, err := s.GetOrCreate()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marker != nil && s.marker.Token == token && s.marker.ParticipantID == participantID {
		return nil
	}
	m := VotedMarker{Token: token, ParticipantID: participantID, MarkedAt: s.now()}
	s.marker = &m

	if s.ephemeral {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode voted marker: %w", err)
	}
	if err := s.kv.Set(KeyVotedMarker, string(data)); err != nil {
		return fmt.Errorf("persist voted marker: %w", err)
	}
	return nil
}

// VotedMarker returns the marker for the current token. Markers written
// for a different token are ignored.
func (s *Store) VotedMarker() (VotedMarker, bool) {
	token, err := s.GetOrCreate()
	if err != nil {
		return VotedMarker{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marker != nil && s.marker.Token == token {
		return *s.marker, true
	}
	if s.ephemeral {
		return VotedMarker{}, false
	}

	raw, ok, err := s.kv.Get(KeyVotedMarker)
	if err != nil || !ok {
		return VotedMarker{}, false
	}
	var m VotedMarker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		slog.Warn("ignoring corrupt voted marker", "error", err)
		return VotedMarker{}, false
	}
	if m.Token != token {
		return VotedMarker{}, false
	}
	s.marker = &m
	return m, true
}

func (s *Store) AdminToken() (string, bool) {
	v, ok, err := s.kv.Get(KeyAdminToken)
	if err != nil || !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *Store) SetAdminToken(token string) error {
	if token == "" {
		return errors.New("empty admin token")
	}
	return s.kv.Set(KeyAdminToken, token)
}

func (s *Store) ClearAdminToken() error {
	return s.kv.Delete(KeyAdminToken)
}
