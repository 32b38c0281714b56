// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name    string
		byteLen int
		wantLen int // hex encoded length = byteLen * 2
	}{
		{"8 bytes", 8, 16},
		{"16 bytes", 16, 32},
		{"24 bytes", 24, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := GenerateID(tt.byteLen)
			if err != nil {
				t.Fatalf("GenerateID() error = %v", err)
			}
			if len(id) != tt.wantLen {
				t.Errorf("GenerateID() length = %d, want %d", len(id), tt.wantLen)
			}
			// Verify it's valid hex
			for _, c := range id {
				if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
					t.Errorf("GenerateID() contains invalid hex char: %c", c)
				}
			}
		})
	}

	// Test randomness - two IDs should be different
	id1, _ := GenerateID(16)
	id2, _ := GenerateID(16)
	if id1 == id2 {
		t.Error("GenerateID() produced duplicate IDs (extremely unlikely)")
	}
}

func TestGenerateVoterIdentifier(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateVoterIdentifier()
		if err != nil {
			t.Fatalf("GenerateVoterIdentifier() error = %v", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("GenerateVoterIdentifier() = %q, not a UUID: %v", id, err)
		}
		if parsed.Version() != 4 {
			t.Errorf("Expected UUID version 4, got %d", parsed.Version())
		}

		if seen[id] {
			t.Fatalf("GenerateVoterIdentifier() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("HashPassword() returned the plaintext")
	}

	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("CheckPassword() with right password = %v", err)
	}
	if err := CheckPassword(hash, "battery staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("CheckPassword() with wrong password = %v, want ErrInvalidCredentials", err)
	}
	if err := CheckPassword("not-a-hash", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("CheckPassword() with malformed hash = %v, want ErrInvalidCredentials", err)
	}
}

func TestSessionToken_RoundTrip(t *testing.T) {
	now := time.Now()
	token, err := SignSessionToken("secret", "sess-1", "user-1", "admin@example.com", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignSessionToken() error = %v", err)
	}

	claims, err := ParseSessionToken("secret", token)
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if claims.ID != "sess-1" {
		t.Errorf("Expected session id sess-1, got %q", claims.ID)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Expected subject user-1, got %q", claims.Subject)
	}
	if claims.Email != "admin@example.com" {
		t.Errorf("Expected email admin@example.com, got %q", claims.Email)
	}
}

func TestParseSessionToken_Rejects(t *testing.T) {
	now := time.Now()
	valid, _ := SignSessionToken("secret", "sess-1", "user-1", "a@b.c", now, now.Add(time.Hour))
	expired, _ := SignSessionToken("secret", "sess-2", "user-1", "a@b.c", now.Add(-2*time.Hour), now.Add(-time.Hour))
	noID, _ := SignSessionToken("secret", "", "user-1", "a@b.c", now, now.Add(time.Hour))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other-secret", valid},
		{"expired", "secret", expired},
		{"missing session id", "secret", noID},
		{"garbage", "secret", "not.a.jwt"},
		{"empty", "secret", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSessionToken(tt.secret, tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ParseSessionToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
