// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielhkuo/fingervote/auth"
	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/db"
)

const (
	TestJWTSecret     = "test-jwt-secret"
	TestAdminEmail    = "admin@example.com"
	TestAdminPassword = "correct horse battery staple"
)

// SetupTestDB opens a fresh SQLite database in a temp dir with the full
// schema. It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fingervote.db")
	conn, err := db.Open(db.TypeSQLite, path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         3318,
		DatabaseURL:  "file::memory:",
		DatabaseType: db.TypeSQLite,
		JWTSecret:    TestJWTSecret,
	}
}

// CreateTestParticipant inserts a participant and returns its ID
func CreateTestParticipant(t *testing.T, conn *sql.DB, name string) string {
	t.Helper()

	id, _ := auth.GenerateID(16)
	_, err := conn.Exec(`
		INSERT INTO participant (id, name, picture_url, country, age, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, name, "https://example.com/"+id+".png", "NZ", 30, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test participant: %v", err)
	}

	return id
}

// CreateTestVote inserts a vote row directly, bypassing the ledger client
func CreateTestVote(t *testing.T, conn *sql.DB, participantID, voterID string) string {
	t.Helper()

	id, _ := auth.GenerateID(16)
	_, err := conn.Exec(`
		INSERT INTO vote (id, participant_id, voter_identifier, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, participantID, voterID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test vote: %v", err)
	}

	return id
}

// CreateTestAdmin inserts an administrator with TestAdminPassword and
// returns its ID
func CreateTestAdmin(t *testing.T, conn *sql.DB, email string) string {
	t.Helper()

	id, _ := auth.GenerateID(16)
	hash, err := auth.HashPassword(TestAdminPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	_, err = conn.Exec(`
		INSERT INTO admin_user (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, email, hash, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test admin: %v", err)
	}

	return id
}

// CountVotes returns the number of vote rows
func CountVotes(t *testing.T, conn *sql.DB) int {
	t.Helper()

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM vote`).Scan(&n); err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	return n
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
