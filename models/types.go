package models

import "time"

// Feed event names
const (
	EventVote = "vote"
)

// Request types

type ParticipantRequest struct {
	Name        string  `json:"name"`
	PictureURL  string  `json:"picture_url"`
	Country     string  `json:"country"`
	Age         int     `json:"age"`
	Description *string `json:"description,omitempty"`
}

type InsertVoteRequest struct {
	ParticipantID   string `json:"participant_id"`
	VoterIdentifier string `json:"voter_identifier"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Response types

type AdminUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type SignInResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        AdminUserInfo `json:"user"`
}

// User is nil when there is no live session
type SessionResponse struct {
	User      *AdminUserInfo `json:"user"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

type VoteCount struct {
	ParticipantID string `json:"participant_id"`
	VoteCount     int64  `json:"vote_count"`
}

// Domain types

type Participant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PictureURL  string    `json:"picture_url"`
	Country     string    `json:"country"`
	Age         int       `json:"age"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Votes are append-only; voter_identifier is unique across the ledger.
type Vote struct {
	ID              string    `json:"id"`
	ParticipantID   string    `json:"participant_id"`
	VoterIdentifier string    `json:"voter_identifier"`
	CreatedAt       time.Time `json:"created_at"`
}

// VoteEvent is broadcast on every committed vote insert. It deliberately
// omits the voter identifier.
type VoteEvent struct {
	VoteID        string    `json:"vote_id"`
	ParticipantID string    `json:"participant_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type AdminUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON
	CreatedAt    time.Time `json:"created_at"`
}

type AdminSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
