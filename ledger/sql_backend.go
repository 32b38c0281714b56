// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/fingervote/auth"
	"github.com/danielhkuo/fingervote/db"
	"github.com/danielhkuo/fingervote/feed"
	"github.com/danielhkuo/fingervote/models"
)

// SQLBackend stores votes and participants in PostgreSQL or SQLite.
// Every committed vote is handed to the publisher, if any.
type SQLBackend struct {
	db  *sql.DB
	pub feed.Publisher
	now func() time.Time
}

func NewSQLBackend(conn *sql.DB, pub feed.Publisher) *SQLBackend {
	return &SQLBackend{
		db:  conn,
		pub: pub,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (b *SQLBackend) CountVotes(ctx context.Context) (map[string]int64, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT participant_id, COUNT(*)
		FROM vote
		GROUP BY participant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}

	return counts, nil
}

func (b *SQLBackend) FindVotesByVoter(ctx context.Context, voterID string, limit int) ([]models.Vote, error) {
	if limit <= 0 {
		limit = 1
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, participant_id, voter_identifier, created_at
		FROM vote
		WHERE voter_identifier = $1
		ORDER BY created_at, id
		LIMIT $2
	`, voterID, limit)
	if err != nil {
		return nil, fmt.Errorf("find votes: %w", err)
	}
	defer rows.Close()

	votes := []models.Vote{}
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.ParticipantID, &v.VoterIdentifier, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find votes: %w", err)
	}

	return votes, nil
}

// InsertVote appends a vote row. The UNIQUE constraint on
// voter_identifier is the only arbiter of "already voted".
func (b *SQLBackend) InsertVote(ctx context.Context, participantID, voterID string) (models.Vote, error) {
	id, err := auth.GenerateID(16)
	if err != nil {
		return models.Vote{}, fmt.Errorf("generate vote id: %w", err)
	}

	vote := models.Vote{
		ID:              id,
		ParticipantID:   participantID,
		VoterIdentifier: voterID,
		CreatedAt:       b.now(),
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO vote (id, participant_id, voter_identifier, created_at)
		VALUES ($1, $2, $3, $4)
	`, vote.ID, vote.ParticipantID, vote.VoterIdentifier, vote.CreatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return models.Vote{}, fmt.Errorf("insert vote: %w", ErrConflict)
		case db.IsForeignKeyViolation(err):
			return models.Vote{}, fmt.Errorf("insert vote: %w", ErrUnknownParticipant)
		}
		return models.Vote{}, fmt.Errorf("insert vote: %w", err)
	}

	slog.Info("vote recorded", "vote_id", vote.ID, "participant_id", participantID)

	if b.pub != nil {
		ev := models.VoteEvent{VoteID: vote.ID, ParticipantID: participantID, CreatedAt: vote.CreatedAt}
		if err := b.pub.Publish(ctx, ev); err != nil {
			slog.Warn("failed to publish vote event", "vote_id", vote.ID, "error", err)
		}
	}

	return vote, nil
}

// ListParticipants returns the roster, newest first
func (b *SQLBackend) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, name, picture_url, country, age, description, created_at
		FROM participant
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	return participants, nil
}

func (b *SQLBackend) GetParticipant(ctx context.Context, id string) (models.Participant, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, picture_url, country, age, description, created_at
		FROM participant
		WHERE id = $1
	`, id)

	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrNotFound
	}
	return p, err
}

func (b *SQLBackend) CreateParticipant(ctx context.Context, req models.ParticipantRequest) (models.Participant, error) {
	id, err := auth.GenerateID(16)
	if err != nil {
		return models.Participant{}, fmt.Errorf("generate participant id: %w", err)
	}

	p := models.Participant{
		ID:          id,
		Name:        req.Name,
		PictureURL:  req.PictureURL,
		Country:     req.Country,
		Age:         req.Age,
		Description: req.Description,
		CreatedAt:   b.now(),
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO participant (id, name, picture_url, country, age, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.PictureURL, p.Country, p.Age, nullString(p.Description), p.CreatedAt)
	if err != nil {
		return models.Participant{}, fmt.Errorf("create participant: %w", err)
	}

	slog.Info("participant created", "participant_id", p.ID, "name", p.Name)
	return p, nil
}

func (b *SQLBackend) UpdateParticipant(ctx context.Context, id string, req models.ParticipantRequest) (models.Participant, error) {
	res, err := b.db.ExecContext(ctx, `
		UPDATE participant
		SET name = $1, picture_url = $2, country = $3, age = $4, description = $5
		WHERE id = $6
	`, req.Name, req.PictureURL, req.Country, req.Age, nullString(req.Description), id)
	if err != nil {
		return models.Participant{}, fmt.Errorf("update participant: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Participant{}, fmt.Errorf("update participant: %w", err)
	} else if n == 0 {
		return models.Participant{}, ErrNotFound
	}

	slog.Info("participant updated", "participant_id", id)
	return b.GetParticipant(ctx, id)
}

// DeleteParticipant removes a participant and, by cascade, its votes
func (b *SQLBackend) DeleteParticipant(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM participant WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.Info("participant deleted", "participant_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (models.Participant, error) {
	var p models.Participant
	var desc sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.PictureURL, &p.Country, &p.Age, &desc, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan participant: %w", err)
	}
	if desc.Valid {
		p.Description = &desc.String
	}
	return p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
