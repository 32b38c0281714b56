// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/fingervote/models"
)

const DefaultRequestTimeout = 10 * time.Second

var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response from the ledger server
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ledger server: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger server: %d %s", e.StatusCode, e.Code)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return ErrTransient
	}
	return nil
}

// HTTPBackend talks to a fingervote server over its REST surface.
// Requests without a deadline get DefaultRequestTimeout.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: DefaultRequestTimeout,
	}
}

func (b *HTTPBackend) CountVotes(ctx context.Context) (map[string]int64, error) {
	var rows []models.VoteCount
	if err := b.do(ctx, http.MethodGet, "/rpc/vote-counts", "", nil, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ParticipantID] = r.VoteCount
	}
	return counts, nil
}

func (b *HTTPBackend) FindVotesByVoter(ctx context.Context, voterID string, limit int) ([]models.Vote, error) {
	q := url.Values{}
	q.Set("voter_identifier", voterID)
	q.Set("limit", strconv.Itoa(limit))

	var votes []models.Vote
	if err := b.do(ctx, http.MethodGet, "/votes?"+q.Encode(), "", nil, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

func (b *HTTPBackend) InsertVote(ctx context.Context, participantID, voterID string) (models.Vote, error) {
	req := models.InsertVoteRequest{ParticipantID: participantID, VoterIdentifier: voterID}

	var vote models.Vote
	err := b.do(ctx, http.MethodPost, "/votes", "", req, &vote)
	if errors.Is(err, ErrNotFound) {
		return models.Vote{}, fmt.Errorf("%w: %w", ErrUnknownParticipant, err)
	}
	if err != nil {
		return models.Vote{}, err
	}
	return vote, nil
}

func (b *HTTPBackend) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	var participants []models.Participant
	if err := b.do(ctx, http.MethodGet, "/participants", "", nil, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// SubscribeVotes opens the server's vote stream. The channel is closed
// when the stream ends or ctx is cancelled.
func (b *HTTPBackend) SubscribeVotes(ctx context.Context) (<-chan models.VoteEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/votes/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open vote stream: %w: %w", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("open vote stream: %w", decodeStatusError(resp))
	}

	events := make(chan models.VoteEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		readVoteStream(ctx, resp.Body, events)
	}()

	return events, nil
}

func readVoteStream(ctx context.Context, r io.Reader, out chan<- models.VoteEvent) {
	scanner := bufio.NewScanner(r)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == models.EventVote && data.Len() > 0 {
				var ev models.VoteEvent
				if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
					slog.Warn("malformed vote event", "error", err)
				} else {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("vote stream ended", "error", err)
	}
}

func (b *HTTPBackend) do(ctx context.Context, method, path, token string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w: %w", method, path, ErrTransient, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}

	var body models.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		if body.Error != "" {
			se.Code = body.Error
		}
		se.Message = body.Message
	}
	return se
}
