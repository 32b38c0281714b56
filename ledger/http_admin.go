// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"net/http"
	"net/url"

	"github.com/danielhkuo/fingervote/models"
)

// Administrator operations. The token is the access_token from SignIn.

func (b *HTTPBackend) SignIn(ctx context.Context, email, password string) (models.SignInResponse, error) {
	var resp models.SignInResponse
	err := b.do(ctx, http.MethodPost, "/auth/sign-in", "", models.SignInRequest{Email: email, Password: password}, &resp)
	return resp, err
}

func (b *HTTPBackend) SignOut(ctx context.Context, token string) error {
	return b.do(ctx, http.MethodPost, "/auth/sign-out", token, nil, nil)
}

// Session returns a response with a nil User when the token is not live
func (b *HTTPBackend) Session(ctx context.Context, token string) (models.SessionResponse, error) {
	var resp models.SessionResponse
	err := b.do(ctx, http.MethodGet, "/auth/session", token, nil, &resp)
	return resp, err
}

func (b *HTTPBackend) GetParticipant(ctx context.Context, id string) (models.Participant, error) {
	var p models.Participant
	err := b.do(ctx, http.MethodGet, "/participants/"+url.PathEscape(id), "", nil, &p)
	return p, err
}

func (b *HTTPBackend) CreateParticipant(ctx context.Context, token string, req models.ParticipantRequest) (models.Participant, error) {
	var p models.Participant
	err := b.do(ctx, http.MethodPost, "/participants", token, req, &p)
	return p, err
}

func (b *HTTPBackend) UpdateParticipant(ctx context.Context, token, id string, req models.ParticipantRequest) (models.Participant, error) {
	var p models.Participant
	err := b.do(ctx, http.MethodPut, "/participants/"+url.PathEscape(id), token, req, &p)
	return p, err
}

func (b *HTTPBackend) DeleteParticipant(ctx context.Context, token, id string) error {
	return b.do(ctx, http.MethodDelete, "/participants/"+url.PathEscape(id), token, nil, nil)
}
