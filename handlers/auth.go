// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/fingervote/auth"
	"github.com/danielhkuo/fingervote/cliparse"
	"github.com/danielhkuo/fingervote/middleware"
	"github.com/danielhkuo/fingervote/models"
)

type adminKey struct{}

// adminSession is attached to the request context by RequireAdmin
type adminSession struct {
	SessionID string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type AuthHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewAuthHandler(db *sql.DB, cfg cliparse.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

// SignIn handles POST /auth/sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var user models.AdminUser
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, email, password_hash FROM admin_user WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		slog.Error("failed to query admin user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		slog.Warn("admin sign-in rejected", "email", email, "remote", middleware.GetClientIP(r))
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	sessionID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate session ID", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	now := time.Now().UTC()
	expiresAt := now.Add(auth.SessionTTL)

	_, err = h.db.ExecContext(r.Context(), `
		INSERT INTO admin_session (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, sessionID, user.ID, now, expiresAt)
	if err != nil {
		slog.Error("failed to insert admin session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	token, err := auth.SignSessionToken(h.cfg.JWTSecret, sessionID, user.ID, user.Email, now, expiresAt)
	if err != nil {
		slog.Error("failed to sign session token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	slog.Info("admin signed in", "user_id", user.ID)

	middleware.JSONResponse(w, http.StatusOK, models.SignInResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        models.AdminUserInfo{ID: user.ID, Email: user.Email},
	})
}

// SignOut handles POST /auth/sign-out (admin)
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := r.Context().Value(adminKey{}).(adminSession)
	if !ok {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Sign-in required")
		return
	}

	_, err := h.db.ExecContext(r.Context(), `
		UPDATE admin_session SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL
	`, time.Now().UTC(), sess.SessionID)
	if err != nil {
		slog.Error("failed to revoke admin session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to sign out")
		return
	}

	slog.Info("admin signed out", "user_id", sess.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session. A missing or dead token yields a
// null user rather than an error.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		middleware.JSONResponse(w, http.StatusOK, models.SessionResponse{})
		return
	}

	sess, err := h.lookupSession(r.Context(), token)
	if errors.Is(err, auth.ErrInvalidToken) {
		middleware.JSONResponse(w, http.StatusOK, models.SessionResponse{})
		return
	}
	if err != nil {
		slog.Error("failed to look up admin session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.SessionResponse{
		User:      &models.AdminUserInfo{ID: sess.UserID, Email: sess.Email},
		ExpiresAt: &sess.ExpiresAt,
	})
}

// RequireAdmin rejects requests without a live administrator session
func (h *AuthHandler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := middleware.BearerToken(r)
		if !ok {
			middleware.ErrorResponse(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		sess, err := h.lookupSession(r.Context(), token)
		if errors.Is(err, auth.ErrInvalidToken) {
			middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}
		if err != nil {
			slog.Error("failed to look up admin session", "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}

		ctx := context.WithValue(r.Context(), adminKey{}, sess)
		next(w, r.WithContext(ctx))
	}
}

// lookupSession verifies the token signature and that its session row is
// neither revoked nor expired
func (h *AuthHandler) lookupSession(ctx context.Context, token string) (adminSession, error) {
	claims, err := auth.ParseSessionToken(h.cfg.JWTSecret, token)
	if err != nil {
		return adminSession{}, auth.ErrInvalidToken
	}

	var sess adminSession
	var revokedAt sql.NullTime
	err = h.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, u.email, s.expires_at, s.revoked_at
		FROM admin_session s
		JOIN admin_user u ON u.id = s.user_id
		WHERE s.id = $1
	`, claims.ID).Scan(&sess.SessionID, &sess.UserID, &sess.Email, &sess.ExpiresAt, &revokedAt)

	if err == sql.ErrNoRows {
		return adminSession{}, auth.ErrInvalidToken
	}
	if err != nil {
		return adminSession{}, fmt.Errorf("query admin session: %w", err)
	}

	if revokedAt.Valid || !time.Now().Before(sess.ExpiresAt) || sess.UserID != claims.Subject {
		return adminSession{}, auth.ErrInvalidToken
	}

	return sess, nil
}

// EnsureAdminUser creates the administrator account, or resets its
// password if it already exists.
func EnsureAdminUser(db *sql.DB, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return errors.New("admin email and password are required")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	id, err := auth.GenerateID(16)
	if err != nil {
		return fmt.Errorf("generate admin ID: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO admin_user (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET password_hash = excluded.password_hash
	`, id, email, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}

	slog.Info("admin user ready", "email", email)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
