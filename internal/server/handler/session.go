package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

// SessionService is the login lifecycle. *session.Manager satisfies it.
type SessionService interface {
	Login(ctx context.Context, ownerID string) (domain.Session, domain.Balances, error)
	Logout(ctx context.Context, token string) error
}

// BalanceLoader reloads balances from the store when the cache misses.
type BalanceLoader interface {
	Refresh(ctx context.Context, ownerID string) (domain.Balances, error)
}

// SessionHandler serves login, logout and the current user's balances.
type SessionHandler struct {
	sessions SessionService
	cache    domain.BalanceCache
	loader   BalanceLoader
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionService, cache domain.BalanceCache, loader BalanceLoader, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, cache: cache, loader: loader, logger: logger}
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	UserID    string          `json:"user_id"`
	ExpiresAt time.Time       `json:"expires_at"`
	Balances  domain.Balances `json:"balances"`
}

// Login starts a session.
// POST /api/session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, bal, err := h.sessions.Login(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusCreated, loginResponse{
		Token:     sess.Token,
		UserID:    sess.OwnerID,
		ExpiresAt: sess.ExpiresAt,
		Balances:  bal,
	})
}

// Logout ends the caller's session.
// DELETE /api/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.sessions.Logout(r.Context(), sess.Token); err != nil {
		writeServiceError(w, r, h.logger, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	UserID   string          `json:"user_id"`
	Balances domain.Balances `json:"balances"`
}

// Me returns the caller's balances, from the cache when present.
// GET /api/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	owner := session.OwnerID(r.Context())
	bal, err := h.cache.GetBalances(r.Context(), owner)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: balance cache read failed", slog.String("error", err.Error()))
		}
		if bal, err = h.loader.Refresh(r.Context(), owner); err != nil {
			writeServiceError(w, r, h.logger, "me", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: owner, Balances: bal})
}
