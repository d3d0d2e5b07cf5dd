// Package session owns the login lifecycle. A session binds an opaque token
// to an owner; handlers receive it through the request context.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// BalanceLoader loads and caches an owner's balances at login.
// *service.Reconciler satisfies it.
type BalanceLoader interface {
	Refresh(ctx context.Context, ownerID string) (domain.Balances, error)
}

// Manager creates, resolves and ends sessions.
type Manager struct {
	store    domain.SessionStore
	balances BalanceLoader
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager creates a Manager. A ttl <= 0 defaults to 24h.
func NewManager(store domain.SessionStore, balances BalanceLoader, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		store:    store,
		balances: balances,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "session")),
	}
}

// Login starts a session for ownerID. The owner must have a balance account;
// an unknown owner is ErrUnauthorized. The returned balances are the ones
// just loaded into the cache.
func (m *Manager) Login(ctx context.Context, ownerID string) (domain.Session, domain.Balances, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.Session{}, nil, fmt.Errorf("%w: user id required", domain.ErrUnauthorized)
	}

	bal, err := m.balances.Refresh(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, nil, fmt.Errorf("%w: unknown user %s", domain.ErrUnauthorized, ownerID)
	}
	if err != nil {
		return domain.Session{}, nil, fmt.Errorf("session: load balances: %w", err)
	}

	now := m.now().UTC()
	sess := domain.Session{
		Token:     uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, sess, m.ttl); err != nil {
		return domain.Session{}, nil, fmt.Errorf("session: put: %w", err)
	}

	m.logger.InfoContext(ctx, "session started", slog.String("owner_id", ownerID))
	return sess, bal, nil
}

// Lookup resolves token to its session. Unknown and expired tokens are
// ErrUnauthorized.
func (m *Manager) Lookup(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}
	sess, err := m.store.Get(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: lookup: %w", err)
	}
	if sess.Expired(m.now()) {
		_ = m.store.Delete(ctx, token)
		return domain.Session{}, domain.ErrUnauthorized
	}
	return sess, nil
}

// Logout ends the session. Logging out an unknown token is not an error.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess domain.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (domain.Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(domain.Session)
	return sess, ok
}

// OwnerID returns the owner of the session in ctx, or "".
func OwnerID(ctx context.Context) string {
	sess, _ := FromContext(ctx)
	return sess.OwnerID
}
