package domain

import (
	"context"
	"time"
)

// Session binds an opaque token to an owner.
type Session struct {
	Token     string    `json:"token"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionStore keeps sessions with a TTL. Get returns ErrNotFound for an
// unknown or expired token.
type SessionStore interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}
