package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// SessionStore keeps sessions as JSON strings under session:{token} with the
// session TTL as the key expiry.
type SessionStore struct {
	c *Client
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{c: c}
}

func (s *SessionStore) Put(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: marshal session: %w", err)
	}
	if err := s.c.Underlying().Set(ctx, s.c.Key("session", sess.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (domain.Session, error) {
	data, err := s.c.Underlying().Get(ctx, s.c.Key("session", token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis: get session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("redis: decode session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if err := s.c.Underlying().Del(ctx, s.c.Key("session", token)).Err(); err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
