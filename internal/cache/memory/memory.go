// Package memory provides in-process implementations of the domain cache
// interfaces. They back the "memory" cache driver and serve as test fakes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// PriceCache is a map-backed domain.PriceCache.
type PriceCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]domain.Quote)}
}

func (c *PriceCache) SetQuotes(_ context.Context, quotes []domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quotes {
		c.quotes[q.Ticker] = q
	}
	return nil
}

func (c *PriceCache) GetQuote(_ context.Context, ticker string) (domain.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[ticker]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (c *PriceCache) GetQuotes(_ context.Context, tickers []string) (map[string]domain.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Quote, len(tickers))
	for _, t := range tickers {
		if q, ok := c.quotes[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}

// BalanceCache is a map-backed domain.BalanceCache.
type BalanceCache struct {
	mu       sync.RWMutex
	balances map[string]domain.Balances
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{balances: make(map[string]domain.Balances)}
}

func (c *BalanceCache) SetBalances(_ context.Context, ownerID string, balances domain.Balances) error {
	entry := make(domain.Balances, len(balances))
	for k, v := range balances {
		entry[k] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[ownerID] = entry
	return nil
}

func (c *BalanceCache) GetBalances(_ context.Context, ownerID string) (domain.Balances, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.balances[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make(domain.Balances, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out, nil
}

func (c *BalanceCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, ownerID)
	return nil
}

// LockManager is an in-process domain.LockManager with TTL expiry.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

type lockEntry struct {
	token   string
	expires time.Time
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]lockEntry), now: time.Now}
}

func (m *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.locks[key]; ok && now.Before(e.expires) {
		return nil, domain.ErrLockHeld
	}
	token := uuid.NewString()
	m.locks[key] = lockEntry{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.locks[key]; ok && e.token == token {
				delete(m.locks, key)
			}
		})
	}, nil
}

// RateLimiter is an in-process sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cut := now.Add(-window)
	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		r.hits[key] = kept
		return false, nil
	}
	r.hits[key] = append(kept, now)
	return true, nil
}

// Bus is an in-process domain.SignalBus. Slow subscribers drop messages
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan []byte)}
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// SessionStore is an in-process domain.SessionStore. Expired sessions are
// dropped on read.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.Session), now: time.Now}
}

func (s *SessionStore) Put(_ context.Context, sess domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		sess.ExpiresAt = s.now().Add(ttl)
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *SessionStore) Get(_ context.Context, token string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, token)
		return domain.Session{}, domain.ErrNotFound
	}
	return sess, nil
}

func (s *SessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

var (
	_ domain.SessionStore = (*SessionStore)(nil)
	_ domain.PriceCache   = (*PriceCache)(nil)
	_ domain.BalanceCache = (*BalanceCache)(nil)
	_ domain.LockManager  = (*LockManager)(nil)
	_ domain.RateLimiter  = (*RateLimiter)(nil)
	_ domain.SignalBus    = (*Bus)(nil)
)
