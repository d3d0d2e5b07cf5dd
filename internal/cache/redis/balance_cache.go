package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// BalanceCache mirrors store-confirmed balances in a hash per owner at
// "balance:{owner}", one field per currency. Values are only ever written
// from what the store returned.
type BalanceCache struct {
	c   *Client
	ttl time.Duration
}

// NewBalanceCache creates a BalanceCache.
func NewBalanceCache(c *Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{c: c, ttl: ttl}
}

func (bc *BalanceCache) key(ownerID string) string {
	return bc.c.Key("balance", ownerID)
}

// SetBalances replaces the hash in one MULTI so readers never see a mix of
// old and new fields.
func (bc *BalanceCache) SetBalances(ctx context.Context, ownerID string, balances domain.Balances) error {
	fields := make(map[string]interface{}, len(balances))
	for cur, amt := range balances {
		fields[cur] = amt.String()
	}
	key := bc.key(ownerID)
	pipe := bc.c.Underlying().TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		if bc.ttl > 0 {
			pipe.Expire(ctx, key, bc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set balances %s: %w", ownerID, err)
	}
	return nil
}

// GetBalances returns domain.ErrNotFound when nothing is cached for the owner.
func (bc *BalanceCache) GetBalances(ctx context.Context, ownerID string) (domain.Balances, error) {
	vals, err := bc.c.Underlying().HGetAll(ctx, bc.key(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get balances %s: %w", ownerID, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}
	out := make(domain.Balances, len(vals))
	for cur, s := range vals {
		amt, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("redis: parse balance %s/%s: %w", ownerID, cur, err)
		}
		out[cur] = amt
	}
	return out, nil
}

func (bc *BalanceCache) Invalidate(ctx context.Context, ownerID string) error {
	if err := bc.c.Underlying().Del(ctx, bc.key(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balances %s: %w", ownerID, err)
	}
	return nil
}

var _ domain.BalanceCache = (*BalanceCache)(nil)
