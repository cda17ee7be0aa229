package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pmccbot/position-engine/internal/model"
)

// CachedProvider wraps a primary Provider with a Redis read-through cache.
// Reads check Redis first then fall back to the primary; a cache failure
// is never an error, only a miss. A short TTL keeps quotes fresh within
// one monitoring pass while absorbing repeated lookups of the same symbol.
type CachedProvider struct {
	primary Provider
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedProvider creates a cached wrapper around a primary provider.
func NewCachedProvider(primary Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{primary: primary, rdb: rdb, ttl: ttl}
}

func (c *CachedProvider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	data, err := c.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if err == nil {
		var q model.Quote
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	q, err := c.primary.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(q); err == nil {
		c.rdb.Set(ctx, quoteKey(symbol), data, c.ttl)
	}
	return q, nil
}

func (c *CachedProvider) Chain(ctx context.Context, symbol, expiration string) ([]model.ChainEntry, error) {
	data, err := c.rdb.Get(ctx, chainKey(symbol, expiration)).Bytes()
	if err == nil {
		var entries []model.ChainEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	entries, err := c.primary.Chain(ctx, symbol, expiration)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		c.rdb.Set(ctx, chainKey(symbol, expiration), data, c.ttl)
	}
	return entries, nil
}

func (c *CachedProvider) Expirations(ctx context.Context, symbol string) ([]string, error) {
	data, err := c.rdb.Get(ctx, expirationsKey(symbol)).Bytes()
	if err == nil {
		var dates []string
		if json.Unmarshal(data, &dates) == nil {
			return dates, nil
		}
	}

	dates, err := c.primary.Expirations(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(dates); err == nil {
		// Expiration lists move daily at most; cache longer.
		c.rdb.Set(ctx, expirationsKey(symbol), data, 12*time.Hour)
	}
	return dates, nil
}

func quoteKey(symbol string) string       { return fmt.Sprintf("md:quote:%s", symbol) }
func chainKey(sym, exp string) string     { return fmt.Sprintf("md:chain:%s:%s", sym, exp) }
func expirationsKey(symbol string) string { return fmt.Sprintf("md:exp:%s", symbol) }
