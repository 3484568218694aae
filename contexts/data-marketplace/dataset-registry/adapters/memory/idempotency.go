package memory

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

const idempotencyCleanupInterval = 10 * time.Minute

// IdempotencyCache keeps purchase replay records in a go-cache with per-record
// expiry. It serves the memory driver and fronts nothing else.
type IdempotencyCache struct {
	cache *cache.Cache
}

func NewIdempotencyCache() *IdempotencyCache {
	return &IdempotencyCache{
		cache: cache.New(cache.NoExpiration, idempotencyCleanupInterval),
	}
}

func (c *IdempotencyCache) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	obj, found := c.cache.Get(key)
	if !found {
		return ports.IdempotencyRecord{}, false, nil
	}
	record := obj.(ports.IdempotencyRecord)
	// go-cache expires on wall time; the registry clock decides here.
	if record.Expired(now) {
		c.cache.Delete(key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (c *IdempotencyCache) Put(_ context.Context, record ports.IdempotencyRecord) error {
	ttl := cache.NoExpiration
	if !record.ExpiresAt.IsZero() {
		ttl = time.Until(record.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	c.cache.Set(record.Key, record, ttl)
	return nil
}
