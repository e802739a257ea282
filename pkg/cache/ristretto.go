package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoTier is an in-memory cache tier with per-entry TTL, backed by
// ristretto. Used for the short duplicate-suppression tier and as the
// long-tier fallback when no durable store is configured.
type RistrettoTier struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewRistrettoTier creates an in-memory tier whose entries expire after ttl.
func NewRistrettoTier(ttl time.Duration) (*RistrettoTier, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoTier{cache: c, ttl: ttl}, nil
}

// Get returns the entry for the normalized pair, if present and unexpired.
func (t *RistrettoTier) Get(userID, question string) (*Entry, bool) {
	v, ok := t.cache.Get(Normalize(userID, question))
	if !ok {
		return nil, false
	}
	e, ok := v.(*Entry)
	return e, ok
}

// Set stores the entry under the normalized pair with the tier's TTL.
func (t *RistrettoTier) Set(userID, question string, e *Entry) {
	t.cache.SetWithTTL(Normalize(userID, question), e, 1, t.ttl)
}

// Wait blocks until buffered writes are applied. Writes are applied
// asynchronously; tests call Wait before asserting on Get.
func (t *RistrettoTier) Wait() {
	t.cache.Wait()
}

// Close releases the underlying cache.
func (t *RistrettoTier) Close() {
	t.cache.Close()
}
