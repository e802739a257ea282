package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/storage"
)

// DurableTier is a cache tier backed by the durable store's cache table.
// Entries are JSON-encoded; store failures degrade to cache misses so the
// request path never fails on the cache.
type DurableTier struct {
	store  storage.DurableStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewDurableTier creates a tier over the given store with the given TTL.
func NewDurableTier(store storage.DurableStore, ttl time.Duration, logger *slog.Logger) *DurableTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DurableTier{store: store, ttl: ttl, logger: logger}
}

// Get returns the entry for the normalized pair, if present and unexpired.
func (t *DurableTier) Get(userID, question string) (*Entry, bool) {
	value, ok, err := t.store.GetCache(context.Background(), Normalize(userID, question))
	if err != nil {
		t.logger.Warn("durable cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(value, &e); err != nil {
		t.logger.Warn("durable cache entry corrupt", "err", err)
		return nil, false
	}
	return &e, true
}

// Set stores the entry under the normalized pair with the tier's TTL.
func (t *DurableTier) Set(userID, question string, e *Entry) {
	value, err := json.Marshal(e)
	if err != nil {
		t.logger.Warn("durable cache encode failed", "err", err)
		return
	}
	if err := t.store.SetCache(context.Background(), Normalize(userID, question), value, t.ttl); err != nil {
		t.logger.Warn("durable cache write failed", "err", err)
	}
}
