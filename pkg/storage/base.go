// Package storage defines the durable collaborator interface consumed by the
// pipeline: best-effort session summary persistence, cross-session historical
// recall, and the long-TTL answer cache tier.
package storage

import (
	"context"
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// DurableStore is the narrow interface over the durable document store.
//
// Implementations exist for SQLite, PostgreSQL, and MySQL. All operations are
// best-effort from the pipeline's point of view: a failed flush is logged,
// never fatal to the request path.
type DurableStore interface {
	// SaveSessionSummary upserts a session summary. The (UserID, EndedAt)
	// pair is the idempotency key: saving the same summary twice is a
	// single row.
	SaveSessionSummary(ctx context.Context, summary *session.Summary) error

	// FindHistoricalSummaries returns up to limit summaries for the user,
	// most recently ended first.
	FindHistoricalSummaries(ctx context.Context, userID string, limit int) ([]*session.Summary, error)

	// GetCache returns the cached value for key. ok is false when the key
	// is absent or its entry has expired.
	GetCache(ctx context.Context, key string) (value []byte, ok bool, err error)

	// SetCache stores value under key with the given time-to-live,
	// replacing any previous entry.
	SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases the underlying connection.
	Close() error
}
