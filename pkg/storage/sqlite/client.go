// Package sqlite provides the SQLite implementation of storage.DurableStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// Client implements storage.DurableStore on a local SQLite database.
type Client struct {
	db *sql.DB
}

// Config is the configuration for the SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient opens (or creates) the database and initializes the tables.
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &Client{db: db}
	if err := c.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// initTables initializes the summary and cache table structure.
func (c *Client) initTables(ctx context.Context) error {
	const summaries = `
		CREATE TABLE IF NOT EXISTS session_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL,
			chunk_count INTEGER NOT NULL,
			objects_detected INTEGER NOT NULL,
			activities_detected INTEGER NOT NULL,
			objects TEXT,
			activities TEXT,
			UNIQUE(user_id, ended_at)
		)`
	if _, err := c.db.ExecContext(ctx, summaries); err != nil {
		return fmt.Errorf("failed to create summaries table: %w", err)
	}

	const summariesIdx = `
		CREATE INDEX IF NOT EXISTS idx_session_summaries_user
		ON session_summaries(user_id, ended_at DESC)`
	if _, err := c.db.ExecContext(ctx, summariesIdx); err != nil {
		return fmt.Errorf("failed to create summaries index: %w", err)
	}

	const cache = `
		CREATE TABLE IF NOT EXISTS answer_cache (
			cache_key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`
	if _, err := c.db.ExecContext(ctx, cache); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// SaveSessionSummary upserts a summary keyed by (user_id, ended_at).
func (c *Client) SaveSessionSummary(ctx context.Context, summary *session.Summary) error {
	objects, activities, err := marshalEntries(summary)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO session_summaries
			(user_id, session_id, started_at, ended_at, chunk_count,
			 objects_detected, activities_detected, objects, activities)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, ended_at) DO UPDATE SET
			session_id = excluded.session_id,
			chunk_count = excluded.chunk_count,
			objects_detected = excluded.objects_detected,
			activities_detected = excluded.activities_detected,
			objects = excluded.objects,
			activities = excluded.activities`
	_, err = c.db.ExecContext(ctx, query,
		summary.UserID, summary.SessionID, summary.StartedAt.UTC(), summary.EndedAt.UTC(),
		summary.ChunkCount, summary.ObjectsDetected, summary.ActivitiesDetected,
		objects, activities)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// FindHistoricalSummaries returns up to limit summaries, newest first.
func (c *Client) FindHistoricalSummaries(ctx context.Context, userID string, limit int) ([]*session.Summary, error) {
	const query = `
		SELECT user_id, session_id, started_at, ended_at, chunk_count,
		       objects_detected, activities_detected, objects, activities
		FROM session_summaries
		WHERE user_id = ?
		ORDER BY ended_at DESC
		LIMIT ?`
	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// GetCache returns the cached value for key if present and unexpired.
func (c *Client) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `SELECT value FROM answer_cache WHERE cache_key = ? AND expires_at > ?`
	var value []byte
	err := c.db.QueryRowContext(ctx, query, key, time.Now().UTC()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}
	return value, true, nil
}

// SetCache stores value under key with the given TTL, replacing any previous
// entry, and opportunistically drops expired rows.
func (c *Client) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	const query = `
		INSERT INTO answer_cache (cache_key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at`
	if _, err := c.db.ExecContext(ctx, query, key, value, now.Add(ttl)); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	_, _ = c.db.ExecContext(ctx, `DELETE FROM answer_cache WHERE expires_at <= ?`, now)
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// marshalEntries serializes the capped object/activity lists to JSON columns.
func marshalEntries(summary *session.Summary) (objects, activities []byte, err error) {
	objects, err = json.Marshal(summary.Objects)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal objects: %w", err)
	}
	activities, err = json.Marshal(summary.Activities)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal activities: %w", err)
	}
	return objects, activities, nil
}

// scanSummaries reads summary rows back into session.Summary values.
func scanSummaries(rows *sql.Rows) ([]*session.Summary, error) {
	var out []*session.Summary
	for rows.Next() {
		var (
			s                   session.Summary
			objects, activities []byte
		)
		if err := rows.Scan(&s.UserID, &s.SessionID, &s.StartedAt, &s.EndedAt,
			&s.ChunkCount, &s.ObjectsDetected, &s.ActivitiesDetected,
			&objects, &activities); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if len(objects) > 0 {
			if err := json.Unmarshal(objects, &s.Objects); err != nil {
				return nil, fmt.Errorf("failed to unmarshal objects: %w", err)
			}
		}
		if len(activities) > 0 {
			if err := json.Unmarshal(activities, &s.Activities); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activities: %w", err)
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
