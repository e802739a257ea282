// Package postgres provides the PostgreSQL implementation of
// storage.DurableStore.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// Client implements storage.DurableStore on PostgreSQL.
type Client struct {
	db *sql.DB
}

// Config is the configuration for the PostgreSQL store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient connects to PostgreSQL and initializes the tables.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{db: db}
	if err := c.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) initTables(ctx context.Context) error {
	const summaries = `
		CREATE TABLE IF NOT EXISTS session_summaries (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			chunk_count INTEGER NOT NULL,
			objects_detected INTEGER NOT NULL,
			activities_detected INTEGER NOT NULL,
			objects JSONB,
			activities JSONB,
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
			value BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := c.db.ExecContext(ctx, cache); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// SaveSessionSummary upserts a summary keyed by (user_id, ended_at).
func (c *Client) SaveSessionSummary(ctx context.Context, summary *session.Summary) error {
	objects, err := json.Marshal(summary.Objects)
	if err != nil {
		return fmt.Errorf("failed to marshal objects: %w", err)
	}
	activities, err := json.Marshal(summary.Activities)
	if err != nil {
		return fmt.Errorf("failed to marshal activities: %w", err)
	}

	const query = `
		INSERT INTO session_summaries
			(user_id, session_id, started_at, ended_at, chunk_count,
			 objects_detected, activities_detected, objects, activities)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, ended_at) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			chunk_count = EXCLUDED.chunk_count,
			objects_detected = EXCLUDED.objects_detected,
			activities_detected = EXCLUDED.activities_detected,
			objects = EXCLUDED.objects,
			activities = EXCLUDED.activities`
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
		WHERE user_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`
	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

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

// GetCache returns the cached value for key if present and unexpired.
func (c *Client) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `SELECT value FROM answer_cache WHERE cache_key = $1 AND expires_at > $2`
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

// SetCache stores value under key with the given TTL.
func (c *Client) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	const query = `
		INSERT INTO answer_cache (cache_key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at`
	if _, err := c.db.ExecContext(ctx, query, key, value, now.Add(ttl)); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	_, _ = c.db.ExecContext(ctx, `DELETE FROM answer_cache WHERE expires_at <= $1`, now)
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
