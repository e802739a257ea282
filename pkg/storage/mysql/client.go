// Package mysql provides the MySQL implementation of storage.DurableStore.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// Client implements storage.DurableStore on MySQL (or MySQL-compatible
// databases).
type Client struct {
	db *sql.DB
}

// Config is the configuration for the MySQL store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient connects to MySQL and initializes the tables.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
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
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			started_at DATETIME(3) NOT NULL,
			ended_at DATETIME(3) NOT NULL,
			chunk_count INT NOT NULL,
			objects_detected INT NOT NULL,
			activities_detected INT NOT NULL,
			objects JSON,
			activities JSON,
			UNIQUE KEY uniq_user_ended (user_id, ended_at),
			KEY idx_user_ended (user_id, ended_at DESC)
		)`
	if _, err := c.db.ExecContext(ctx, summaries); err != nil {
		return fmt.Errorf("failed to create summaries table: %w", err)
	}

	const cache = `
		CREATE TABLE IF NOT EXISTS answer_cache (
			cache_key VARCHAR(512) PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at DATETIME(3) NOT NULL
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			session_id = VALUES(session_id),
			chunk_count = VALUES(chunk_count),
			objects_detected = VALUES(objects_detected),
			activities_detected = VALUES(activities_detected),
			objects = VALUES(objects),
			activities = VALUES(activities)`
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

// SetCache stores value under key with the given TTL.
func (c *Client) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	const query = `
		INSERT INTO answer_cache (cache_key, value, expires_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			value = VALUES(value),
			expires_at = VALUES(expires_at)`
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
