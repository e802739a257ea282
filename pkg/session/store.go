package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config bounds the sessions managed by a Store.
type Config struct {
	// RetentionHorizon is the memory window length. Entries older than
	// now-RetentionHorizon are pruned on every write.
	RetentionHorizon time.Duration

	// IdleThreshold is how long a session may go untouched before a sweep
	// removes it.
	IdleThreshold time.Duration

	// MaxObjects, MaxActivities and MaxChunks cap entry counts so memory
	// stays bounded independent of the horizon length.
	MaxObjects    int
	MaxActivities int
	MaxChunks     int

	// SummaryCap is the number of most recent objects/activities kept in
	// the summary produced when a session ends.
	SummaryCap int
}

// Session is the live per-user container of recent observations.
//
// At most one live Session exists per user identifier. All fields are
// guarded by mu; mutation goes through Store methods so per-user state is
// serialized without a global lock on the request path.
type Session struct {
	mu sync.Mutex

	id           string
	userID       string
	startedAt    time.Time
	lastActivity time.Time

	chunks     []ChunkRecord
	objects    []ObservedObject
	activities []ObservedActivity

	chunkCount      int
	totalObjects    int
	totalActivities int

	// ended marks a session removed by End or Sweep. A write that races
	// with removal observes the flag and re-creates instead of resurrecting.
	ended bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Store is the registry of live sessions, one per user identifier.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
	logger   *slog.Logger
}

// NewStore creates a session Store with the given bounds.
func NewStore(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		logger:   logger,
	}
}

// GetOrCreate returns the live session for userID, creating one on first
// touch. LastActivity is refreshed either way.
func (s *Store) GetOrCreate(userID string, now time.Time) *Session {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[userID]
		if !ok {
			sess = &Session{
				id:           uuid.NewString(),
				userID:       userID,
				startedAt:    now,
				lastActivity: now,
			}
			s.sessions[userID] = sess
			s.mu.Unlock()
			s.logger.Info("session created", "user_id", userID, "session_id", sess.id)
			return sess
		}
		s.mu.Unlock()

		sess.mu.Lock()
		if !sess.ended {
			sess.lastActivity = now
			sess.mu.Unlock()
			return sess
		}
		sess.mu.Unlock()
		// Lost a race with End/Sweep; try again with a fresh session.
	}
}

// Get returns the live session for userID, or nil if none exists.
func (s *Store) Get(userID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID]
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// End removes the session for userID and returns its capped summary, or nil
// when no session is live. Ending twice is a safe no-op the second time.
func (s *Store) End(userID string, now time.Time) *Summary {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.ended = true

	sum := &Summary{
		UserID:             sess.userID,
		SessionID:          sess.id,
		StartedAt:          sess.startedAt,
		EndedAt:            now,
		ChunkCount:         sess.chunkCount,
		ObjectsDetected:    sess.totalObjects,
		ActivitiesDetected: sess.totalActivities,
		Objects:            tail(sess.objects, s.cfg.SummaryCap),
		Activities:         tail(sess.activities, s.cfg.SummaryCap),
	}
	s.logger.Info("session ended",
		"user_id", userID,
		"session_id", sess.id,
		"chunks", sess.chunkCount,
		"objects", sess.totalObjects,
		"activities", sess.totalActivities)
	return sum
}

// Sweep removes sessions idle longer than the configured threshold and
// returns how many were removed. Iteration snapshots the registry first so
// concurrent insertion and deletion stay safe; each removal re-checks idleness
// under the session's own lock so an in-flight write is never dropped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.RLock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	removed := 0
	for _, sess := range candidates {
		s.mu.Lock()
		sess.mu.Lock()
		idle := !sess.ended && now.Sub(sess.lastActivity) > s.cfg.IdleThreshold
		if idle {
			sess.ended = true
			if s.sessions[sess.userID] == sess {
				delete(s.sessions, sess.userID)
			}
			removed++
		}
		sess.mu.Unlock()
		s.mu.Unlock()

		if idle {
			s.logger.Info("session swept", "user_id", sess.userID, "session_id", sess.id)
		}
	}
	return removed
}

// RunSweeper runs periodic sweeps until ctx is cancelled. It is an explicit
// background task owned by the process lifecycle; tests call Sweep directly
// with an injected clock instead.
func (s *Store) RunSweeper(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if n := s.Sweep(t); n > 0 {
				s.logger.Info("sweep removed idle sessions", "count", n)
			}
		}
	}
}

// tail returns a copy of the last n elements of xs.
func tail[T any](xs []T, n int) []T {
	if n <= 0 || len(xs) == 0 {
		return nil
	}
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	out := make([]T, len(xs))
	copy(out, xs)
	return out
}
