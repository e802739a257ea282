package core

import (
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/llm"
	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// StartResponse is returned when a live session is started (or re-touched).
type StartResponse struct {
	// SessionID identifies the live session.
	SessionID string `json:"sessionId"`

	// StartedAt is the session start instant in Unix milliseconds.
	StartedAt int64 `json:"startedAt"`
}

// ChunkResponse is returned immediately on chunk submission; analysis runs
// in the background.
type ChunkResponse struct {
	Success    bool               `json:"success"`
	ChunkIndex int                `json:"chunkIndex"`
	MemorySize session.WindowSize `json:"memorySize"`
}

// AskRequest is a question about what is or was visible, with optional
// accompanying media.
type AskRequest struct {
	// UserID is the opaque user identifier.
	UserID string

	// Question is the natural-language question text.
	Question string

	// Media is the accompanying chunk, if any.
	Media *llm.Media

	// Timestamp is the client-side capture instant; zero means "now".
	Timestamp time.Time
}

// MemoryContext counts the window entries an answer referenced.
type MemoryContext struct {
	ObjectsFound    int `json:"objectsFound"`
	ActivitiesFound int `json:"activitiesFound"`
}

// AskResponse is the pipeline's answer to an AskRequest.
type AskResponse struct {
	// Answer is the final natural-language answer.
	Answer string `json:"answer"`

	// Question echoes the normalized question asked.
	Question string `json:"question"`

	// Timestamp is the answer instant in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// UsedMemory indicates the answer referenced the memory window.
	UsedMemory bool `json:"usedMemory"`

	// MemoryContext is present when UsedMemory is true.
	MemoryContext *MemoryContext `json:"memoryContext,omitempty"`

	// Cached indicates the answer was served from the answer cache.
	Cached bool `json:"cached,omitempty"`

	// Fallback indicates the memory-only fallback produced the answer
	// after an external failure.
	Fallback bool `json:"fallback,omitempty"`

	// VoiceAudio is a base64 audio data URL, when synthesis is configured.
	VoiceAudio string `json:"voiceAudio,omitempty"`
}

// EndResponse is returned when a session ends. Ending with no live session
// is a no-op success with Active false.
type EndResponse struct {
	Success bool `json:"success"`

	// Active is false when no session was live for the user.
	Active bool `json:"active"`

	// Duration is the session length in milliseconds.
	Duration int64 `json:"duration,omitempty"`

	ObjectsDetected    int `json:"objectsDetected,omitempty"`
	ActivitiesDetected int `json:"activitiesDetected,omitempty"`
}

// Health reports which collaborators are configured and reachable.
type Health struct {
	Status   string          `json:"status"`
	Services map[string]bool `json:"services"`
}

// Stats are monotonic usage counters for the pipeline.
type Stats struct {
	// CacheHits counts answers served without touching the model.
	CacheHits int64 `json:"cacheHits"`

	// KeywordHits counts answers resolved by the deterministic fast path.
	KeywordHits int64 `json:"keywordHits"`

	// ModelCalls counts external model invocations that got a reply.
	ModelCalls int64 `json:"modelCalls"`

	// Fallbacks counts memory-only fallback answers.
	Fallbacks int64 `json:"fallbacks"`
}
