// Package session provides the per-user live session registry and the
// time-bounded memory window over observed objects and activities.
package session

import "time"

// ObservedObject is one detected entity from an analyzed chunk.
//
// Timestamp is always an absolute wall-clock instant, never a relative
// offset, so that relative-time rendering ("2 hours ago") stays correct
// regardless of when it is rendered.
type ObservedObject struct {
	// Description is the free-text name of the object ("red water bottle").
	Description string `json:"description"`

	// Location describes where the object was seen ("on the desk, left").
	Location string `json:"location,omitempty"`

	// Optional attributes extracted from the chunk.
	Color  string `json:"color,omitempty"`
	Flavor string `json:"flavor,omitempty"`
	Brand  string `json:"brand,omitempty"`
	Text   string `json:"text,omitempty"`
	Size   string `json:"size,omitempty"`

	// Confidence is the detection confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Timestamp is the absolute instant the object was observed.
	Timestamp time.Time `json:"timestamp"`
}

// ObservedActivity is one detected activity from an analyzed chunk.
type ObservedActivity struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChunkRecord is the metadata kept for one raw media chunk.
type ChunkRecord struct {
	// ID is a unique record identifier.
	ID int64 `json:"id"`

	// Index is the 1-based position of the chunk within the session.
	Index int `json:"index"`

	// Size is the media payload size in bytes.
	Size int `json:"size"`

	// MimeType is the declared media type of the chunk.
	MimeType string `json:"mime_type"`

	// Timestamp is the absolute instant the chunk was received.
	Timestamp time.Time `json:"timestamp"`
}

// View is a pruned, copied snapshot of a session's memory window.
type View struct {
	Objects    []ObservedObject   `json:"objects"`
	Activities []ObservedActivity `json:"activities"`
}

// Size returns the window size as reported to chunk submitters.
func (v View) Size() WindowSize {
	return WindowSize{Objects: len(v.Objects), Activities: len(v.Activities)}
}

// WindowSize is the object/activity count pair returned on chunk writes.
type WindowSize struct {
	Objects    int `json:"objects"`
	Activities int `json:"activities"`
}

// Summary is the capped record of an ended session, suitable for a durable
// best-effort flush. The (UserID, EndedAt) pair keys idempotent upserts.
type Summary struct {
	UserID             string             `json:"user_id"`
	SessionID          string             `json:"session_id"`
	StartedAt          time.Time          `json:"started_at"`
	EndedAt            time.Time          `json:"ended_at"`
	ChunkCount         int                `json:"chunk_count"`
	ObjectsDetected    int                `json:"objects_detected"`
	ActivitiesDetected int                `json:"activities_detected"`
	Objects            []ObservedObject   `json:"objects"`
	Activities         []ObservedActivity `json:"activities"`
}

// Duration returns the session length.
func (s *Summary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}
