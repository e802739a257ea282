// Package cache implements the two-tier answer cache.
//
// The short-lived tier suppresses literal duplicate submissions arriving
// within seconds of each other; the long-lived tier covers genuine repeat
// questions and is durably backed when a DurableStore is configured. Both
// tiers share one normalized key space.
package cache

import (
	"strings"
	"time"
)

// Entry is a cached answer for one (user, question) pair.
type Entry struct {
	// Answer is the final natural-language answer text.
	Answer string `json:"answer"`

	// UsedMemory indicates the answer referenced the memory window.
	UsedMemory bool `json:"used_memory"`

	// ObjectsFound and ActivitiesFound count the window entries the
	// answer referenced.
	ObjectsFound    int `json:"objects_found"`
	ActivitiesFound int `json:"activities_found"`

	// Fallback indicates the answer was produced by the memory-only
	// fallback after an external failure.
	Fallback bool `json:"fallback,omitempty"`

	// CreatedAt is when the answer was produced.
	CreatedAt time.Time `json:"created_at"`
}

// Tier is one cache tier keyed by normalized (user, question) keys.
type Tier interface {
	Get(userID, question string) (*Entry, bool)
	Set(userID, question string, e *Entry)
}

// Normalize builds the cache key: the question is lowercased, trimmed, and
// internal whitespace is collapsed, then concatenated with the user ID.
func Normalize(userID, question string) string {
	q := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	return userID + "|" + q
}

// TwoTier checks the short-TTL tier first, then the long-TTL tier. A hit on
// either means the external model is never invoked for the question.
type TwoTier struct {
	Short Tier
	Long  Tier
}

// Get returns the cached entry for the pair, preferring the short tier.
func (t *TwoTier) Get(userID, question string) (*Entry, bool) {
	if t.Short != nil {
		if e, ok := t.Short.Get(userID, question); ok {
			return e, true
		}
	}
	if t.Long != nil {
		if e, ok := t.Long.Get(userID, question); ok {
			return e, true
		}
	}
	return nil, false
}

// Set writes the entry to both tiers with their respective TTLs.
func (t *TwoTier) Set(userID, question string, e *Entry) {
	if t.Short != nil {
		t.Short.Set(userID, question, e)
	}
	if t.Long != nil {
		t.Long.Set(userID, question, e)
	}
}
