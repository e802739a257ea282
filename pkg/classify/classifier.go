// Package classify implements the deterministic question classifier.
//
// Classification is rule-ordered: an ordered table of predicates is evaluated
// top-to-bottom and each matching rule contributes a fragment of the final
// Classification. Rule order is load-bearing: present-tense detection always
// overrides memory detection, which decides whether the current chunk or the
// session's historical memory is consulted downstream.
package classify

import "strings"

// QueryType distinguishes "where is my X" questions from everything else.
type QueryType string

const (
	// QueryLocation marks questions about where an object is or was left.
	QueryLocation QueryType = "location"

	// QueryGeneral marks all other questions.
	QueryGeneral QueryType = "general"
)

// Classification is the derived, non-persisted result of classifying a question.
type Classification struct {
	// QueryType is location or general.
	QueryType QueryType `json:"query_type"`

	// IsPresentTense indicates the question asks about what is visible now.
	// When set, IsMemoryQuestion is forced to false.
	IsPresentTense bool `json:"is_present_tense"`

	// IsMemoryQuestion indicates the question asks about past observations.
	IsMemoryQuestion bool `json:"is_memory_question"`

	// IsStrongMemoryQuestion is a stricter subset of IsMemoryQuestion:
	// the answer can be produced purely from window text, no media needed.
	IsStrongMemoryQuestion bool `json:"is_strong_memory_question"`
}

// locationKeywords are cues that the question is about an object's location.
// "leave" covers the bare "did I leave ..." phrasing alongside "left".
var locationKeywords = []string{"where", "left", "leave", "placed", "put", "location", "position"}

// locationVerbs must co-occur with a location keyword for a location query.
var locationVerbs = []string{"leave", "is", "did"}

// presentPatterns detect present-tense questions about the current chunk.
// These take precedence over every past-oriented cue.
var presentPatterns = []string{
	"what am i",
	"what is",
	"what's this",
	"what's that",
	"what are",
	"what do you see",
	"do you see",
	"am i holding",
	"right now",
	"currently",
	"at the moment",
}

// memoryCues detect past-oriented questions answered from the memory window.
// Location questions are memory questions too (see the memory rule): asking
// where an object is means asking where it was last observed.
var memoryCues = []string{
	"did i",
	"left",
	"ago",
	"earlier",
	"before",
	"was there",
	"what was",
	"just showed",
	"i just",
	"remember",
	"what did i",
	"held up",
}

// strongMemoryCues mark questions answerable purely from window text,
// bypassing media analysis entirely.
var strongMemoryCues = []string{
	"what was",
	"just showed",
	"i just",
	"did i leave",
	"was there",
	"what did",
}

// rule is one row of the ordered classification table.
type rule struct {
	name  string
	match func(q string) bool
	apply func(q string, c *Classification)
}

// rules is evaluated top-to-bottom. Do not reorder: present-tense must be
// decided before the memory cues are consulted.
var rules = []rule{
	{
		name: "location",
		match: isLocationQuery,
		apply: func(q string, c *Classification) {
			c.QueryType = QueryLocation
		},
	},
	{
		name: "present-tense",
		match: func(q string) bool {
			return containsAny(q, presentPatterns)
		},
		apply: func(q string, c *Classification) {
			c.IsPresentTense = true
		},
	},
	{
		name: "memory",
		match: func(q string) bool {
			return containsAny(q, memoryCues) || isLocationQuery(q)
		},
		apply: func(q string, c *Classification) {
			if c.IsPresentTense {
				return
			}
			c.IsMemoryQuestion = true
		},
	},
	{
		name: "strong-memory",
		match: func(q string) bool {
			return containsAny(q, strongMemoryCues)
		},
		apply: func(q string, c *Classification) {
			if !c.IsMemoryQuestion {
				return
			}
			c.IsStrongMemoryQuestion = true
		},
	},
}

// Classify classifies a natural-language question.
//
// The function is pure and deterministic: the same question always yields the
// same Classification. Input is lowercased and whitespace-trimmed before the
// rule table is evaluated.
func Classify(question string) Classification {
	q := strings.ToLower(strings.TrimSpace(question))

	c := Classification{QueryType: QueryGeneral}
	for _, r := range rules {
		if r.match(q) {
			r.apply(q, &c)
		}
	}
	return c
}

// isLocationQuery reports whether q asks about an object's whereabouts: a
// location keyword must co-occur with one of the location verbs.
func isLocationQuery(q string) bool {
	return containsAny(q, locationKeywords) && containsAny(q, locationVerbs)
}

// containsAny reports whether q contains any of the given substrings.
func containsAny(q string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(q, cue) {
			return true
		}
	}
	return false
}
