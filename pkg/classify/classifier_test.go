package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memoryglass/memoryglass-go/pkg/classify"
)

func TestClassifyLocationQuestions(t *testing.T) {
	tests := []string{
		"where did I leave my keys?",
		"Where is my water bottle",
		"did I leave my water bottle?",
		"where did i put the remote",
	}
	for _, q := range tests {
		t.Run(q, func(t *testing.T) {
			c := classify.Classify(q)
			assert.Equal(t, classify.QueryLocation, c.QueryType)
			assert.True(t, c.IsMemoryQuestion)
		})
	}
}

func TestClassifyPresentTense(t *testing.T) {
	tests := []string{
		"what am I holding?",
		"what is this?",
		"what do you see right now",
		"am I holding a cup",
	}
	for _, q := range tests {
		t.Run(q, func(t *testing.T) {
			c := classify.Classify(q)
			assert.True(t, c.IsPresentTense)
			assert.False(t, c.IsMemoryQuestion)
		})
	}
}

// Present-tense cues override memory cues: a question about what is visible
// now is never routed to the memory window, even when it mentions the past.
func TestClassifyPresentTenseOverridesMemory(t *testing.T) {
	c := classify.Classify("what is the thing I left earlier?")
	assert.True(t, c.IsPresentTense)
	assert.False(t, c.IsMemoryQuestion)
	assert.False(t, c.IsStrongMemoryQuestion)
}

func TestClassifyMemoryQuestions(t *testing.T) {
	tests := []struct {
		question string
		strong   bool
	}{
		{"what was I holding earlier?", true},
		{"What did I hold up earlier?", true},
		{"what did I just show you?", true},
		{"was there a red bottle on the desk?", true},
		{"did I drink my coffee before?", false},
		{"remember the book from a minute ago?", false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			c := classify.Classify(tt.question)
			assert.True(t, c.IsMemoryQuestion)
			assert.Equal(t, tt.strong, c.IsStrongMemoryQuestion)
		})
	}
}

func TestClassifyGeneralFallthrough(t *testing.T) {
	c := classify.Classify("tell me a joke")
	assert.Equal(t, classify.QueryGeneral, c.QueryType)
	assert.False(t, c.IsPresentTense)
	assert.False(t, c.IsMemoryQuestion)
	assert.False(t, c.IsStrongMemoryQuestion)
}

func TestClassifyDeterministic(t *testing.T) {
	q := "  Where DID I leave my KEYS?  "
	first := classify.Classify(q)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, classify.Classify(q))
	}
}
