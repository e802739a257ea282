package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

func TestExtractSubject(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"where is my water bottle?", "water bottle"},
		{"Where are the car keys", "car keys"},
		{"where did I leave my phone?", "phone"},
		{"where did i put the remote somewhere", "remote"},
		{"did I leave my wallet anywhere?", "wallet"},
		{"did I put the glasses down", "glasses down"},
		{"where is it?", ""},
		{"tell me a joke", ""},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSubject(tt.question))
		})
	}
}

func TestBestMatchPrefersConfidenceThenRecency(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	objects := []session.ObservedObject{
		{Description: "blue water bottle", Confidence: 0.6, Timestamp: base},
		{Description: "red water bottle", Confidence: 0.9, Timestamp: base.Add(time.Minute)},
		{Description: "red water bottle", Confidence: 0.9, Timestamp: base.Add(2 * time.Minute)},
		{Description: "coffee mug", Confidence: 0.99, Timestamp: base},
	}

	got, ok := bestMatch(objects, "water bottle")
	require.True(t, ok)
	assert.Equal(t, "red water bottle", got.Description)
	assert.Equal(t, base.Add(2*time.Minute), got.Timestamp)

	_, ok = bestMatch(objects, "umbrella")
	assert.False(t, ok)
}

func TestParseChunkAnalysis(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Models often wrap the JSON in prose or code fences.
	reply := "Here is what I can see:\n```json\n" + `{
		"objects": [
			{"description": "red water bottle", "location": "on the desk", "confidence": 1.4},
			{"description": "   ", "confidence": 0.9}
		],
		"activities": [
			{"description": "typing"}
		]
	}` + "\n```"

	objects, activities, err := parseChunkAnalysis(reply, now)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "red water bottle", objects[0].Description)
	assert.Equal(t, "on the desk", objects[0].Location)
	assert.Equal(t, 1.0, objects[0].Confidence)
	assert.Equal(t, now, objects[0].Timestamp)
	require.Len(t, activities, 1)
	assert.Equal(t, "typing", activities[0].Description)
}

func TestParseChunkAnalysisRejectsNonJSON(t *testing.T) {
	_, _, err := parseChunkAnalysis("I see a desk and a chair.", time.Now())
	assert.Error(t, err)
}

func TestFallbackEntryWithEmptyWindow(t *testing.T) {
	e := fallbackEntry(session.View{}, time.Now())
	assert.True(t, e.Fallback)
	assert.False(t, e.UsedMemory)
	assert.Contains(t, e.Answer, "try again")
}

func TestFallbackEntryListsRecentObservations(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := session.View{
		Objects: []session.ObservedObject{
			{Description: "red water bottle", Location: "on the desk", Timestamp: now.Add(-5 * time.Minute)},
		},
		Activities: []session.ObservedActivity{
			{Description: "typing", Timestamp: now.Add(-2 * time.Minute)},
		},
	}

	e := fallbackEntry(v, now)
	assert.True(t, e.Fallback)
	assert.True(t, e.UsedMemory)
	assert.Contains(t, e.Answer, "red water bottle on the desk")
	assert.Contains(t, e.Answer, "5 minutes ago")
	assert.Contains(t, e.Answer, "typing")
	assert.Equal(t, 1, e.ObjectsFound)
	assert.Equal(t, 1, e.ActivitiesFound)
}
