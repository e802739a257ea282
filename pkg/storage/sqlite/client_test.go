package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/session"
	"github.com/memoryglass/memoryglass-go/pkg/storage/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testSummary(endedAt time.Time) *session.Summary {
	return &session.Summary{
		UserID:             "alice",
		SessionID:          "sess-1",
		StartedAt:          endedAt.Add(-10 * time.Minute),
		EndedAt:            endedAt,
		ChunkCount:         4,
		ObjectsDetected:    2,
		ActivitiesDetected: 1,
		Objects: []session.ObservedObject{
			{Description: "red water bottle", Location: "on the desk", Confidence: 0.9, Timestamp: endedAt.Add(-5 * time.Minute)},
		},
		Activities: []session.ObservedActivity{
			{Description: "typing", Timestamp: endedAt.Add(-3 * time.Minute)},
		},
	}
}

func TestSaveSessionSummaryIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	endedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sum := testSummary(endedAt)
	require.NoError(t, c.SaveSessionSummary(ctx, sum))

	// Same (user, ended_at) pair replaces the row instead of duplicating it.
	sum.ChunkCount = 9
	require.NoError(t, c.SaveSessionSummary(ctx, sum))

	got, err := c.FindHistoricalSummaries(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].ChunkCount)
	require.Len(t, got[0].Objects, 1)
	assert.Equal(t, "red water bottle", got[0].Objects[0].Description)
}

func TestFindHistoricalSummariesNewestFirst(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.SaveSessionSummary(ctx, testSummary(base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, c.SaveSessionSummary(ctx, &session.Summary{
		UserID: "bob", SessionID: "s", StartedAt: base, EndedAt: base,
	}))

	got, err := c.FindHistoricalSummaries(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].EndedAt.After(got[1].EndedAt))
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetCache(ctx, "k1", []byte("v1"), time.Minute))

	v, ok, err := c.GetCache(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	_, ok, err = c.GetCache(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	// An already-expired entry is a miss.
	require.NoError(t, c.SetCache(ctx, "k2", []byte("v2"), -time.Second))
	_, ok, err = c.GetCache(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheReplaceValue(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetCache(ctx, "k", []byte("old"), time.Minute))
	require.NoError(t, c.SetCache(ctx, "k", []byte("new"), time.Minute))

	v, ok, err := c.GetCache(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)
}
