package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() session.Config {
	return session.Config{
		RetentionHorizon: 20 * time.Minute,
		IdleThreshold:    time.Hour,
		MaxObjects:       200,
		MaxActivities:    200,
		MaxChunks:        50,
		SummaryCap:       50,
	}
}

func obj(desc, loc string, ts time.Time) session.ObservedObject {
	return session.ObservedObject{Description: desc, Location: loc, Confidence: 0.9, Timestamp: ts}
}

func TestGetOrCreateReusesLiveSession(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	a := s.GetOrCreate("alice", t0)
	b := s.GetOrCreate("alice", t0.Add(time.Minute))
	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, 1, s.Len())
}

func TestEndReturnsSummaryAndIsIdempotent(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	s.GetOrCreate("alice", t0)
	s.RecordChunk("alice", session.ChunkRecord{ID: 1, Size: 1024, MimeType: "video/webm"}, t0)
	s.RecordObservations("alice",
		[]session.ObservedObject{obj("red water bottle", "on the desk", t0)},
		[]session.ObservedActivity{{Description: "typing", Timestamp: t0}},
		t0)

	sum := s.End("alice", t0.Add(10*time.Minute))
	require.NotNil(t, sum)
	assert.Equal(t, "alice", sum.UserID)
	assert.Equal(t, 1, sum.ChunkCount)
	assert.Equal(t, 1, sum.ObjectsDetected)
	assert.Equal(t, 1, sum.ActivitiesDetected)
	assert.Equal(t, 10*time.Minute, sum.Duration())
	assert.Len(t, sum.Objects, 1)

	assert.Nil(t, s.End("alice", t0.Add(11*time.Minute)))
	assert.Equal(t, 0, s.Len())
}

func TestEndThenCreateGetsFreshSession(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	first := s.GetOrCreate("alice", t0)
	firstID := first.ID()
	s.End("alice", t0.Add(time.Minute))

	second := s.GetOrCreate("alice", t0.Add(2*time.Minute))
	assert.NotEqual(t, firstID, second.ID())
}

func TestSummaryCapsEntries(t *testing.T) {
	cfg := testConfig()
	cfg.SummaryCap = 3
	s := session.NewStore(cfg, nil)

	var objects []session.ObservedObject
	for i := 0; i < 10; i++ {
		objects = append(objects, obj("item", "", t0))
	}
	s.RecordObservations("alice", objects, nil, t0)

	sum := s.End("alice", t0.Add(time.Minute))
	require.NotNil(t, sum)
	assert.Equal(t, 10, sum.ObjectsDetected)
	assert.Len(t, sum.Objects, 3)
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	s.GetOrCreate("idle", t0)
	s.GetOrCreate("active", t0)
	s.GetOrCreate("active", t0.Add(59*time.Minute))

	removed := s.Sweep(t0.Add(61 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Nil(t, s.Get("idle"))
	assert.NotNil(t, s.Get("active"))
}

func TestSweptSessionDoesNotResurrect(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	s.GetOrCreate("alice", t0)
	s.Sweep(t0.Add(2 * time.Hour))
	require.Nil(t, s.Get("alice"))

	// A write after the sweep lands in a fresh session.
	_, size := s.RecordChunk("alice", session.ChunkRecord{ID: 1, Size: 512, MimeType: "video/webm"}, t0.Add(3*time.Hour))
	assert.Equal(t, session.WindowSize{}, size)
	assert.NotNil(t, s.Get("alice"))
}
