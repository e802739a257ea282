package session_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/session"
)

func TestRecordChunkIndexesSequentially(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	for i := 1; i <= 3; i++ {
		idx, _ := s.RecordChunk("alice", session.ChunkRecord{ID: int64(i), Size: 1024, MimeType: "video/webm"}, t0.Add(time.Duration(i)*time.Second))
		assert.Equal(t, i, idx)
	}
}

func TestWindowExcludesEntriesPastHorizon(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	s.RecordObservations("alice",
		[]session.ObservedObject{obj("red water bottle", "on the desk", t0)},
		nil, t0)

	v, ok := s.Window("alice", t0.Add(11*time.Minute))
	require.True(t, ok)
	require.Len(t, v.Objects, 1)
	assert.Equal(t, "red water bottle", v.Objects[0].Description)

	// Entry at exactly the horizon boundary is still visible.
	v, ok = s.Window("alice", t0.Add(20*time.Minute))
	require.True(t, ok)
	assert.Len(t, v.Objects, 1)

	v, ok = s.Window("alice", t0.Add(21*time.Minute))
	require.True(t, ok)
	assert.Empty(t, v.Objects)
}

func TestWindowAbsentWithoutSession(t *testing.T) {
	s := session.NewStore(testConfig(), nil)
	_, ok := s.Window("nobody", t0)
	assert.False(t, ok)
}

func TestPruneDropsOldEntriesOnWrite(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	s.RecordObservations("alice",
		[]session.ObservedObject{obj("old thing", "", t0)}, nil, t0)

	// Writing 21 minutes later prunes the old entry from the session.
	size := s.RecordObservations("alice",
		[]session.ObservedObject{obj("new thing", "", t0.Add(21*time.Minute))},
		nil, t0.Add(21*time.Minute))
	assert.Equal(t, 1, size.Objects)
}

func TestCountCapsKeepMostRecent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxObjects = 5
	s := session.NewStore(cfg, nil)

	for i := 0; i < 8; i++ {
		s.RecordObservations("alice",
			[]session.ObservedObject{obj(fmt.Sprintf("item-%d", i), "", t0.Add(time.Duration(i)*time.Second))},
			nil, t0.Add(time.Duration(i)*time.Second))
	}

	v, ok := s.Window("alice", t0.Add(time.Minute))
	require.True(t, ok)
	require.Len(t, v.Objects, 5)
	assert.Equal(t, "item-3", v.Objects[0].Description)
	assert.Equal(t, "item-7", v.Objects[4].Description)
}

func TestWindowIsACopy(t *testing.T) {
	s := session.NewStore(testConfig(), nil)

	s.RecordObservations("alice",
		[]session.ObservedObject{obj("bottle", "desk", t0)}, nil, t0)

	v, _ := s.Window("alice", t0)
	v.Objects[0].Description = "mutated"

	v2, _ := s.Window("alice", t0)
	assert.Equal(t, "bottle", v2.Objects[0].Description)
}
