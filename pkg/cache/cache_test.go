package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryglass/memoryglass-go/pkg/cache"
	"github.com/memoryglass/memoryglass-go/pkg/session"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		userID, question, want string
	}{
		{"alice", "Where is my bottle?", "alice|where is my bottle?"},
		{"alice", "  where   IS my    bottle? ", "alice|where is my bottle?"},
		{"bob", "Where is my bottle?", "bob|where is my bottle?"},
		{"alice", "", "alice|"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cache.Normalize(tt.userID, tt.question))
	}
}

// mapTier is a trivial synchronous Tier for wiring tests.
type mapTier struct {
	entries map[string]*cache.Entry
}

func newMapTier() *mapTier {
	return &mapTier{entries: make(map[string]*cache.Entry)}
}

func (m *mapTier) Get(userID, question string) (*cache.Entry, bool) {
	e, ok := m.entries[cache.Normalize(userID, question)]
	return e, ok
}

func (m *mapTier) Set(userID, question string, e *cache.Entry) {
	m.entries[cache.Normalize(userID, question)] = e
}

func TestTwoTierPrefersShort(t *testing.T) {
	short, long := newMapTier(), newMapTier()
	tt := &cache.TwoTier{Short: short, Long: long}

	short.Set("alice", "q", &cache.Entry{Answer: "short"})
	long.Set("alice", "q", &cache.Entry{Answer: "long"})

	e, ok := tt.Get("alice", "q")
	require.True(t, ok)
	assert.Equal(t, "short", e.Answer)
}

func TestTwoTierFallsBackToLong(t *testing.T) {
	short, long := newMapTier(), newMapTier()
	tt := &cache.TwoTier{Short: short, Long: long}

	long.Set("alice", "q", &cache.Entry{Answer: "long"})

	e, ok := tt.Get("alice", "q")
	require.True(t, ok)
	assert.Equal(t, "long", e.Answer)

	_, ok = tt.Get("alice", "other")
	assert.False(t, ok)
}

func TestTwoTierSetWritesBoth(t *testing.T) {
	short, long := newMapTier(), newMapTier()
	tt := &cache.TwoTier{Short: short, Long: long}

	tt.Set("alice", "q", &cache.Entry{Answer: "a"})

	_, ok := short.Get("alice", "q")
	assert.True(t, ok)
	_, ok = long.Get("alice", "q")
	assert.True(t, ok)
}

func TestRistrettoTierRoundTrip(t *testing.T) {
	tier, err := cache.NewRistrettoTier(time.Minute)
	require.NoError(t, err)
	defer tier.Close()

	tier.Set("alice", "Where is my bottle?", &cache.Entry{Answer: "on the desk"})
	tier.Wait()

	// Same normalized key regardless of spacing and case.
	e, ok := tier.Get("alice", "where   is my bottle?")
	require.True(t, ok)
	assert.Equal(t, "on the desk", e.Answer)

	_, ok = tier.Get("bob", "where is my bottle?")
	assert.False(t, ok)
}

// fakeStore is an in-memory storage.DurableStore for tier tests.
type fakeStore struct {
	values map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string][]byte)}
}

func (f *fakeStore) SaveSessionSummary(context.Context, *session.Summary) error { return nil }

func (f *fakeStore) FindHistoricalSummaries(context.Context, string, int) ([]*session.Summary, error) {
	return nil, nil
}

func (f *fakeStore) GetCache(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStore) SetCache(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.values[key] = value
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestDurableTierRoundTrip(t *testing.T) {
	store := newFakeStore()
	tier := cache.NewDurableTier(store, time.Minute, nil)

	in := &cache.Entry{Answer: "on the desk", UsedMemory: true, ObjectsFound: 2}
	tier.Set("alice", "where is my bottle", in)

	out, ok := tier.Get("alice", "where is my bottle")
	require.True(t, ok)
	assert.Equal(t, in.Answer, out.Answer)
	assert.Equal(t, in.UsedMemory, out.UsedMemory)
	assert.Equal(t, in.ObjectsFound, out.ObjectsFound)

	_, ok = tier.Get("alice", "unknown question")
	assert.False(t, ok)
}

func TestDurableTierCorruptEntryIsAMiss(t *testing.T) {
	store := newFakeStore()
	store.values[cache.Normalize("alice", "q")] = []byte("{not json")
	tier := cache.NewDurableTier(store, time.Minute, nil)

	_, ok := tier.Get("alice", "q")
	assert.False(t, ok)
}
