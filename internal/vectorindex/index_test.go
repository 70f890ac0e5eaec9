package vectorindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repochat/repochat/pkg/types"
)

func TestIndexQueryRanking(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert(0, []float32{1, 0}))
	require.NoError(t, ix.Insert(1, []float32{0, 1}))
	require.NoError(t, ix.Insert(2, []float32{0.7071, 0.7071}))

	matches, err := ix.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, 0, matches[0].Seq)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, 2, matches[1].Seq)
	assert.Equal(t, 1, matches[2].Seq)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
}

func TestIndexQueryTopKClamping(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert(0, []float32{1, 0}))
	require.NoError(t, ix.Insert(1, []float32{0, 1}))

	tests := []struct {
		name string
		topK int
		want int
	}{
		{name: "zero", topK: 0, want: 0},
		{name: "negative", topK: -5, want: 0},
		{name: "larger than index", topK: 100, want: 2},
		{name: "exact", topK: 2, want: 2},
		{name: "smaller", topK: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := ix.Query([]float32{1, 0}, tt.topK)
			require.NoError(t, err)
			assert.Len(t, matches, tt.want)
		})
	}
}

func TestIndexQueryTiesKeepInsertionOrder(t *testing.T) {
	ix := New(2)
	// Identical vectors score identically against any query.
	require.NoError(t, ix.Insert(7, []float32{1, 1}))
	require.NoError(t, ix.Insert(3, []float32{1, 1}))
	require.NoError(t, ix.Insert(5, []float32{1, 1}))

	matches, err := ix.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 3, 5}, []int{matches[0].Seq, matches[1].Seq, matches[2].Seq})
}

func TestIndexDimensionMismatch(t *testing.T) {
	ix := New(3)
	assert.Error(t, ix.Insert(0, []float32{1, 0}))

	require.NoError(t, ix.Insert(0, []float32{1, 0, 0}))
	_, err := ix.Query([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestIndexZeroVectorScoresZero(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Insert(0, []float32{0, 0}))

	matches, err := ix.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, matches[0].Score)
}

func TestNewFromEntries(t *testing.T) {
	entries := []Entry{
		{Seq: 0, Vector: []float32{1, 0}},
		{Seq: 1, Vector: []float32{0, 1}},
	}
	ix, err := NewFromEntries(2, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	_, err = NewFromEntries(3, entries)
	assert.Error(t, err)
}

type fakeLoader struct {
	entries map[string][]Entry
	err     error
	calls   int
}

func (f *fakeLoader) LoadIndex(_ context.Context, codebaseID string) ([]Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[codebaseID], nil
}

func TestManagerGetLoadsOnce(t *testing.T) {
	loader := &fakeLoader{entries: map[string][]Entry{
		"cb-1": {{Seq: 0, Vector: []float32{1, 0}}},
	}}
	m := NewManager(loader)
	ctx := context.Background()

	ix1, err := m.Get(ctx, "cb-1")
	require.NoError(t, err)
	ix2, err := m.Get(ctx, "cb-1")
	require.NoError(t, err)

	assert.Same(t, ix1, ix2)
	assert.Equal(t, 1, loader.calls)
}

func TestManagerGetUnknown(t *testing.T) {
	m := NewManager(&fakeLoader{entries: map[string][]Entry{}})
	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
}

func TestManagerGetNilLoader(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Get(context.Background(), "cb-1")
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
}

func TestManagerGetLoaderError(t *testing.T) {
	loader := &fakeLoader{err: errors.New("db down")}
	m := NewManager(loader)
	_, err := m.Get(context.Background(), "cb-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrIndexNotFound)
}

func TestManagerPutAndRemove(t *testing.T) {
	m := NewManager(&fakeLoader{entries: map[string][]Entry{}})
	ix := New(2)
	m.Put("cb-1", ix)

	got, err := m.Get(context.Background(), "cb-1")
	require.NoError(t, err)
	assert.Same(t, ix, got)

	m.Remove("cb-1")
	_, err = m.Get(context.Background(), "cb-1")
	assert.ErrorIs(t, err, types.ErrIndexNotFound)
}
