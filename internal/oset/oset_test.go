package oset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainOffsets(t *testing.T, s *OffsetSet) []uint64 {
	t.Helper()
	var got []uint64
	for {
		v, ok := s.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	return got
}

func TestOffsetSetInMemoryRoundTrip(t *testing.T) {
	s := NewBufferedOffsetSet()
	for _, v := range []uint64{1, 2, 3, 100} {
		require.NoError(t, s.Push(v))
	}
	require.NoError(t, s.ReadMode())
	assert.Equal(t, []uint64{1, 2, 3, 100}, drainOffsets(t, s))
}

func TestOffsetSetCommitAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offsets.oset")

	w, err := CreateOffsetSet(path)
	require.NoError(t, err)
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, w.Push(i * 10))
	}
	require.NoError(t, w.Commit())

	r, err := OpenOffsetSet(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []uint64{0, 10, 20, 30, 40}, drainOffsets(t, r))
}

func TestOffsetSetCreateFailsWhenOutputExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offsets.oset")

	w, err := CreateOffsetSet(path)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	_, err = CreateOffsetSet(path)
	assert.ErrorIs(t, err, ErrExists)
}

func TestOffsetSetSpillsPastBufferCapacity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.oset")

	w, err := CreateOffsetSet(path)
	require.NoError(t, err)

	const n = 20000 // 20000 * 8 bytes > maxPages*pageSize (16 * 4096)
	for i := uint64(0); i < n; i++ {
		require.NoError(t, w.Push(i))
	}
	require.NoError(t, w.Commit())

	r, err := OpenOffsetSet(path)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		v, ok := r.Pop()
		if !ok {
			break
		}
		assert.EqualValues(t, count, v)
		count++
	}
	assert.Equal(t, n, count)
}

func TestOffsetSetSeek(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offsets.oset")

	w, err := CreateOffsetSet(path)
	require.NoError(t, err)
	for i := uint64(0); i < 10; i++ {
		require.NoError(t, w.Push(i))
	}
	require.NoError(t, w.Commit())

	r, err := OpenOffsetSet(path)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Seek(7))
	v, ok := r.Pop()
	require.True(t, ok)
	assert.EqualValues(t, 7, v)
}
