package search

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
	"github.com/dirtbags/pcapdb/internal/packet"
)

func writeFlowIndex(t *testing.T, path string, keys []fidx.FlowKey) {
	t.Helper()
	entries := make([]fidx.Entry, len(keys))
	for i, k := range keys {
		entries[i] = fidx.Entry{Key: k.Marshal(), Offset: uint64(i) * 128}
	}
	require.NoError(t, fidx.WriteFile(path, fidx.Flow, entries, fidx.Timeval32{}, fidx.Timeval32{}, false))
}

func flowKeyAt(sec uint32, proto uint8, size uint32) fidx.FlowKey {
	return fidx.FlowKey{
		FirstTS: fidx.Timeval32{Sec: sec},
		LastTS:  fidx.Timeval32{Sec: sec + 1},
		SrcVers: packet.IPv4,
		DstVers: packet.IPv4,
		Proto:   proto,
		Size:    size,
	}
}

func TestFlowFetchFiltersByTimeAndProto(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow")

	keys := []fidx.FlowKey{
		flowKeyAt(100, 6, 1000),  // kept: inside window
		flowKeyAt(5, 6, 2000),    // discarded: last_ts before start
		flowKeyAt(9999, 6, 3000), // discarded: first_ts after end
		flowKeyAt(150, 17, 4000), // discarded: wrong proto
	}
	writeFlowIndex(t, path, keys)

	r, err := fidx.Open(path)
	require.NoError(t, err)
	defer r.Close()

	offsets := oset.NewBufferedOffsetSet()
	for i := range keys {
		require.NoError(t, offsets.Push(uint64(4096+i*(64+4))))
	}
	require.NoError(t, offsets.ReadMode())

	out := oset.NewBufferedFlowSet()
	filter := Filter{
		Start: fidx.Timeval32{Sec: 50}, HasStart: true,
		End: fidx.Timeval32{Sec: 500}, HasEnd: true,
		Proto: 6,
	}

	total, err := FlowFetch(r, offsets, filter, out)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, total)

	require.NoError(t, out.ReadMode())
	rec, ok := out.Pop()
	require.True(t, ok)
	assert.EqualValues(t, 100, rec.Key.FirstTS.Sec)
	assert.EqualValues(t, 0, rec.FlowOffset)

	_, ok = out.Pop()
	assert.False(t, ok)
}
