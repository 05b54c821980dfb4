package capture

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/fcap"
)

func writeReplayFile(t *testing.T, path string, packets int) {
	t.Helper()
	w, err := fcap.Create(path)
	require.NoError(t, err)
	for i := 0; i < packets; i++ {
		hdr := fcap.RecordHeader{TSSec: uint32(1000 + i), CapLen: 4, WireLen: 4}
		_, err := w.WritePacket(hdr, []byte{1, 2, 3, 4})
		require.NoError(t, err)
	}
	require.NoError(t, w.Finalize(uint64(packets)))
}

func TestFileSourceReplaysPacketsThenEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.fcap")
	writeReplayFile(t, path, 3)

	src, err := OpenFileSource(path)
	require.NoError(t, err)
	defer src.Close()

	var got []Frame
	n, err := src.Dispatch(10, func(f Frame) { got = append(got, f) })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)
	assert.EqualValues(t, 1000, got[0].TSSec)
	assert.EqualValues(t, 1002, got[2].TSSec)

	n, err = src.Dispatch(10, func(Frame) {})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
