package fcap

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	h := FileHeader{PacketCount: 42}
	buf := h.Marshal()
	require.Len(t, buf, FileHeaderSize)

	got, err := UnmarshalFileHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestUnmarshalFileHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, FileHeaderSize)
	_, err := UnmarshalFileHeader(buf)
	assert.ErrorIs(t, err, errBadMagic)
}

func TestRecordHeaderRoundTrip(t *testing.T) {
	h := RecordHeader{TSSec: 100, TSUsec: 200, CapLen: 60, WireLen: 60}
	buf := h.Marshal()
	require.Len(t, buf, RecordHeaderSize)

	got, err := UnmarshalRecordHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestWriterTracksOffsets(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.EqualValues(t, FileHeaderSize, w.Offset())

	off1, err := w.WritePacket(RecordHeader{CapLen: 10, WireLen: 10}, make([]byte, 10))
	require.NoError(t, err)
	assert.EqualValues(t, FileHeaderSize, off1)

	off2, err := w.WritePacket(RecordHeader{CapLen: 20, WireLen: 20}, make([]byte, 20))
	require.NoError(t, err)
	assert.EqualValues(t, FileHeaderSize+RecordHeaderSize+10, off2)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.fcap")

	w, err := Create(path)
	require.NoError(t, err)

	payloads := [][]byte{
		bytes.Repeat([]byte{0xaa}, 14),
		bytes.Repeat([]byte{0xbb}, 40),
	}
	var offsets []uint64
	for i, p := range payloads {
		off, err := w.WritePacket(RecordHeader{TSSec: uint32(i), CapLen: uint32(len(p)), WireLen: uint32(len(p))}, p)
		require.NoError(t, err)
		offsets = append(offsets, off)
	}
	require.NoError(t, w.Finalize(uint64(len(payloads))))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.EqualValues(t, len(payloads), r.Header.PacketCount)

	off := offsets[0]
	for i, want := range payloads {
		hdr, got, next, err := r.ReadPacketAt(off)
		require.NoError(t, err)
		assert.EqualValues(t, i, hdr.TSSec)
		assert.True(t, bytes.Equal(want, got))
		off = next
	}
}
