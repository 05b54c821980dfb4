package pcapout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/fcap"
	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
)

// writePacket writes one minimal packet at sec and returns the offset it
// started at.
func writePacket(t *testing.T, w *fcap.Writer, sec uint32) uint64 {
	t.Helper()
	off, err := w.WritePacket(fcap.RecordHeader{TSSec: sec, CapLen: 4, WireLen: 4}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	return off
}

// TestMaterializeMergesFlowsInTimestampOrder replicates flow X at
// t=[1,4,5] and flow Y at t=[2,3,6] merging into ascending output
// timestamps [1,2,3,4,5,6].
func TestMaterializeMergesFlowsInTimestampOrder(t *testing.T) {
	dir := t.TempDir()
	fcapPath := filepath.Join(dir, "capture.fcap")

	w, err := fcap.Create(fcapPath)
	require.NoError(t, err)

	xOffset := writePacket(t, w, 1)
	writePacket(t, w, 4)
	writePacket(t, w, 5)

	yOffset := writePacket(t, w, 2)
	writePacket(t, w, 3)
	writePacket(t, w, 6)

	require.NoError(t, w.Finalize(6))

	flowX := fidx.FlowKey{FirstTS: fidx.Timeval32{Sec: 1}, LastTS: fidx.Timeval32{Sec: 5}, Packets: 3, Size: 3 * (fcap.RecordHeaderSize + 4)}
	flowY := fidx.FlowKey{FirstTS: fidx.Timeval32{Sec: 2}, LastTS: fidx.Timeval32{Sec: 6}, Packets: 3, Size: 3 * (fcap.RecordHeaderSize + 4)}

	flows := oset.NewBufferedFlowSet()
	require.NoError(t, flows.Push(oset.FlowRecord{Key: flowX, FlowOffset: xOffset}))
	require.NoError(t, flows.Push(oset.FlowRecord{Key: flowY, FlowOffset: yOffset}))
	require.NoError(t, flows.ReadMode())

	outPath := filepath.Join(dir, "out.pcap")
	n, err := Materialize(flows, fcapPath, outPath)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	out, err := fcap.Open(outPath)
	require.NoError(t, err)
	defer out.Close()
	assert.EqualValues(t, 6, out.Header.PacketCount)

	var got []uint32
	offset := uint64(fcap.FileHeaderSize)
	for i := 0; i < 6; i++ {
		hdr, _, next, err := out.ReadPacketAt(offset)
		require.NoError(t, err)
		got = append(got, hdr.TSSec)
		offset = next
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6}, got)
}

// TestMaterializeRejectsMismatchedFirstTimestamp checks invariant (a):
// a flow record whose recorded first_ts does not match its first packet
// in the FCAP file is fatal, not silently tolerated.
func TestMaterializeRejectsMismatchedFirstTimestamp(t *testing.T) {
	dir := t.TempDir()
	fcapPath := filepath.Join(dir, "capture.fcap")

	w, err := fcap.Create(fcapPath)
	require.NoError(t, err)
	off := writePacket(t, w, 1)
	require.NoError(t, w.Finalize(1))

	badFlow := fidx.FlowKey{FirstTS: fidx.Timeval32{Sec: 99}, LastTS: fidx.Timeval32{Sec: 99}, Packets: 1, Size: fcap.RecordHeaderSize + 4}

	flows := oset.NewBufferedFlowSet()
	require.NoError(t, flows.Push(oset.FlowRecord{Key: badFlow, FlowOffset: off}))
	require.NoError(t, flows.ReadMode())

	_, err = Materialize(flows, fcapPath, filepath.Join(dir, "out.pcap"))
	assert.Error(t, err)
}

// TestMaterializeSkipsZeroPacketFlows checks a flow record with Packets
// == 0 contributes nothing (and doesn't panic on an empty read).
func TestMaterializeSkipsZeroPacketFlows(t *testing.T) {
	dir := t.TempDir()
	fcapPath := filepath.Join(dir, "capture.fcap")

	w, err := fcap.Create(fcapPath)
	require.NoError(t, err)
	off := writePacket(t, w, 1)
	require.NoError(t, w.Finalize(1))

	flow := fidx.FlowKey{FirstTS: fidx.Timeval32{Sec: 1}, LastTS: fidx.Timeval32{Sec: 1}, Packets: 1, Size: fcap.RecordHeaderSize + 4}
	empty := fidx.FlowKey{Packets: 0}

	flows := oset.NewBufferedFlowSet()
	require.NoError(t, flows.Push(oset.FlowRecord{Key: empty, FlowOffset: off}))
	require.NoError(t, flows.Push(oset.FlowRecord{Key: flow, FlowOffset: off}))
	require.NoError(t, flows.ReadMode())

	n, err := Materialize(flows, fcapPath, filepath.Join(dir, "out.pcap"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
