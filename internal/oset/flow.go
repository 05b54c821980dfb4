package oset

import (
	"encoding/binary"

	"github.com/dirtbags/pcapdb/internal/fidx"
)

// flowRecordSize is fcap_flow_rec's packed size: a 64-byte FlowKey plus
// an 8-byte flow_offset (ordered_set.h: "80 + 8 bytes" — the original's
// comment counts alignment padding the unpacked C struct actually had;
// FlowKey's Go encoding has none, so this set's on-disk layout is 8
// bytes smaller per record).
const flowRecordSize = 64 + 8

// FlowRecord is the OSET_FLOW datatype: a flow's summary key plus the
// byte offset of its row in the FLOW FIDX file, the pair a search
// result set carries once it has resolved a query down to specific
// flows (§4.H, §4.I).
type FlowRecord struct {
	Key        fidx.FlowKey
	FlowOffset uint64
}

// FlowCodec packs a FlowRecord as FlowKey.Marshal() followed by an
// 8-byte little-endian offset.
type FlowCodec struct{}

func (FlowCodec) Size() int { return flowRecordSize }

func (FlowCodec) Marshal(buf []byte, v FlowRecord) []byte {
	buf = append(buf, v.Key.Marshal()...)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v.FlowOffset)
	return append(buf, b[:]...)
}

func (FlowCodec) Unmarshal(buf []byte) FlowRecord {
	key, err := fidx.UnmarshalFlowKey(buf[:64])
	if err != nil {
		// UnmarshalFlowKey only fails on a short buffer, which cannot
		// happen here: Peek/Pop always hand Unmarshal a full
		// flowRecordSize slice.
		panic("oset: corrupt flow record: " + err.Error())
	}
	return FlowRecord{
		Key:        key,
		FlowOffset: binary.LittleEndian.Uint64(buf[64:72]),
	}
}

// FlowSet is an ordered set of flow records, ordered by fidx.FlowKeyCmp.
type FlowSet = Set[FlowRecord]

// CreateFlowSet opens a new flow set for writing.
func CreateFlowSet(path string) (*FlowSet, error) {
	return Create[FlowRecord](path, FlowCodec{})
}

// NewBufferedFlowSet builds an in-memory (spill-on-overflow) flow set.
func NewBufferedFlowSet() *FlowSet {
	return NewBuffered[FlowRecord](FlowCodec{})
}

// OpenFlowSet opens an existing flow set for reading.
func OpenFlowSet(path string) (*FlowSet, error) {
	return Open[FlowRecord](path, FlowCodec{})
}
