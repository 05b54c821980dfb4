package oset

import "encoding/binary"

// OffsetCodec packs a bare uint64 byte offset, the OSET_OFFSET
// datatype — used for sub-index search results, where a FIDX reader
// has already resolved a key match down to the flow's byte offset in
// the FLOW index (§4.G/§4.H).
type OffsetCodec struct{}

func (OffsetCodec) Size() int { return 8 }

func (OffsetCodec) Marshal(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func (OffsetCodec) Unmarshal(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// OffsetSet is an ordered set of FLOW-index byte offsets.
type OffsetSet = Set[uint64]

// CreateOffsetSet opens a new offset set for writing.
func CreateOffsetSet(path string) (*OffsetSet, error) {
	return Create[uint64](path, OffsetCodec{})
}

// NewBufferedOffsetSet builds an in-memory (spill-on-overflow) offset
// set, for intermediate AND/OR results that are never written to a
// named path (§4.H).
func NewBufferedOffsetSet() *OffsetSet {
	return NewBuffered[uint64](OffsetCodec{})
}

// OpenOffsetSet opens an existing offset set for reading.
func OpenOffsetSet(path string) (*OffsetSet, error) {
	return Open[uint64](path, OffsetCodec{})
}
