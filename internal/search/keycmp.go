// Package search implements the sub-index range scan, set-algebra and
// flow-fetch stages of query execution (§4.G-§4.I), and the line-based
// search descriptor format (§6.3) that drives them. It is the Go
// rendering of original_source indexer/search/{subindex,search_lib}.c,
// generalized the way internal/fidx generalizes output.c: one path
// parameterized over fidx.KeyType instead of kt_key_cmp's hand-written
// switch, built on internal/oset and internal/skiplist instead of
// ordered_set.c's C structs.
package search

import (
	"bytes"
	"encoding/binary"

	"github.com/dirtbags/pcapdb/internal/fidx"
)

// CompareKeys orders two encoded keys of the same KeyType, replicating
// keys.c's kt_key_cmp: ports compare as the 16-bit integers they encode
// (never as raw little-endian bytes — a byte-wise compare would get
// multi-byte values backwards), IP addresses compare byte-wise (already
// big-endian/network order, so lexicographic order is numeric order),
// and flow keys compare via fidx.FlowKeyCmp's srcport/dstport/src/dst/
// proto tie-break order.
func CompareKeys(kt fidx.KeyType, a, b []byte) int {
	switch kt {
	case fidx.SrcPort, fidx.DstPort:
		av := binary.LittleEndian.Uint16(a)
		bv := binary.LittleEndian.Uint16(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case fidx.Flow:
		ak, err := fidx.UnmarshalFlowKey(a)
		if err != nil {
			return bytes.Compare(a, b)
		}
		bk, err := fidx.UnmarshalFlowKey(b)
		if err != nil {
			return bytes.Compare(a, b)
		}
		return fidx.FlowKeyCmp(ak, bk)
	default: // SrcV4, DstV4, SrcV6, DstV6
		return bytes.Compare(a, b)
	}
}
