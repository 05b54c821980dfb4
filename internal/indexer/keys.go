package indexer

import (
	"bytes"
	"net"

	"github.com/cespare/xxhash/v2"

	"github.com/dirtbags/pcapdb/internal/packet"
)

// ipCmp orders two addresses the way ip_cmp does: an IPv4 address always
// sorts before an IPv6 one, and same-family addresses compare byte-wise in
// network order (which is also numeric order for an unsigned big-endian
// value).
func ipCmp(a, b net.IP) int {
	a4, aIsV4 := a.To4(), a.To4() != nil
	b4, bIsV4 := b.To4(), b.To4() != nil

	if aIsV4 != bIsV4 {
		if aIsV4 {
			return -1
		}
		return 1
	}
	if aIsV4 {
		return bytes.Compare(a4, b4)
	}
	return bytes.Compare(a.To16(), b.To16())
}

// flowCmp orders five-tuples srcport, dstport, src ip, dst ip, proto —
// cheapest and most-likely-to-differ fields first (§4.D).
func flowCmp(a, b packet.FiveTuple) int {
	if a.SrcPort != b.SrcPort {
		if a.SrcPort < b.SrcPort {
			return -1
		}
		return 1
	}
	if a.DstPort != b.DstPort {
		if a.DstPort < b.DstPort {
			return -1
		}
		return 1
	}
	if c := ipCmp(a.SrcIP, b.SrcIP); c != 0 {
		return c
	}
	if c := ipCmp(a.DstIP, b.DstIP); c != 0 {
		return c
	}
	if a.Proto != b.Proto {
		if a.Proto < b.Proto {
			return -1
		}
		return 1
	}
	return 0
}

// ipKeyCmp orders the single-address projection trees (SRCv4/DSTv4,
// SRCv6/DSTv6), where every key in a given tree shares an address family
// so the family check in ipCmp is never actually exercised there — it's
// kept anyway since these keys are still net.IP values.
func ipKeyCmp(a, b net.IP) int { return ipCmp(a, b) }

// portKeyCmp orders the SRCPORT/DSTPORT projection trees.
func portKeyCmp(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// tupleHash is a quick-equality scratch value for a five-tuple, the same
// "hash first, confirm with a full compare only on a match" shape the
// teacher's file content store uses its FastHash for. IndexChain keeps
// the hash of the previous packet's flow and skips straight back into
// that flow's arena slot — instead of re-descending the splay tree — for
// the very common case of several consecutive packets belonging to the
// same flow, confirming with flowCmp before trusting the skip.
func tupleHash(t packet.FiveTuple) uint64 {
	var buf [40]byte
	n := copy(buf[:16], t.SrcIP.To16())
	n += copy(buf[n:], t.DstIP.To16())
	buf[n] = byte(t.SrcPort)
	buf[n+1] = byte(t.SrcPort >> 8)
	buf[n+2] = byte(t.DstPort)
	buf[n+3] = byte(t.DstPort >> 8)
	buf[n+4] = byte(t.Proto)
	buf[n+5] = byte(t.Vers)
	return xxhash.Sum64(buf[:n+6])
}
