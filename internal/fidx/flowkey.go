package fidx

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/dirtbags/pcapdb/internal/packet"
)

// flowKeySize is the fixed on-disk size of a FlowKey, matching
// fcap_flow_key's hand-packed 64-byte layout (keys.h): two Timeval32s,
// two 16-byte addresses with a version byte apiece, srcport/dstport,
// proto, a packed size/packet exponent byte, and 32-bit packet/size
// counts.
const flowKeySize = 64

// FlowKey is the FLOW index's record key: a flow's identity plus the
// summary fields (timestamps, packet/byte counts) the original packs
// into fcap_flow_key so a flow can be filtered or reported on without
// opening the FCAP file.
type FlowKey struct {
	FirstTS Timeval32
	LastTS  Timeval32

	SrcIP   [16]byte // only the first 4 bytes are meaningful when SrcVers==4
	SrcVers packet.IPVersion
	Proto   uint8
	SrcPort uint16
	Packets uint32

	DstIP   [16]byte
	DstVers packet.IPVersion

	// SizePow/PacketsPow let Size/Packets represent counts beyond 32 bits
	// as size*2^SizePow / packets*2^PacketsPow (keys.h), at the cost of
	// precision. NormalizeCount sets them both when the writer builds a
	// fresh flow record and when flow records are merged across FCAP
	// files (flow_key_merge); each is zero whenever its count fits in 32
	// bits.
	SizePow    uint8
	PacketsPow uint8

	DstPort uint16
	Size    uint32
}

// Marshal encodes k in fcap_flow_key's packed 64-byte layout.
func (k FlowKey) Marshal() []byte {
	buf := make([]byte, flowKeySize)
	binary.LittleEndian.PutUint32(buf[0:4], k.FirstTS.Sec)
	binary.LittleEndian.PutUint32(buf[4:8], k.FirstTS.Usec)
	binary.LittleEndian.PutUint32(buf[8:12], k.LastTS.Sec)
	binary.LittleEndian.PutUint32(buf[12:16], k.LastTS.Usec)
	copy(buf[16:32], k.SrcIP[:])
	buf[32] = uint8(k.SrcVers)
	buf[33] = k.Proto
	binary.LittleEndian.PutUint16(buf[34:36], k.SrcPort)
	binary.LittleEndian.PutUint32(buf[36:40], k.Packets)
	copy(buf[40:56], k.DstIP[:])
	buf[56] = uint8(k.DstVers)
	buf[57] = (k.PacketsPow << 4) | (k.SizePow & 0x0f)
	binary.LittleEndian.PutUint16(buf[58:60], k.DstPort)
	binary.LittleEndian.PutUint32(buf[60:64], k.Size)
	return buf
}

// UnmarshalFlowKey decodes a 64-byte FlowKey record.
func UnmarshalFlowKey(buf []byte) (FlowKey, error) {
	if len(buf) < flowKeySize {
		return FlowKey{}, errShortRecord
	}
	var k FlowKey
	k.FirstTS = Timeval32{Sec: binary.LittleEndian.Uint32(buf[0:4]), Usec: binary.LittleEndian.Uint32(buf[4:8])}
	k.LastTS = Timeval32{Sec: binary.LittleEndian.Uint32(buf[8:12]), Usec: binary.LittleEndian.Uint32(buf[12:16])}
	copy(k.SrcIP[:], buf[16:32])
	k.SrcVers = packet.IPVersion(buf[32])
	k.Proto = buf[33]
	k.SrcPort = binary.LittleEndian.Uint16(buf[34:36])
	k.Packets = binary.LittleEndian.Uint32(buf[36:40])
	copy(k.DstIP[:], buf[40:56])
	k.DstVers = packet.IPVersion(buf[56])
	k.PacketsPow = buf[57] >> 4
	k.SizePow = buf[57] & 0x0f
	k.DstPort = binary.LittleEndian.Uint16(buf[58:60])
	k.Size = binary.LittleEndian.Uint32(buf[60:64])
	return k, nil
}

// addrCmp orders two fixed-size addresses the way ip_cmp does: IPv4
// always sorts before IPv6, same-family addresses compare byte-wise.
func addrCmp(aVers, bVers packet.IPVersion, a, b [16]byte) int {
	if aVers != bVers {
		if aVers == packet.IPv4 {
			return -1
		}
		return 1
	}
	n := 16
	if aVers == packet.IPv4 {
		n = 4
	}
	return bytes.Compare(a[:n], b[:n])
}

// FlowKeyCmp orders two flow keys srcport, dstport, src, dst, proto —
// the same tie-break order flow_key_cmp uses, mirrored from indexer's
// flowCmp over packet.FiveTuple.
func FlowKeyCmp(a, b FlowKey) int {
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
	if c := addrCmp(a.SrcVers, b.SrcVers, a.SrcIP, b.SrcIP); c != 0 {
		return c
	}
	if c := addrCmp(a.DstVers, b.DstVers, a.DstIP, b.DstIP); c != 0 {
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

// MergeFlowKeys merges b into a (a flow seen across two FCAP files,
// assumed to be the same logical flow): the earliest FirstTS, the latest
// LastTS, and packet/size counts summed with exponent normalization.
//
// The original's flow_key_merge shifts both packet and size totals by
// k1's packets_pow before summing — size_pow never enters the packet sum,
// and k2's own exponents are dropped entirely, silently under-counting
// whenever either side already carries a non-zero exponent. This
// re-derivation shifts each side's count by its OWN exponent before
// summing, which is what "merge two exponential counts" has to mean for
// the result to be correct.
func MergeFlowKeys(a, b FlowKey) FlowKey {
	out := a
	if b.FirstTS.Before(a.FirstTS) {
		out.FirstTS = b.FirstTS
	}
	if b.LastTS.After(a.LastTS) {
		out.LastTS = b.LastTS
	}

	totalPackets := (uint64(a.Packets) << a.PacketsPow) + (uint64(b.Packets) << b.PacketsPow)
	totalSize := (uint64(a.Size) << a.SizePow) + (uint64(b.Size) << b.SizePow)

	packetsPow, packets := NormalizeCount(totalPackets)
	sizePow, size := NormalizeCount(totalSize)

	out.Packets = packets
	out.PacketsPow = packetsPow
	out.Size = size
	out.SizePow = sizePow
	return out
}

// NormalizeCount finds the smallest shift that brings total into a
// uint32, the way flow_key_merge's "while (total > UINT32_MAX) total >>=
// 1; pow++" loop does. Exported so the writer stage can apply the same
// exponent packing when building a fresh FlowKey from a chain's packet
// counts, not only when merging two existing ones.
func NormalizeCount(total uint64) (pow uint8, value uint32) {
	for total > math.MaxUint32 {
		total >>= 1
		pow++
	}
	return pow, uint32(total)
}
