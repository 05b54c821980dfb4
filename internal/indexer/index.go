// Package indexer builds, in memory, the flow index and the six
// five-tuple projection indexes (SRCv4, DSTv4, SRCv6, DSTv6, SRCPORT,
// DSTPORT) for one sealed bucket chain, and folds each packet's parse
// outcome into the chain head's ChainStats (§4.D).
package indexer

import (
	"net"

	"github.com/dirtbags/pcapdb/internal/alloc"
	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/metrics"
	"github.com/dirtbags/pcapdb/internal/packet"
	"github.com/dirtbags/pcapdb/internal/splay"
)

// packetListAlloc and flowIdxListAlloc back the two kinds of short,
// independently-growing list IndexChain builds by the thousands per
// chain: one per flow (its packet list) and one per projection value
// (its flow-index list). Pooling their backing arrays avoids handing the
// GC one tiny allocation per flow/value on every chain.
var (
	packetListAlloc  = alloc.NewSmallListSlabAllocator[*bucket.PacketRecord]()
	flowIdxListAlloc = alloc.NewSmallListSlabAllocator[int]()
)

// FlowTree indexes five-tuples to the ordered list of packets seen for
// that flow. ProjectionTree indexes a single projected field (an address
// or a port) to the list of flow-tree arena indices that first appeared
// under that value, in discovery order.
type FlowTree = splay.Tree[packet.FiveTuple, []*bucket.PacketRecord]
type ProjectionTree[K any] = splay.Tree[K, []int]

// IndexSet is the index_set built for one bucket chain: a flow tree plus
// the six projections over it, addressed by flow-tree arena index so a
// projection entry can look its flow's packet list back up without
// storing a second copy of it (§4.D).
type IndexSet struct {
	PacketCount uint64

	Flows     *FlowTree
	FlowCount uint64

	SrcV4 *ProjectionTree[net.IP]
	DstV4 *ProjectionTree[net.IP]
	SrcV6 *ProjectionTree[net.IP]
	DstV6 *ProjectionTree[net.IP]

	SrcPort *ProjectionTree[uint16]
	DstPort *ProjectionTree[uint16]

	SrcV4Count, DstV4Count, SrcV6Count, DstV6Count uint64

	// TimeOrder lists flow-tree arena indices in the order each flow was
	// first seen, mirroring index_set's timeorder_head/tail list (used
	// there to free flow nodes in discovery order; kept here so the fidx
	// writer can choose the same traversal order if it wants to).
	TimeOrder []int
}

func newIndexSet() *IndexSet {
	return &IndexSet{
		Flows:   splay.New[packet.FiveTuple, []*bucket.PacketRecord](flowCmp),
		SrcV4:   splay.New[net.IP, []int](ipKeyCmp),
		DstV4:   splay.New[net.IP, []int](ipKeyCmp),
		SrcV6:   splay.New[net.IP, []int](ipKeyCmp),
		DstV6:   splay.New[net.IP, []int](ipKeyCmp),
		SrcPort: splay.New[uint16, []int](portKeyCmp),
		DstPort: splay.New[uint16, []int](portKeyCmp),
	}
}

// IndexChain walks every bucket in the chain rooted at head, parsing each
// packet's headers, inserting it into the flow tree, and — on the first
// packet of a new flow — indexing that flow into the applicable
// projection trees. It always mutates head.Stats and head.Indexes; it
// never errors, matching index_bucket's unconditional walk.
func IndexChain(head *bucket.Bucket) {
	idxs := newIndexSet()
	head.Indexes = idxs

	lastFlowIdx := splay.Nil
	var lastHash uint64

	for bkt := head; bkt != nil; bkt = bkt.Next {
		for i := range bkt.Records {
			rec := &bkt.Records[i]
			result := packet.ParsePacket(rec.Payload)
			rec.Tuple = result.Tuple

			applyStats(head.Stats, result)
			idxs.PacketCount++

			h := tupleHash(result.Tuple)
			var flowIdx int
			var created bool
			if lastFlowIdx != splay.Nil && h == lastHash && flowCmp(result.Tuple, idxs.Flows.Key(lastFlowIdx)) == 0 {
				flowIdx, created = lastFlowIdx, false
			} else {
				flowIdx, created = idxs.Flows.Insert(result.Tuple)
			}
			lastFlowIdx, lastHash = flowIdx, h

			packets := idxs.Flows.Value(flowIdx)
			*packets = packetListAlloc.GrowSlice(*packets, 1)
			*packets = append(*packets, rec)

			if !created {
				continue
			}
			idxs.FlowCount++
			idxs.TimeOrder = append(idxs.TimeOrder, flowIdx)

			switch result.Tuple.Vers {
			case packet.IPv4:
				indexProjection(idxs.SrcV4, result.Tuple.SrcIP, flowIdx)
				idxs.SrcV4Count++
				indexProjection(idxs.DstV4, result.Tuple.DstIP, flowIdx)
				idxs.DstV4Count++
			case packet.IPv6:
				indexProjection(idxs.SrcV6, result.Tuple.SrcIP, flowIdx)
				idxs.SrcV6Count++
				indexProjection(idxs.DstV6, result.Tuple.DstIP, flowIdx)
				idxs.DstV6Count++
			// IPUnknown flows (parse never reached the network layer) are
			// left out of the address projections entirely — the same
			// "create a non-IP index, or shunt these elsewhere" TODO the
			// original left open; we keep dropping them too.
			default:
			}

			indexProjection(idxs.SrcPort, result.Tuple.SrcPort, flowIdx)
			indexProjection(idxs.DstPort, result.Tuple.DstPort, flowIdx)
		}
	}
}

// indexProjection inserts key into tree and appends flowIdx to its flow
// list, creating the node if this is the first flow seen for that value.
func indexProjection[K any](tree *ProjectionTree[K], key K, flowIdx int) {
	idx, _ := tree.Insert(key)
	flows := tree.Value(idx)
	*flows = flowIdxListAlloc.GrowSlice(*flows, 1)
	*flows = append(*flows, flowIdx)
}

// applyStats folds one packet's parse Result into the chain's running
// counters, exactly as packet_parse's own stat bumps would: dll and
// network errors can combine with OtherNetLayer, an unhandled-but-valid
// IPv6 chain increments nothing, and Transport[proto] counts every packet
// that reached a transport dispatch regardless of which protocol it was.
func applyStats(s *metrics.ChainStats, r packet.Result) {
	if r.DLLError {
		s.DLLErrors++
	}
	if r.OtherNetLayer {
		s.OtherNetLayer++
	}
	if r.NetworkError {
		s.NetworkErrors++
	}
	if r.TransportError {
		s.TransportErrors++
	}
	if r.ReachedTransport {
		s.AddTransport(r.Tuple.Proto)
	}
}

// ReleaseLists returns every flow packet list and projection flow-index
// list in idxs to the slab allocators IndexChain drew them from. Call it
// once a chain's indices have been written out and idxs itself is about
// to be discarded (the writer stage does this right before recycling the
// chain's buckets back to the ready pool).
func ReleaseLists(idxs *IndexSet) {
	idxs.Flows.InOrder(func(i int) {
		packetListAlloc.Put(*idxs.Flows.Value(i))
	})
	releaseProjection(idxs.SrcV4)
	releaseProjection(idxs.DstV4)
	releaseProjection(idxs.SrcV6)
	releaseProjection(idxs.DstV6)
	releaseProjection(idxs.SrcPort)
	releaseProjection(idxs.DstPort)
}

func releaseProjection[K any](tree *ProjectionTree[K]) {
	tree.InOrder(func(i int) {
		flowIdxListAlloc.Put(*tree.Value(i))
	})
}
