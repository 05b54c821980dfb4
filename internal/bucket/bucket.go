package bucket

import (
	"github.com/dirtbags/pcapdb/internal/metrics"
	"github.com/dirtbags/pcapdb/internal/packet"
)

// recordHeaderBytes is the on-disk size of a packet_record header
// (tv_sec, tv_usec, caplen, len, all 32-bit), used for the chain-size
// accounting the bucketize policy performs (§4.C).
const recordHeaderBytes = 16

// PacketRecord is one captured frame inside a Bucket. Capture fills
// TSSec/TSUsec/CapLen/WireLen/Payload; the indexer later fills Tuple by
// parsing Payload (§3 "Packet record"). The parse outcome itself
// (packet.Result's error flags) is not retained per-record — the indexer
// consumes it immediately to update the chain head's Stats and discards
// it, exactly as index_bucket folds parse errors straight into the
// running counters rather than storing them alongside the record.
type PacketRecord struct {
	TSSec   uint32
	TSUsec  uint32
	CapLen  uint32
	WireLen uint32
	Payload []byte

	Tuple packet.FiveTuple

	// FlowNext chains sibling packets within the same flow in arrival
	// order, used by the indexer's flow tree (§4.D) and left unset until
	// that insert happens.
	FlowNext int
}

// Size returns the FCAP-record size (header + captured bytes) this packet
// will occupy on disk.
func (r *PacketRecord) Size() int64 {
	return recordHeaderBytes + int64(len(r.Payload))
}

// Bucket is a fixed-capacity slab of packet records, chained into a
// bucket chain that shares one Stats and one Indexes (only non-nil on the
// chain head, per §3's invariant ii).
type Bucket struct {
	ID   int
	Next *Bucket

	Records       []PacketRecord
	CapacityBytes int64
	UsedBytes     int64

	// Stats and Indexes are only populated on the chain head; see
	// bucketize policy (§4.C) and the indexer stage (§4.D).
	Stats   *metrics.ChainStats
	Indexes any
}

// NewBucket allocates a bucket with the given record capacity, sized so
// that append never reallocates mid-chain under steady-state MTU traffic.
func NewBucket(id int, capacityBytes int64, estimatedRecords int) *Bucket {
	return &Bucket{
		ID:            id,
		CapacityBytes: capacityBytes,
		Records:       make([]PacketRecord, 0, estimatedRecords),
	}
}

// Reset clears a bucket for reuse, matching bucket_reset: it drops the
// chain link and head-only fields and truncates the record slice without
// releasing its backing array.
func (b *Bucket) Reset() {
	b.Next = nil
	b.Stats = nil
	b.Indexes = nil
	b.UsedBytes = 0
	b.Records = b.Records[:0]
}

// SpaceLeft reports how many bytes remain before CapacityBytes, the
// BKT_SPACE_LEFT quantity the bucketize policy consults (§4.C).
func (b *Bucket) SpaceLeft() int64 {
	return b.CapacityBytes - b.UsedBytes
}

// Append stores one captured frame, updating UsedBytes. The caller (the
// bucketize policy) is responsible for ensuring SpaceLeft is sufficient
// before calling Append.
func (b *Bucket) Append(tsSec, tsUsec, wireLen uint32, payload []byte) *PacketRecord {
	rec := PacketRecord{
		TSSec:   tsSec,
		TSUsec:  tsUsec,
		CapLen:  uint32(len(payload)),
		WireLen: wireLen,
		Payload: payload,
	}
	b.Records = append(b.Records, rec)
	b.UsedBytes += rec.Size()
	return &b.Records[len(b.Records)-1]
}

// Pool is the collection of buckets loaded into the ready queue at
// startup (§4.A).
type Pool struct {
	Ready   *Queue[*Bucket]
	Filled  *Queue[*Bucket]
	Indexed *Queue[*Bucket]
	all     []*Bucket
}

// NewPool allocates count buckets of capacityBytes each and loads them
// into the ready queue.
func NewPool(count int, capacityBytes int64, estimatedRecords int) *Pool {
	p := &Pool{
		Ready:   NewQueue[*Bucket](),
		Filled:  NewQueue[*Bucket](),
		Indexed: NewQueue[*Bucket](),
	}
	p.all = make([]*Bucket, count)
	for i := 0; i < count; i++ {
		b := NewBucket(i, capacityBytes, estimatedRecords)
		p.all[i] = b
		p.Ready.Push(b)
	}
	return p
}

// Close shuts down the three queues in pipeline order, as the shutdown
// sequence in §4.A requires: capture stops producing first, then indexer
// drains filled, then writer drains indexed.
func (p *Pool) Close() {
	p.Ready.Close()
	p.Filled.Close()
	p.Indexed.Close()
}

// Drain force-pops every bucket left in Ready after Close, the final
// cleanup step of shutdown (§4.A).
func (p *Pool) Drain() []*Bucket {
	var drained []*Bucket
	for {
		b, ok := p.Ready.Pop(Force)
		if !ok {
			return drained
		}
		drained = append(drained, b)
	}
}
