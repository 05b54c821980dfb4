// Package metrics aggregates the per-chain and per-interface counters the
// capture, indexer and writer stages produce, and publishes a
// process-wide snapshot for the status file (§6.6).
package metrics

import (
	"sync"
	"sync/atomic"
)

// ChainStats accumulates the counters spec.md §4.D and §4.B assign to a
// bucket chain's head. It is owned exclusively by the chain head until the
// writer commits it to the catalog (§4.E step 6), so it needs no locking
// while a chain is in flight.
type ChainStats struct {
	CapturedPkts   uint64
	DroppedPkts    uint64
	DLLErrors      uint64
	NetworkErrors  uint64
	TransportErrors uint64
	OtherNetLayer  uint64
	Transport      map[uint8]uint64 // proto -> packet count

	// Interface deltas snapshotted when the chain is sealed (§4.B).
	InterfaceSeen    uint64
	InterfaceDropped uint64

	// ChainSize is the running total of on-disk record bytes (header +
	// caplen) written across every bucket in this chain so far. The
	// bucketize policy compares it against OutfileSizeBytes to decide
	// when to seal (§4.C), since a chain spans multiple buckets and a
	// single bucket's UsedBytes can't tell the whole story.
	ChainSize int64
}

// NewChainStats returns a zeroed ChainStats ready to accumulate one chain.
func NewChainStats() *ChainStats {
	return &ChainStats{Transport: make(map[uint8]uint64)}
}

// AddTransport increments the per-protocol transport counter.
func (s *ChainStats) AddTransport(proto uint8) {
	s.Transport[proto]++
}

// InterfaceCounters holds the cumulative 32-bit or 64-bit counters a
// packet source driver reports, plus logic to compute a wrap-aware delta
// (§4.B: "new < previous" detects a 32-bit wrap and the delta is
// recomputed modulo 2^32").
type InterfaceCounters struct {
	Seen       uint64
	SysDropped uint64
	Is32Bit    bool
}

// Delta computes (curr - prev), handling a single 32-bit wrap. Both
// counters are assumed to use the same width.
func Delta(prev, curr uint64, is32Bit bool) uint64 {
	if curr >= prev {
		return curr - prev
	}
	if is32Bit {
		return (curr + (1 << 32)) - prev
	}
	// 64-bit counters are not expected to wrap in a chain's lifetime;
	// treat a decrease as a driver reset and report zero rather than an
	// enormous bogus delta.
	return 0
}

// Registry aggregates committed chains' stats for the status file using an
// atomic-snapshot-swap instead of a per-read lock, the way the teacher's
// cache package publishes its metrics snapshot.
type Registry struct {
	snapshot atomic.Value // *Snapshot
	mu       sync.Mutex   // serializes writers (Commit callers)
}

// Snapshot is the immutable, process-wide aggregate view.
type Snapshot struct {
	ChainsCommitted uint64
	CapturedPkts    uint64
	DroppedPkts     uint64
	DLLErrors       uint64
	NetworkErrors   uint64
	TransportErrors uint64
	OtherNetLayer   uint64
	Transport       map[uint8]uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(&Snapshot{Transport: make(map[uint8]uint64)})
	return r
}

// Commit folds one chain's final stats into the registry. Per spec.md §7,
// "a chain's stats are only visible after its writer commits" — callers
// invoke Commit exactly once, from the writer stage, after the catalog
// transaction succeeds.
func (r *Registry) Commit(s *ChainStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snapshot.Load().(*Snapshot)
	next := &Snapshot{
		ChainsCommitted: prev.ChainsCommitted + 1,
		CapturedPkts:    prev.CapturedPkts + s.CapturedPkts,
		DroppedPkts:     prev.DroppedPkts + s.DroppedPkts,
		DLLErrors:       prev.DLLErrors + s.DLLErrors,
		NetworkErrors:   prev.NetworkErrors + s.NetworkErrors,
		TransportErrors: prev.TransportErrors + s.TransportErrors,
		OtherNetLayer:   prev.OtherNetLayer + s.OtherNetLayer,
		Transport:       make(map[uint8]uint64, len(prev.Transport)+len(s.Transport)),
	}
	for proto, n := range prev.Transport {
		next.Transport[proto] = n
	}
	for proto, n := range s.Transport {
		next.Transport[proto] += n
	}
	r.snapshot.Store(next)
}

// Load returns the current aggregate snapshot. Safe for concurrent use
// with Commit: readers never block writers and vice versa.
func (r *Registry) Load() *Snapshot {
	return r.snapshot.Load().(*Snapshot)
}
