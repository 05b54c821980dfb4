package capture

import (
	"context"
	"runtime"
	"time"

	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/debug"
)

// pktReadLimit bounds how many packets one Dispatch call may deliver,
// matching capture.c's PKT_READ_LIMIT — a large-but-bounded batch keeps a
// single iteration from starving shutdown checks indefinitely.
const pktReadLimit = 10000

// State is one capture worker's view of its interface: the current
// bucket chain it's filling, and the counters carried from one sealed
// chain to the next (§3 "capture state").
type State struct {
	Interface        string
	Pool             *bucket.Pool
	Source           Source
	OutfileSizeBytes int64
	Mtu              int

	head    *bucket.Bucket
	current *bucket.Bucket

	droppedPkts    uint64
	lastSeen       uint64
	lastSysDropped uint64
}

// NewState builds a capture worker for one interface. lastSeen/lastSysDropped
// start at the driver's current counters, matching capture()'s
// initialization: the first chain's deltas are measured from here, not
// from zero.
func NewState(iface string, pool *bucket.Pool, src Source, outfileSizeBytes int64, mtu int) *State {
	seen, sysDropped, _ := src.Stats()
	return &State{
		Interface:        iface,
		Pool:             pool,
		Source:           src,
		OutfileSizeBytes: outfileSizeBytes,
		Mtu:              mtu,
		lastSeen:         seen,
		lastSysDropped:   sysDropped,
	}
}

// Run drives the capture loop until ctx is cancelled or the Source
// reports EOF (file-mode capture, §4.B "Termination contract"). It
// yields the processor between dispatch batches the way capture()
// calls sched_yield(), and always flushes a partial chain on exit.
func (s *State) Run(ctx context.Context) error {
	debug.LogCapture("capture thread starting on %s", s.Interface)

	pktsRead := 1 // trick the first iteration into not looking like EOF
	for ctx.Err() == nil {
		n, err := s.Source.Dispatch(pktReadLimit, s.onPacket)
		if err != nil {
			return err
		}
		pktsRead = n

		if pktsRead == 0 {
			// File-mode EOF: this interface is done, but it does not
			// force other interfaces to stop (§4.B says EOF raises a
			// process-wide gentle shutdown; callers wire that through
			// ctx cancellation at the pipeline level).
			break
		}
		runtime.Gosched()
	}

	s.sealChain()
	debug.LogCapture("capture thread exiting on %s", s.Interface)
	return nil
}

// onPacket is the per-packet callback passed to Source.Dispatch, the Go
// analogue of libpcap_bucketize's pcap_dispatch callback.
func (s *State) onPacket(f Frame) {
	bkt := s.getBucket()
	if bkt == nil {
		s.droppedPkts++
		return
	}

	tsSec, tsUsec := f.TSSec, f.TSUsec
	if tsSec == 0 {
		now := time.Now()
		tsSec = uint32(now.Unix())
		tsUsec = uint32(now.Nanosecond() / 1000)
	}

	bkt.Append(tsSec, tsUsec, f.WireLen, f.Payload)
	// Stats live only on the chain head (§3 invariant ii); bkt may be a
	// later bucket in the same chain after an extend (§4.C case 2).
	s.head.Stats.ChainSize += recordHeaderBytes + int64(len(f.Payload))
	s.head.Stats.CapturedPkts++
}
