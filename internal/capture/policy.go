package capture

import (
	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/metrics"
)

// recordHeaderBytes mirrors bucket.recordHeaderBytes; duplicated here
// because the policy reasons about chain size, not bucket size, and the
// two packages intentionally don't share an unexported constant.
const recordHeaderBytes = 16

// getBucket implements the bucketize policy of §4.C: seal the chain and
// start a new one if it would otherwise overflow outfile_size, extend the
// chain with another bucket if the current one is full, or return the
// current bucket unchanged. Returns nil if a needed bucket couldn't be
// obtained from Ready — the caller must then count the packet as dropped.
func (s *State) getBucket() *bucket.Bucket {
	mtu := int64(s.Mtu)

	if s.head == nil || s.head.Stats.ChainSize+recordHeaderBytes+mtu > s.OutfileSizeBytes {
		if s.head != nil {
			s.sealChain()
		}

		newHead, ok := s.Pool.Ready.Pop(bucket.NoWait)
		if !ok {
			return nil
		}
		newHead.Reset()
		newHead.Stats = metrics.NewChainStats()
		newHead.Stats.DroppedPkts = s.droppedPkts
		s.droppedPkts = 0

		s.head = newHead
		s.current = newHead
		return s.current
	}

	if recordHeaderBytes+mtu > s.current.SpaceLeft() {
		next, ok := s.Pool.Ready.Pop(bucket.NoWait)
		if !ok {
			return nil
		}
		next.Reset()
		s.current.Next = next
		s.current = next
	}

	return s.current
}

// sealChain pushes the current chain head onto Filled, snapshotting
// interface statistics into its Stats first (§4.B).
func (s *State) sealChain() {
	if s.head == nil {
		return
	}

	// Added to, not replacing, the drops the head carried in when created.
	s.head.Stats.DroppedPkts += s.droppedPkts
	s.droppedPkts = 0

	seen, sysDropped, is32Bit := s.Source.Stats()
	s.head.Stats.InterfaceSeen = metrics.Delta(s.lastSeen, seen, is32Bit)
	s.head.Stats.InterfaceDropped = metrics.Delta(s.lastSysDropped, sysDropped, is32Bit)
	s.lastSeen = seen
	s.lastSysDropped = sysDropped

	s.Pool.Filled.Push(s.head)
	s.head = nil
	s.current = nil
}
