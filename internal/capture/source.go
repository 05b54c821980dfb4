// Package capture implements the capture stage: copying packets from a
// source driver into buckets, and the bucketize policy that decides when
// a bucket chain seals (§4.B, §4.C).
package capture

// Frame is one packet handed up by a Source, before it is copied into a
// bucket.
type Frame struct {
	TSSec, TSUsec uint32
	WireLen       uint32
	Payload       []byte
}

// Source is the packet source driver: a kernel packet ring or a capture
// file reader. It is out of scope for this module (§1) — pcapdb only
// depends on this interface, the same way packet_parse depends on
// libpcap/PF_RING only through bucketize.c's callback registration.
type Source interface {
	// Dispatch reads up to limit packets, invoking handler once per
	// packet, and returns how many were read. A file-backed Source
	// returns 0 with a nil error at EOF; a live Source blocks until at
	// least one packet arrives or the Source is closed.
	Dispatch(limit int, handler func(Frame)) (int, error)

	// Stats returns the driver's cumulative (received, dropped)
	// interface counters, and whether they're 32-bit (and therefore
	// subject to the wraparound handling in metrics.Delta).
	Stats() (seen, sysDropped uint64, is32Bit bool)

	// Close releases the underlying handle.
	Close() error
}
