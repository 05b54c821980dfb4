// Package pcapout implements packet materialization (§4.J): given a
// FlowSet (the result of a search) and the FCAP file its flows live in,
// emit one ordinary PCAP file containing every one of those flows'
// packets in strict ascending timestamp order. It is the Go rendering
// of original_source indexer/search/packets.c's pairing-heap flow
// merge and pcap_fetch.c's driving loop, generalized from that file's
// single hard-coded preload/lazy branch into an explicit policy
// decided once per call from the total size of the flows involved.
package pcapout

import (
	"fmt"

	"github.com/dirtbags/pcapdb/internal/fcap"
	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
)

// PreloadThreshold is the total flow-byte cutoff below which every flow
// is read into memory before the merge begins. Above it, each flow is
// loaded lazily on its first dequeue from the heap (§4.J's preloading
// policy).
const PreloadThreshold = 100 << 20 // 100 MiB

// packetBuf is one packet's header and captured bytes, held in memory
// for a preloaded flow.
type packetBuf struct {
	hdr     fcap.RecordHeader
	payload []byte
}

// flowCursor tracks one flow's position through the merge: its current
// (already-loaded) packet, how many packets remain, and either a
// preloaded packet list or a live read cursor into the FCAP file.
type flowCursor struct {
	key         fidx.FlowKey
	packetsLeft uint32

	fcapOffset uint64 // next lazy read position; unused once preloaded
	preloaded  []packetBuf
	idx        int

	hdr     fcap.RecordHeader
	payload []byte
}

// newFlowCursor loads a flow's first packet (all of it, if preload is
// set) and checks it against the flow's recorded first_ts — invariant
// (a) of §4.J, fatal on mismatch since it means the FLOW index and the
// FCAP file have drifted out of sync.
func newFlowCursor(r *fcap.Reader, rec oset.FlowRecord, preload bool) (*flowCursor, error) {
	packetCount := uint32(uint64(rec.Key.Packets) << rec.Key.PacketsPow)
	if packetCount == 0 {
		return nil, nil
	}
	c := &flowCursor{key: rec.Key, packetsLeft: packetCount}

	if preload {
		offset := rec.FlowOffset
		bufs := make([]packetBuf, 0, packetCount)
		for i := uint32(0); i < packetCount; i++ {
			hdr, payload, next, err := r.ReadPacketAt(offset)
			if err != nil {
				return nil, fmt.Errorf("pcapout: preload flow at fcap offset %d: %w", offset, err)
			}
			bufs = append(bufs, packetBuf{hdr: hdr, payload: payload})
			offset = next
		}
		c.preloaded = bufs
		c.hdr, c.payload = bufs[0].hdr, bufs[0].payload
	} else {
		hintWillNeedRandom(r.Fd())
		hdr, payload, next, err := r.ReadPacketAt(rec.FlowOffset)
		if err != nil {
			return nil, fmt.Errorf("pcapout: load flow at fcap offset %d: %w", rec.FlowOffset, err)
		}
		c.hdr, c.payload, c.fcapOffset = hdr, payload, next
	}

	if c.hdr.TSSec != rec.Key.FirstTS.Sec || c.hdr.TSUsec != rec.Key.FirstTS.Usec {
		return nil, fmt.Errorf("pcapout: flow's first packet timestamp %d.%06d does not match its recorded first_ts %d.%06d",
			c.hdr.TSSec, c.hdr.TSUsec, rec.Key.FirstTS.Sec, rec.Key.FirstTS.Usec)
	}
	return c, nil
}

// before orders cursors by their current packet's timestamp — the
// pairing heap's merge rule.
func (c *flowCursor) before(other *flowCursor) bool {
	if c.hdr.TSSec != other.hdr.TSSec {
		return c.hdr.TSSec < other.hdr.TSSec
	}
	return c.hdr.TSUsec < other.hdr.TSUsec
}

// advance loads the next packet in this flow, reporting false once the
// flow has no packets left.
func (c *flowCursor) advance(r *fcap.Reader) (bool, error) {
	c.packetsLeft--
	if c.packetsLeft == 0 {
		return false, nil
	}
	if c.preloaded != nil {
		c.idx++
		c.hdr, c.payload = c.preloaded[c.idx].hdr, c.preloaded[c.idx].payload
		return true, nil
	}
	hdr, payload, next, err := r.ReadPacketAt(c.fcapOffset)
	if err != nil {
		return false, fmt.Errorf("pcapout: advance flow at fcap offset %d: %w", c.fcapOffset, err)
	}
	c.hdr, c.payload, c.fcapOffset = hdr, payload, next
	return true, nil
}

// flowByteSpan returns the flow's full byte range within the FCAP file,
// used for the DONTNEED hint once the flow is fully drained.
func flowByteSpan(rec oset.FlowRecord) (offset, length uint64) {
	return rec.FlowOffset, uint64(rec.Key.Size) << rec.Key.SizePow
}

// Materialize drains every record in flows (which must be positioned to
// read, e.g. via oset.OpenFlowSet) and writes their packets to outPath in
// strict ascending cross-flow timestamp order, reading packet bodies
// from fcapPath. It returns the number of packets written.
func Materialize(flows *oset.FlowSet, fcapPath, outPath string) (uint64, error) {
	r, err := fcap.Open(fcapPath)
	if err != nil {
		return 0, fmt.Errorf("pcapout: open fcap: %w", err)
	}
	defer r.Close()

	var records []oset.FlowRecord
	var totalBytes uint64
	for {
		rec, ok := flows.Pop()
		if !ok {
			break
		}
		records = append(records, rec)
		totalBytes += uint64(rec.Key.Size) << rec.Key.SizePow
	}
	preload := totalBytes <= PreloadThreshold

	w, err := fcap.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("pcapout: create output: %w", err)
	}

	spans := make(map[*flowCursor][2]uint64, len(records))
	h := newPairingHeap(func(a, b *flowCursor) bool { return a.before(b) })
	for _, rec := range records {
		cur, err := newFlowCursor(r, rec, preload)
		if err != nil {
			return 0, err
		}
		if cur == nil {
			continue
		}
		if !preload {
			off, length := flowByteSpan(rec)
			spans[cur] = [2]uint64{off, length}
		}
		h.push(cur)
	}

	var packetCount uint64
	for !h.empty() {
		cur, _ := h.popMin()

		// Invariant (b), "writing size equals header+caplen": already
		// enforced by fcap.Reader.ReadPacketAt, which errors rather than
		// hand back a short payload.
		if _, err := w.WritePacket(cur.hdr, cur.payload); err != nil {
			return packetCount, fmt.Errorf("pcapout: write packet: %w", err)
		}
		packetCount++

		more, err := cur.advance(r)
		if err != nil {
			return packetCount, err
		}
		if more {
			h.push(cur)
			continue
		}
		if span, ok := spans[cur]; ok {
			hintDontNeed(r.Fd(), span[0], span[1])
			delete(spans, cur)
		}
	}

	if err := w.Finalize(packetCount); err != nil {
		return packetCount, fmt.Errorf("pcapout: finalize: %w", err)
	}
	return packetCount, nil
}
