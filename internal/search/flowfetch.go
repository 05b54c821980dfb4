package search

import (
	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
)

// Filter is the {start_ts, end_ts, proto} triple a search descriptor's
// START/END/PROTO directives populate (§6.3), applied per flow in
// FlowFetch.
type Filter struct {
	Start    fidx.Timeval32
	HasStart bool
	End      fidx.Timeval32
	HasEnd   bool
	Proto    uint8
}

// Keep reports whether flow survives the filter.
//
// search_lib.c's filter_flow compares flow.last_ts against both start
// and end, which discards any flow whose last packet lands after the
// window even if the flow started inside it — spec.md §4.I instead
// compares last_ts only against start and first_ts against end,
// discarding a flow only when it is entirely outside the window on one
// side or the other. That is the behavior implemented here; see
// DESIGN.md for the decision record.
func (f Filter) Keep(flow fidx.FlowKey) bool {
	if f.HasStart && flow.LastTS.Before(f.Start) {
		return false
	}
	if f.HasEnd && flow.FirstTS.After(f.End) {
		return false
	}
	if f.Proto != 0 && flow.Proto != f.Proto {
		return false
	}
	return true
}

// FlowFetch reads one flow record per offset in offsets (an OR result)
// from flowIndex, applies filter, and pushes surviving records to out
// in the offset set's order — already flow-offset ascending, since the
// OR result it was built from is offset-sorted (§4.I). Returns the
// total byte size of every flow that survived the filter.
func FlowFetch(flowIndex *fidx.Reader, offsets *oset.OffsetSet, filter Filter, out *oset.FlowSet) (uint64, error) {
	var totalBytes uint64
	for {
		offset, ok := offsets.Pop()
		if !ok {
			break
		}

		keyBytes, flowOffset, err := flowIndex.RecordAtByteOffset(offset)
		if err != nil {
			return totalBytes, err
		}
		flowKey, err := fidx.UnmarshalFlowKey(keyBytes)
		if err != nil {
			return totalBytes, err
		}

		if !filter.Keep(flowKey) {
			continue
		}

		if err := out.Push(oset.FlowRecord{Key: flowKey, FlowOffset: flowOffset}); err != nil {
			return totalBytes, err
		}
		totalBytes += uint64(flowKey.Size) << flowKey.SizePow
	}
	return totalBytes, nil
}
