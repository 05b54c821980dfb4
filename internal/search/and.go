package search

import (
	"github.com/dirtbags/pcapdb/internal/oset"
	"github.com/dirtbags/pcapdb/internal/skiplist"
)

// AndResults intersects the regular sets and writes every offset that
// appears in all of them, except those also present in the union of
// inverted (§4.H "and_results"). Ported from search_lib.c's and_results:
// regular sets form a circular list advanced round-robin, tracking a
// candidate offset and how many sets have agreed on it so far; the
// inverted union is advanced lazily, only as far as the current
// candidate, since both sides only ever move forward.
func AndResults(regular []*oset.OffsetSet, inverted []*oset.OffsetSet, out *oset.OffsetSet) error {
	if len(regular) == 0 {
		return nil
	}

	invSet, invActive, err := unionInverted(inverted)
	if err != nil {
		return err
	}

	var nextInvItem uint64
	if invActive {
		v, ok := invSet.Pop()
		if !ok {
			invActive = false
		} else {
			nextInvItem = v
		}
	}

	regSetCount := len(regular)
	currSetIdx := 0
	var currItem uint64
	matchCount := 0

	for {
		if matchCount == regSetCount {
			if invActive {
				for invActive && nextInvItem < currItem {
					v, ok := invSet.Pop()
					if !ok {
						invActive = false
					} else {
						nextInvItem = v
					}
				}
				if !(invActive && nextInvItem == currItem) {
					if err := out.Push(currItem); err != nil {
						return err
					}
				}
			} else {
				if err := out.Push(currItem); err != nil {
					return err
				}
			}
			matchCount = 0
		}

		currSet := regular[currSetIdx]
		var nextItem uint64
		var ok bool
		for {
			nextItem, ok = currSet.Pop()
			if !ok || nextItem >= currItem {
				break
			}
		}
		if !ok {
			// This regular set is empty: no further intersection is
			// possible.
			break
		}

		if nextItem > currItem {
			currItem = nextItem
			matchCount = 0
		}
		matchCount++
		currSetIdx = (currSetIdx + 1) % regSetCount
	}

	return nil
}

// unionInverted collapses zero, one, or many inverted sets into a
// single readable set to advance alongside the regular sets, the way
// and_results special-cases inv_sets.size == 1 to skip an unnecessary
// union.
func unionInverted(inverted []*oset.OffsetSet) (set *oset.OffsetSet, active bool, err error) {
	switch len(inverted) {
	case 0:
		return nil, false, nil
	case 1:
		return inverted[0], true, nil
	default:
		l := skiplist.New[uint64](lessOffset, equalOffset, skiplist.DedupeMerge[uint64])
		for _, s := range inverted {
			l.Add(s)
		}
		merged := oset.NewBufferedOffsetSet()
		if err := l.Union(merged); err != nil {
			return nil, false, err
		}
		if err := merged.ReadMode(); err != nil {
			return nil, false, err
		}
		return merged, true, nil
	}
}

// OrResults unions every AND-result offset set into one output set
// (§4.H, §6.3's "OR" directive) — a plain k-way union, since these are
// already-deduplicated offset sets with no payload to merge
// (search_lib.c's or_results).
func OrResults(sets []*oset.OffsetSet, out *oset.OffsetSet) error {
	l := skiplist.New[uint64](lessOffset, equalOffset, skiplist.DedupeMerge[uint64])
	for _, s := range sets {
		l.Add(s)
	}
	return l.Union(out)
}
