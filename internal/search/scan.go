package search

import (
	"bytes"

	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
	"github.com/dirtbags/pcapdb/internal/skiplist"
)

// RangeScan finds every flow offset whose key in r lies in
// [startKey, endKey] and returns them in one ascending, deduplicated
// offset set (§4.G).
//
// internal/fidx already serializes the main section as one flat sorted
// array rather than walking a real left-filled tree at read time (see
// DESIGN.md's fidx entry), so finding "the leftmost matching node" is a
// plain binary search over that array instead of subindex.c's preview
// descent followed by a main-tree descent — both find the same row,
// the preview descent exists only to avoid the cost of reading from
// disk, a concern that doesn't apply to the byte-array layout this
// rendering chose. The subsequent forward scan is faithful to
// subindex.c's shape: each distinct key's offsets are collected into
// their own fresh ordered set (guaranteed ascending, since
// writeProjection already sorts a key's offsets before writing them),
// and every set collected is unioned via a skip list, because
// different keys' offset runs are not themselves globally ordered
// relative to one another.
func RangeScan(r *fidx.Reader, startKey, endKey []byte, out *oset.OffsetSet) error {
	kt := r.Header().KeyType
	n := r.Len()

	rank, err := findLeftmost(r, kt, startKey)
	if err != nil {
		return err
	}
	if rank > n {
		return nil
	}

	merger := skiplist.New[uint64](lessOffset, equalOffset, skiplist.DedupeMerge[uint64])
	var added bool

	var runKey []byte
	var run *oset.OffsetSet

	flush := func() error {
		if run == nil {
			return nil
		}
		if err := run.ReadMode(); err != nil {
			return err
		}
		merger.Add(run)
		added = true
		run = nil
		return nil
	}

	for i := rank; i <= n; i++ {
		key, offset, err := r.RecordAt(i)
		if err != nil {
			return err
		}
		if CompareKeys(kt, key, endKey) > 0 {
			break
		}
		if runKey == nil || !bytes.Equal(runKey, key) {
			if err := flush(); err != nil {
				return err
			}
			runKey = key
			run = oset.NewBufferedOffsetSet()
		}
		if err := run.Push(offset); err != nil {
			return err
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if !added {
		return nil
	}
	return merger.Union(out)
}

// findLeftmost returns the 1-indexed rank of the leftmost row whose key
// is >= startKey, or r.Len()+1 if every row sorts below startKey.
func findLeftmost(r *fidx.Reader, kt fidx.KeyType, startKey []byte) (int, error) {
	lo, hi := 1, r.Len()+1
	for lo < hi {
		mid := lo + (hi-lo)/2
		key, _, err := r.RecordAt(mid)
		if err != nil {
			return 0, err
		}
		if CompareKeys(kt, key, startKey) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

func lessOffset(a, b uint64) bool  { return a < b }
func equalOffset(a, b uint64) bool { return a == b }
