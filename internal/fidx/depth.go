package fidx

import "sort"

// nodeDepth returns the depth (root = 0) rank would occupy in the
// implicit balanced binary search tree spanning the sorted rows
// [1, total], found by simulating the same bisection a reader performs
// at search time (§4.G "main-tree descent"): mid = lo + (hi-lo)/2 is the
// root, and each half recurses. Because every rank in [1, total] is real
// (pcapdb's rows are densely packed — "left-filled" — rather than padded
// out to the next power of two), this needs no virtual-node case: a
// virtual position only ever arises to the right of the real data, and
// bisection over the real range never steps into it.
func nodeDepth(rank, total int) int {
	lo, hi, depth := 1, total, 0
	for {
		mid := lo + (hi-lo)/2
		if mid == rank {
			return depth
		}
		if rank < mid {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
		depth++
	}
}

// selectPreviewRanks returns, in ascending order, the 1-indexed ranks
// that fall within the top previewDepth levels of the implicit tree over
// n rows — the same recursive bisection nodeDepth simulates, but walked
// directly instead of probed rank-by-rank, since the full set of shallow
// ranks is what the preview actually needs.
func selectPreviewRanks(n, previewDepth int) []int {
	var ranks []int
	var walk func(lo, hi, depth int)
	walk = func(lo, hi, depth int) {
		if lo > hi || depth > previewDepth {
			return
		}
		mid := lo + (hi-lo)/2
		ranks = append(ranks, mid)
		walk(lo, mid-1, depth+1)
		walk(mid+1, hi, depth+1)
	}
	walk(1, n, 0)
	sort.Ints(ranks)
	return ranks
}

// previewDepth returns how many levels of the implicit tree spanning
// totalRows rows of the given key type should be mirrored into the
// preview block, or 0 for none. Flow keys never get a preview (§4.F);
// other key types get one once totalRows is large enough to fill the
// 4096-byte block on its own, going only as deep as fits.
func previewDepth(kt KeyType, totalRows int) int {
	if kt == Flow {
		return 0
	}
	keySize := kt.KeySize()
	capacity := blockSize / keySize
	if totalRows < capacity {
		return 0
	}
	// Levels 0..depth hold up to 2^(depth+1)-1 keys, which share the
	// block with the header.
	fit := (blockSize - headerSize) / keySize
	depth := 0
	for 1<<uint(depth+2)-1 <= fit {
		depth++
	}
	return depth
}
