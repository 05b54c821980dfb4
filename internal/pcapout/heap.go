package pcapout

// pairingNode is one node of a pairing heap: a payload plus a first-child
// and next-sibling pointer, the classic pairing-heap representation (no
// parent pointer, no balance bookkeeping). It mirrors struct flow_heap's
// child/sibling fields, generalized over the payload type.
type pairingNode[T any] struct {
	value   T
	child   *pairingNode[T]
	sibling *pairingNode[T]
}

// pairingHeap is a meldable priority queue ordered by less. container/heap
// only supports a fixed-size backing slice with push/pop/fix — it has no
// meld operation, which this heap needs twice per drained flow cursor
// (once to enqueue it, once to reinsert it after each packet write), so a
// small hand-written structure takes its place.
type pairingHeap[T any] struct {
	less func(a, b T) bool
	root *pairingNode[T]
}

func newPairingHeap[T any](less func(a, b T) bool) *pairingHeap[T] {
	return &pairingHeap[T]{less: less}
}

func (h *pairingHeap[T]) empty() bool { return h.root == nil }

// push melds a freshly wrapped value into the heap — fh_merge applied to
// a brand-new singleton node.
func (h *pairingHeap[T]) push(v T) {
	h.root = h.merge(h.root, &pairingNode[T]{value: v})
}

// merge melds two heaps (possibly nil) into one, the root becoming
// whichever top value compares smaller — fh_merge.
func (h *pairingHeap[T]) merge(a, b *pairingNode[T]) *pairingNode[T] {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	if h.less(b.value, a.value) {
		a, b = b, a
	}
	b.sibling = a.child
	a.child = b
	return a
}

// mergePairs melds a sibling list two at a time, left to right, then
// folds the results back to front — fh_merge_pairs's standard pairing-heap
// two-pass combine.
func (h *pairingHeap[T]) mergePairs(n *pairingNode[T]) *pairingNode[T] {
	if n == nil || n.sibling == nil {
		return n
	}
	next := n.sibling
	rest := next.sibling
	n.sibling = nil
	next.sibling = nil
	return h.merge(h.merge(n, next), h.mergePairs(rest))
}

// popMin removes and returns the minimum element, re-melding its
// children into the new root — fh_del_min.
func (h *pairingHeap[T]) popMin() (T, bool) {
	var zero T
	if h.root == nil {
		return zero, false
	}
	v := h.root.value
	h.root = h.mergePairs(h.root.child)
	return v, true
}
