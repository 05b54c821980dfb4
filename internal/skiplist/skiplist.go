// Package skiplist merges any number of ascending ordered sets into one
// deduplicated, ascending output set, using a non-randomized skip list
// to pick the next-smallest input in O(log n) rather than scanning every
// input set on each step (§4.H). It is the Go rendering of
// original_source indexer/search/ordered_set.c's os_slist_* family:
// the list itself still orders struct ordered_set nodes by their next
// unread item, but levels are assigned deterministically — from the
// trailing zero count of an insertion counter — rather than by coin
// flip, exactly as os_slist_reinsert computes them.
package skiplist

// maxLevels bounds how many forward pointers any node may have,
// matching MAX_SKIP_LIST_LEVELS.
const maxLevels = 16

// source is a readable ordered set: either an *oset.Set[T] used
// directly, or anything else that can peek/pop in ascending order. The
// List never needs to write through this interface.
type source[T any] interface {
	Peek() (T, bool)
	Pop() (T, bool)
}

// node wraps one input source with its skip-list forward pointers.
type node[T any] struct {
	src    source[T]
	skip   [maxLevels]*node[T]
	levels int
}

// List is a skip list of input sources, kept sorted by each source's
// next unread item, used to drive a k-way merge.
type List[T any] struct {
	less  func(a, b T) bool
	equal func(a, b T) bool
	merge func(a, b T) T

	skip          [maxLevels]*node[T]
	size          uint64
	itemsInserted uint64
	maxLevel      int
}

// New builds an empty List. less and equal define the ascending order
// every input source is assumed to already be sorted by; merge combines
// two items less/equal report as tied (flow records merge their
// counters; plain offsets have no payload to merge — see
// DedupeMerge[T]).
func New[T any](less, equal func(a, b T) bool, merge func(a, b T) T) *List[T] {
	return &List[T]{less: less, equal: equal, merge: merge}
}

// DedupeMerge is the identity merge for types with no payload beyond
// their ordering key (oset.OffsetSet): equal items are simply dropped,
// keeping whichever was seen first.
func DedupeMerge[T any](a, b T) T { return a }

// Add inserts a new source into the list, recalculating the list's
// maxLevel from its new size the way os_slist_add does before handing
// off to reinsert.
func (l *List[T]) Add(src source[T]) {
	l.size++
	l.maxLevel = levelsFor(l.size)
	l.reinsert(&node[T]{src: src})
}

// levelsFor mirrors os_slist_add/os_slist_remove's "while (items) { items
// >>= 1; max_level++ }" — the list's maxLevel is the bit length of its
// current size.
func levelsFor(size uint64) int {
	n := 0
	for size > 0 {
		size >>= 1
		n++
	}
	return n
}

// pop removes and returns the node with the smallest next item (the
// head of level 0), relinking any level on which it was the head —
// os_slist_pop.
func (l *List[T]) pop() *node[T] {
	n := l.skip[0]
	if n == nil {
		return nil
	}
	for lvl := 0; lvl < l.maxLevel && lvl < n.levels; lvl++ {
		if l.skip[lvl] != n {
			break
		}
		l.skip[lvl] = n.skip[lvl]
	}
	return n
}

// reinsert places n back into the list ordered by its current next
// item, assigning it a deterministic level based on how many insertions
// have happened so far — os_slist_reinsert. A source that is already
// exhausted is dropped instead of reinserted.
func (l *List[T]) reinsert(n *node[T]) {
	val, ok := n.src.Peek()
	if !ok {
		l.size--
		l.maxLevel = levelsFor(l.size)
		return
	}

	levels := 0
	for l.itemsInserted%(1<<uint(levels)) == 0 && levels < l.maxLevel {
		n.skip[levels] = nil
		levels++
	}
	n.levels = levels
	l.itemsInserted++

	prior := &l.skip
	for lvl := l.maxLevel - 1; lvl >= 0; {
		next := prior[lvl]
		if next == nil {
			// No node at this level yet: place ours here if it reaches
			// this high, then descend — nothing further along this
			// level to compare against.
			if n.levels > lvl {
				prior[lvl] = n
				n.skip[lvl] = nil
			}
			lvl--
			continue
		}

		nextVal, _ := next.src.Peek()
		if !l.less(val, nextVal) {
			// val >= nextVal: our node belongs strictly after next, so
			// walk forward onto next's own forward pointers at the same
			// level rather than descending yet.
			prior = &next.skip
			continue
		}

		// val < nextVal: our node goes before next. Link it in if it
		// reaches this level, then descend to refine its position at
		// the level below.
		if n.levels > lvl {
			tmp := prior[lvl]
			prior[lvl] = n
			n.skip[lvl] = tmp
		}
		lvl--
	}
}

// Union drains every source in the list into out in ascending order,
// merging adjacent equal items via l.merge — os_slist_union.
func (l *List[T]) Union(out sink[T]) error {
	first := l.pop()
	if first == nil {
		return nil
	}

	last, ok := first.src.Pop()
	if !ok {
		return nil
	}
	l.reinsert(first)

	for {
		next := l.pop()
		if next == nil {
			break
		}
		item, ok := next.src.Pop()
		if !ok {
			continue
		}
		l.reinsert(next)

		if l.equal(last, item) {
			last = l.merge(last, item)
			continue
		}
		if err := out.Push(last); err != nil {
			return err
		}
		last = item
	}

	return out.Push(last)
}

// sink is satisfied by oset.Set[T], the only output this package
// writes to.
type sink[T any] interface {
	Push(v T) error
}
