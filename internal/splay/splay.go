// Package splay implements the top-down splay tree used to index flows
// and their five-tuple projections (§3 "Index entry", §4.D). Nodes live
// in a slice-backed arena addressed by integer index rather than
// pointers, the index-based-arena idiom spec.md §9 calls for and the
// teacher's trigram postings index (`internal/core/trigram.go`) already
// uses for struct-of-slices storage.
package splay

// Nil is the arena index meaning "no node", the zero-value-safe analogue
// of a NULL child pointer.
const Nil = -1

// Comparator orders two keys: negative if a sorts before b, positive if
// after, zero if equal. The indexer package supplies one comparator per
// tree type (flow, SRCv4, DSTv4, SRCv6, DSTv6, SRCPORT, DSTPORT), each
// with its own tie-break order (§4.D: "srcport, dstport, src ip, dst ip,
// proto").
type Comparator[K any] func(a, b K) int

type node[K any, V any] struct {
	key         K
	left, right int
	value       V
}

// Tree is a splay tree over keys of type K, where each node additionally
// carries a payload V (a flow's packet list, or a projection's flow
// list). Nodes are stored as pointers inside the arena slice so that
// Value's returned pointer stays valid across further Insert calls, even
// though the slice itself may grow.
type Tree[K any, V any] struct {
	nodes []*node[K, V]
	root  int
	cmp   Comparator[K]
}

// New returns an empty tree ordered by cmp.
func New[K any, V any](cmp Comparator[K]) *Tree[K, V] {
	return &Tree[K, V]{root: Nil, cmp: cmp}
}

func (t *Tree[K, V]) newNode(key K) int {
	t.nodes = append(t.nodes, &node[K, V]{key: key, left: Nil, right: Nil})
	return len(t.nodes) - 1
}

// Len returns the number of nodes ever allocated (the tree never shrinks
// its arena; nodes are logically dropped, not physically freed, until the
// whole tree is discarded after a chain is written).
func (t *Tree[K, V]) Len() int { return len(t.nodes) }

// Root returns the arena index of the current root, or Nil for an empty
// tree.
func (t *Tree[K, V]) Root() int { return t.root }

// Key returns the key stored at idx.
func (t *Tree[K, V]) Key(idx int) K { return t.nodes[idx].key }

// Value returns a pointer to the payload stored at idx, so callers can
// mutate it in place (e.g. appending to a flow's packet list).
func (t *Tree[K, V]) Value(idx int) *V { return &t.nodes[idx].value }

// Insert finds the node matching key — splaying it to the root — or
// creates one if absent, splays that to the root, and reports whether it
// was newly created. This is splay_tr_insert's top-down descent (with
// temporary left/right link reversal standing in for a parent pointer)
// followed by the bottom-up zig/zig-zig/zag-zag/zig-zag/zag-zig rotation
// pass (§4.D).
func (t *Tree[K, V]) Insert(key K) (idx int, created bool) {
	if t.root == Nil {
		idx = t.newNode(key)
		t.root = idx
		return idx, true
	}

	curr := t.root
	parent := Nil
descend:
	for {
		cmp := t.cmp(key, t.nodes[curr].key)
		switch {
		case cmp < 0:
			next := t.nodes[curr].left
			t.nodes[curr].left = parent
			parent = curr
			if next == Nil {
				curr = t.newNode(key)
				created = true
				break descend
			}
			curr = next
		case cmp > 0:
			next := t.nodes[curr].right
			t.nodes[curr].right = parent
			parent = curr
			if next == Nil {
				curr = t.newNode(key)
				created = true
				break descend
			}
			curr = next
		default:
			break descend
		}
	}

	idx = curr
	if parent == Nil {
		t.root = idx
		return idx, created
	}
	t.splay(idx, parent)
	return idx, created
}

// splay rotates the node at currIdx to the root, given the parent it was
// found under (or created under) during Insert's descent. It replays the
// temporary left/right reversal left behind by that descent to recover
// each ancestor's true parent, one level at a time, exactly as
// splay_tr_insert's bottom-up loop does.
func (t *Tree[K, V]) splay(currIdx, parentIdx int) {
	nextParent := parentIdx

	for nextParent != Nil {
		p := nextParent
		var gp int

		if t.cmp(t.nodes[currIdx].key, t.nodes[p].key) < 0 {
			gp = t.nodes[p].left
			t.nodes[p].left = currIdx
		} else {
			gp = t.nodes[p].right
			t.nodes[p].right = currIdx
		}

		if gp != Nil {
			if t.cmp(t.nodes[p].key, t.nodes[gp].key) < 0 {
				nextParent = t.nodes[gp].left
				t.nodes[gp].left = p
			} else {
				nextParent = t.nodes[gp].right
				t.nodes[gp].right = p
			}
		} else {
			nextParent = Nil
		}

		switch {
		case gp == Nil:
			// Zig: rotate the parent/node edge.
			if currIdx == t.nodes[p].left {
				t.nodes[p].left = t.nodes[currIdx].right
				t.nodes[currIdx].right = p
			} else {
				t.nodes[p].right = t.nodes[currIdx].left
				t.nodes[currIdx].left = p
			}
		case t.nodes[gp].left == p && t.nodes[p].left == currIdx:
			// Zig-zig: both edges lean left.
			t.nodes[gp].left = t.nodes[p].right
			t.nodes[p].right = gp
			t.nodes[p].left = t.nodes[currIdx].right
			t.nodes[currIdx].right = p
		case t.nodes[gp].right == p && t.nodes[p].right == currIdx:
			// Zag-zag: both edges lean right.
			t.nodes[gp].right = t.nodes[p].left
			t.nodes[p].left = gp
			t.nodes[p].right = t.nodes[currIdx].left
			t.nodes[currIdx].left = p
		case t.nodes[gp].left == p && t.nodes[p].right == currIdx:
			// Zig-zag.
			t.nodes[p].right = t.nodes[currIdx].left
			t.nodes[gp].left = t.nodes[currIdx].right
			t.nodes[currIdx].left = p
			t.nodes[currIdx].right = gp
		default:
			// Zag-zig.
			t.nodes[p].left = t.nodes[currIdx].right
			t.nodes[gp].right = t.nodes[currIdx].left
			t.nodes[currIdx].right = p
			t.nodes[currIdx].left = gp
		}
	}

	t.root = currIdx
}

// InOrder visits every node in ascending key order via an explicit stack
// (extra space grows with the tree's depth; the original's
// temporary-pointer-reversal trick is not used, which would complicate freeing nodes
// concurrently with the walk). This is the traversal fidx's left-filled
// tree serialization (§4.F) consumes to assign implicit-tree positions.
func (t *Tree[K, V]) InOrder(visit func(idx int)) {
	var stack []int
	curr := t.root
	for curr != Nil || len(stack) > 0 {
		for curr != Nil {
			stack = append(stack, curr)
			curr = t.nodes[curr].left
		}
		curr = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(curr)
		curr = t.nodes[curr].right
	}
}
