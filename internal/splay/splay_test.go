package splay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func inOrderKeys(t *testing.T, tree *Tree[int, []int]) []int {
	t.Helper()
	var keys []int
	tree.InOrder(func(idx int) {
		keys = append(keys, tree.Key(idx))
	})
	return keys
}

func TestInsertNewRootOnEmptyTree(t *testing.T) {
	tree := New[int, []int](intCmp)
	idx, created := tree.Insert(5)
	assert.True(t, created)
	assert.Equal(t, idx, tree.Root())
	assert.Equal(t, 5, tree.Key(idx))
}

func TestInsertedNodeBecomesRoot(t *testing.T) {
	tree := New[int, []int](intCmp)
	tree.Insert(10)
	tree.Insert(5)
	tree.Insert(20)

	idx, created := tree.Insert(15)
	assert.True(t, created)
	assert.Equal(t, idx, tree.Root(), "newly inserted node must be splayed to the root")
	assert.Equal(t, 15, tree.Key(tree.Root()))
}

func TestInsertExistingKeySplaysWithoutCreating(t *testing.T) {
	tree := New[int, []int](intCmp)
	tree.Insert(10)
	tree.Insert(5)
	tree.Insert(20)

	idx, created := tree.Insert(5)
	assert.False(t, created)
	assert.Equal(t, idx, tree.Root())
	assert.Equal(t, 5, tree.Key(idx))
}

func TestInOrderTraversalIsSorted(t *testing.T) {
	tree := New[int, []int](intCmp)
	values := []int{50, 30, 70, 20, 40, 60, 80, 10, 90, 35}
	for _, v := range values {
		tree.Insert(v)
	}

	keys := inOrderKeys(t, tree)
	require.Len(t, keys, len(values))
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestValuePointerSurvivesFurtherInserts(t *testing.T) {
	tree := New[int, []int](intCmp)
	idx, _ := tree.Insert(1)
	val := tree.Value(idx)
	*val = append(*val, 100)

	// Force arena growth well past any small initial capacity.
	for i := 2; i < 500; i++ {
		tree.Insert(i)
	}

	assert.Equal(t, []int{100}, *tree.Value(idx))
}

func TestInsertManyKeepsSortedOrderAtScale(t *testing.T) {
	tree := New[int, []int](intCmp)
	const n = 2000
	// Insert in a deliberately adversarial (ascending) order, the case
	// that would degrade an unbalanced BST to a linked list were it not
	// for splaying.
	for i := 0; i < n; i++ {
		tree.Insert(i)
	}

	keys := inOrderKeys(t, tree)
	require.Len(t, keys, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, keys[i])
	}
}
