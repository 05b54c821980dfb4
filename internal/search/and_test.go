package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/oset"
)

func offsetSet(t *testing.T, vals ...uint64) *oset.OffsetSet {
	t.Helper()
	s := oset.NewBufferedOffsetSet()
	for _, v := range vals {
		require.NoError(t, s.Push(v))
	}
	require.NoError(t, s.ReadMode())
	return s
}

func drainAll(t *testing.T, s *oset.OffsetSet) []uint64 {
	t.Helper()
	var got []uint64
	for {
		v, ok := s.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	return got
}

// TestAndResultsWithExclusion replicates spec scenario S4: A=[1,2,3,4],
// B=[2,3,5], I=[3] -> and_results({A,B},{I}) == [2].
func TestAndResultsWithExclusion(t *testing.T) {
	a := offsetSet(t, 1, 2, 3, 4)
	b := offsetSet(t, 2, 3, 5)
	i := offsetSet(t, 3)

	out := oset.NewBufferedOffsetSet()
	require.NoError(t, AndResults([]*oset.OffsetSet{a, b}, []*oset.OffsetSet{i}, out))
	require.NoError(t, out.ReadMode())

	assert.Equal(t, []uint64{2}, drainAll(t, out))
}

func TestAndResultsNoInversionIsPlainIntersection(t *testing.T) {
	a := offsetSet(t, 1, 2, 3, 4)
	b := offsetSet(t, 2, 3, 5)

	out := oset.NewBufferedOffsetSet()
	require.NoError(t, AndResults([]*oset.OffsetSet{a, b}, nil, out))
	require.NoError(t, out.ReadMode())

	assert.Equal(t, []uint64{2, 3}, drainAll(t, out))
}

func TestAndResultsMultipleInvertedSetsAreUnionedFirst(t *testing.T) {
	a := offsetSet(t, 1, 2, 3, 4, 5)
	i1 := offsetSet(t, 2)
	i2 := offsetSet(t, 4)

	out := oset.NewBufferedOffsetSet()
	require.NoError(t, AndResults([]*oset.OffsetSet{a}, []*oset.OffsetSet{i1, i2}, out))
	require.NoError(t, out.ReadMode())

	assert.Equal(t, []uint64{1, 3, 5}, drainAll(t, out))
}

func TestOrResultsUnionsAllSets(t *testing.T) {
	a := offsetSet(t, 1, 3, 5)
	b := offsetSet(t, 2, 3, 9)

	out := oset.NewBufferedOffsetSet()
	require.NoError(t, OrResults([]*oset.OffsetSet{a, b}, out))
	require.NoError(t, out.ReadMode())

	assert.Equal(t, []uint64{1, 2, 3, 5, 9}, drainAll(t, out))
}
