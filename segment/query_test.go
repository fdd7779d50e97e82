package segment

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmonader/eden/core"
)

// mergeStore builds the two-branch merge history used across query
// tests: X = [0..2], Y = [3..4] (independent root), M = 5 merging both,
// and a child 6 on top of M.
func mergeStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Build(core.Id(6), tableParents(map[core.Id][]core.Id{
		1: {0},
		2: {1},
		4: {3},
		5: {2, 4},
		6: {5},
	})))
	return s
}

func setOf(ids ...uint64) *roaring64.Bitmap {
	return roaring64.BitmapOf(ids...)
}

func TestAncestorsLinear(t *testing.T) {
	s := New()
	require.NoError(t, s.Build(core.Id(99), linearParents(core.GroupStable)))

	set, err := s.Ancestors(50)
	require.NoError(t, err)
	assert.Equal(t, uint64(51), set.GetCardinality())
	assert.True(t, set.Contains(0))
	assert.True(t, set.Contains(50))
	assert.False(t, set.Contains(51))
}

func TestAncestorsMerge(t *testing.T) {
	s := mergeStore(t)

	set, err := s.Ancestors(5)
	require.NoError(t, err)
	// Everything below the merge is an ancestor of the merge.
	assert.True(t, set.Equals(setOf(0, 1, 2, 3, 4, 5)))

	set, err = s.Ancestors(2)
	require.NoError(t, err)
	assert.True(t, set.Equals(setOf(0, 1, 2)))

	// Multiple heads union their histories.
	set, err = s.Ancestors(2, 4)
	require.NoError(t, err)
	assert.True(t, set.Equals(setOf(0, 1, 2, 3, 4)))
}

func TestIsAncestor(t *testing.T) {
	s := mergeStore(t)

	tests := []struct {
		ancestor, descendant core.Id
		want                 bool
	}{
		{2, 5, true},  // X is an ancestor of the merge
		{4, 5, true},  // so is Y
		{2, 4, false}, // X and Y share no history
		{4, 2, false},
		{0, 6, true},
		{3, 6, true},
		{5, 5, true},  // reflexive
		{6, 5, false}, // children are not ancestors
	}
	for _, tt := range tests {
		got, err := s.IsAncestor(tt.ancestor, tt.descendant)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "IsAncestor(%d, %d)", tt.ancestor, tt.descendant)
	}
}

func TestParentsOfSet(t *testing.T) {
	s := mergeStore(t)

	// Parents of {5, 6}: 6 -> 5, 5 -> {2, 4}.
	got, err := s.ParentsOfSet(setOf(5, 6))
	require.NoError(t, err)
	assert.True(t, got.Equals(setOf(2, 4, 5)))

	// A full span inside one segment.
	got, err = s.ParentsOfSet(setOf(0, 1, 2))
	require.NoError(t, err)
	assert.True(t, got.Equals(setOf(0, 1)))
}

func TestHeads(t *testing.T) {
	s := mergeStore(t)

	// Ancestor-closed set with a single head.
	set, err := s.Ancestors(5)
	require.NoError(t, err)
	heads, err := s.Heads(set)
	require.NoError(t, err)
	assert.True(t, heads.Equals(setOf(5)))

	// Two independent branches: two heads.
	set, err = s.Ancestors(2, 4)
	require.NoError(t, err)
	heads, err = s.Heads(set)
	require.NoError(t, err)
	assert.True(t, heads.Equals(setOf(2, 4)))
}

func TestCommonAncestors(t *testing.T) {
	s := mergeStore(t)

	// X and Y have no common history.
	got, err := s.CommonAncestors(2, 4)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())

	// The merge and a branch meet at the branch tip.
	got, err = s.CommonAncestors(6, 2)
	require.NoError(t, err)
	assert.True(t, got.Equals(setOf(2)))
}

func TestCommonAncestorsCrissCross(t *testing.T) {
	// Criss-cross: P and Q both merge A(1) and B(2).
	//   0 <- 1, 0 <- 2, P=3 merges {1,2}, Q=4 merges {1,2}.
	s := New()
	require.NoError(t, s.Build(core.Id(4), tableParents(map[core.Id][]core.Id{
		1: {0},
		2: {0},
		3: {1, 2},
		4: {1, 2},
	})))

	got, err := s.CommonAncestors(3, 4)
	require.NoError(t, err)
	assert.True(t, got.Equals(setOf(1, 2)), "got %v", got.ToArray())
}

func TestQueriesAcrossGroups(t *testing.T) {
	s := New()
	require.NoError(t, s.Build(core.Id(4), linearParents(core.GroupStable)))

	vmin := core.GroupVolatile.MinID()
	require.NoError(t, s.Build(vmin+1, tableParents(map[core.Id][]core.Id{
		vmin:     {4},
		vmin + 1: {vmin},
	})))

	// Published history is reachable from the draft.
	ok, err := s.IsAncestor(2, vmin+1)
	require.NoError(t, err)
	assert.True(t, ok)

	// But not the other way around.
	ok, err = s.IsAncestor(vmin, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	set, err := s.Ancestors(vmin + 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), set.GetCardinality())
}
