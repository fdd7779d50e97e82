package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmonader/eden/core"
)

func TestStagedFrameRoundTrip(t *testing.T) {
	s := mergeStore(t)

	payload, ok := s.StagedFrame(core.GroupStable)
	require.True(t, ok)
	s.ClearStaged(core.GroupStable)
	_, ok = s.StagedFrame(core.GroupStable)
	assert.False(t, ok)

	restored := New()
	require.NoError(t, restored.ApplyFrame(payload))

	assert.Equal(t, s.Len(core.GroupStable), restored.Len(core.GroupStable))
	for id := core.Id(0); id <= 6; id++ {
		want, err := s.ParentIDs(id)
		require.NoError(t, err)
		got, err := restored.ParentIDs(id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "parents of %d", id)
	}
}

func TestIncrementalFrames(t *testing.T) {
	s := New()
	parents := linearParents(core.GroupStable)

	var frames [][]byte
	for _, upTo := range []core.Id{4, 9} {
		require.NoError(t, s.Build(upTo, parents))
		payload, ok := s.StagedFrame(core.GroupStable)
		require.True(t, ok)
		frames = append(frames, payload)
		s.ClearStaged(core.GroupStable)
	}

	restored := New()
	for _, f := range frames {
		require.NoError(t, restored.ApplyFrame(f))
	}
	high, ok := restored.Covered(core.GroupStable)
	require.True(t, ok)
	assert.Equal(t, core.Id(9), high)

	ps, err := restored.ParentIDs(5)
	require.NoError(t, err)
	assert.Equal(t, []core.Id{4}, ps)
}

func TestSnapshotFrameAfterDiscard(t *testing.T) {
	s := New()
	require.NoError(t, s.Build(core.Id(4), linearParents(core.GroupStable)))

	vmin := core.GroupVolatile.MinID()
	require.NoError(t, s.Build(vmin, tableParents(map[core.Id][]core.Id{vmin: {4}})))
	s.DiscardVolatile()
	require.NoError(t, s.Build(vmin+1, tableParents(map[core.Id][]core.Id{
		vmin:     {2},
		vmin + 1: {vmin},
	})))

	restored := New()
	require.NoError(t, restored.ApplyFrame(s.SnapshotFrame(core.GroupVolatile)))

	ps, err := restored.ParentIDs(vmin)
	require.NoError(t, err)
	assert.Equal(t, []core.Id{2}, ps)
	high, ok := restored.Covered(core.GroupVolatile)
	require.True(t, ok)
	assert.Equal(t, vmin+1, high)
}

func TestApplyFrameRejectsCorruption(t *testing.T) {
	restored := New()

	err := restored.ApplyFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)

	// A gap in coverage is corruption, not a silent hole.
	s := New()
	require.NoError(t, s.Build(core.Id(2), linearParents(core.GroupStable)))
	payload, _ := s.StagedFrame(core.GroupStable)

	withGap := New()
	require.NoError(t, withGap.ApplyFrame(payload))
	err = withGap.ApplyFrame(payload) // same ids again: low != expected
	assert.ErrorIs(t, err, ErrCorrupt)
}
