package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupRanges(t *testing.T) {
	assert.Equal(t, Id(0), GroupStable.MinID())
	assert.Equal(t, Id(1<<56-1), GroupStable.MaxID())
	assert.Equal(t, Id(1<<56), GroupVolatile.MinID())
	assert.Equal(t, Id(2<<56-1), GroupVolatile.MaxID())

	// Ranges are disjoint and adjacent.
	assert.Equal(t, GroupStable.MaxID()+1, GroupVolatile.MinID())
}

func TestIdGroup(t *testing.T) {
	tests := []struct {
		id    Id
		group Group
	}{
		{0, GroupStable},
		{1, GroupStable},
		{GroupStable.MaxID(), GroupStable},
		{GroupVolatile.MinID(), GroupVolatile},
		{GroupVolatile.MinID() + 42, GroupVolatile},
		{GroupVolatile.MaxID(), GroupVolatile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.group, tt.id.Group(), "id %d", uint64(tt.id))
	}
}

func TestIdOffset(t *testing.T) {
	assert.Equal(t, uint64(7), Id(7).Offset())
	assert.Equal(t, uint64(7), (GroupVolatile.MinID() + 7).Offset())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "stable", GroupStable.String())
	assert.Equal(t, "volatile", GroupVolatile.String())
	assert.Equal(t, "stable:3", Id(3).String())
	assert.Equal(t, "volatile:0", GroupVolatile.MinID().String())
}
