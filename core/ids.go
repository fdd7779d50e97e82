// Package core defines the dense integer id space shared by the
// identifier map and the segment store.
//
// The 64-bit id space is partitioned by the top byte into groups.
// Group 0 (Stable) numbers published history and its ids are permanent
// for the lifetime of the on-disk index. Group 1 (Volatile) numbers
// draft history and may be discarded and renumbered wholesale by a
// later build.
package core

import "fmt"

// Id is a dense integer identifier assigned to a vertex.
// Within a group, ids are assigned monotonically in discovery order.
type Id uint64

// Group is a stability class of the id space.
type Group uint8

const (
	// GroupStable numbers published, immutable history. Ids here are
	// never reused or renumbered.
	GroupStable Group = 0

	// GroupVolatile numbers work-in-progress history. The whole group
	// may be dropped and rebuilt by a later build.
	GroupVolatile Group = 1

	groupShift = 56
)

// Groups lists all groups in build order. Stable is always processed
// before Volatile so stable numbering never depends on volatile state.
var Groups = [2]Group{GroupStable, GroupVolatile}

// MinID returns the smallest id belonging to the group.
func (g Group) MinID() Id {
	return Id(uint64(g) << groupShift)
}

// MaxID returns the largest id belonging to the group.
func (g Group) MaxID() Id {
	return Id((uint64(g)+1)<<groupShift - 1)
}

// String implements fmt.Stringer.
func (g Group) String() string {
	switch g {
	case GroupStable:
		return "stable"
	case GroupVolatile:
		return "volatile"
	default:
		return fmt.Sprintf("group(%d)", uint8(g))
	}
}

// Group returns the group the id belongs to. Every id belongs to
// exactly one group.
func (i Id) Group() Group {
	return Group(uint64(i) >> groupShift)
}

// Offset returns the position of the id within its group.
func (i Id) Offset() uint64 {
	return uint64(i) - uint64(i.Group().MinID())
}

// String implements fmt.Stringer.
func (i Id) String() string {
	return fmt.Sprintf("%s:%d", i.Group(), i.Offset())
}
