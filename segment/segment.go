// Package segment implements the compressed, persistent encoding of
// the integer-level commit DAG.
//
// A segment is a contiguous id run [Low..High] in which every id i
// above Low has exactly one parent, i-1. The parents of the run are
// the parents of Low. Long linear histories collapse into a handful of
// segments, so ancestry queries cost is proportional to the number of
// segments touched rather than the number of commits.
package segment

import (
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/xmonader/eden/core"
	"github.com/xmonader/eden/model"
)

// Reader is the read-only view of a Store, handed out for id-space
// queries against a fixed snapshot.
type Reader interface {
	Covered(g core.Group) (core.Id, bool)
	Len(g core.Group) int
	ParentIDs(id core.Id) ([]core.Id, error)
	Ancestors(heads ...core.Id) (*roaring64.Bitmap, error)
	IsAncestor(ancestor, descendant core.Id) (bool, error)
	ParentsOfSet(set *roaring64.Bitmap) (*roaring64.Bitmap, error)
	Heads(set *roaring64.Bitmap) (*roaring64.Bitmap, error)
	CommonAncestors(a, b core.Id) (*roaring64.Bitmap, error)
}

var _ Reader = (*Store)(nil)

// ErrUncovered signals a query for an id no committed segment covers:
// either the caller is out of sync or the store is inconsistent with
// the identifier map.
var ErrUncovered = errors.New("segment: id not covered by any segment")

// Segment is one contiguous run of the integer DAG.
type Segment struct {
	Low  core.Id
	High core.Id
	// Parents are the parents of Low. Every other id in the run has
	// exactly parent id-1.
	Parents []core.Id
}

// HasRoot reports whether the run starts at a root commit.
func (s Segment) HasRoot() bool { return len(s.Parents) == 0 }

// String implements fmt.Stringer.
func (s Segment) String() string {
	return fmt.Sprintf("[%s..%s]%v", s.Low, s.High, s.Parents)
}

// Store holds the segments of all groups. Like the identifier map it
// has no locking of its own; the orchestrator serializes mutation
// through the coordinating lock and reads through its own snapshot
// discipline.
type Store struct {
	groups [len(core.Groups)][]Segment

	// stagedFrom marks, per group, the index of the first segment not
	// yet committed to the log.
	stagedFrom [len(core.Groups)]int
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Covered returns the highest id the group's segments cover. ok is
// false for an empty group.
func (s *Store) Covered(g core.Group) (core.Id, bool) {
	segs := s.groups[g]
	if len(segs) == 0 {
		return 0, false
	}
	return segs[len(segs)-1].High, true
}

// Len returns the number of segments in the group.
func (s *Store) Len(g core.Group) int { return len(s.groups[g]) }

// Build extends the group's segments so every id from the current
// watermark through upTo is covered, pulling parent links from
// parents. Calling it with an already-covered upTo is a no-op.
//
// Within one call an arbitrarily long single-parent run becomes a
// single segment; merges and roots force a boundary.
func (s *Store) Build(upTo core.Id, parents model.ParentsByIDFunc) error {
	g := upTo.Group()
	next := g.MinID()
	if high, ok := s.Covered(g); ok {
		if upTo <= high {
			return nil
		}
		next = high + 1
	}

	open := false
	for id := next; id <= upTo; id++ {
		ps, err := parents(id)
		if err != nil {
			return err
		}
		if open && len(ps) == 1 && ps[0] == id-1 {
			s.groups[g][len(s.groups[g])-1].High = id
			continue
		}
		s.groups[g] = append(s.groups[g], Segment{
			Low:     id,
			High:    id,
			Parents: slices.Clone(ps),
		})
		open = true
	}
	return nil
}

// DiscardVolatile drops every volatile segment. Stable segments are
// untouched. The persistent volatile log is rewritten under a new
// generation by the caller.
func (s *Store) DiscardVolatile() {
	s.groups[core.GroupVolatile] = nil
	s.stagedFrom[core.GroupVolatile] = 0
}

// find returns the segment covering id.
func (s *Store) find(id core.Id) (Segment, error) {
	segs := s.groups[id.Group()]
	i, ok := slices.BinarySearchFunc(segs, id, func(seg Segment, target core.Id) int {
		switch {
		case seg.High < target:
			return -1
		case seg.Low > target:
			return 1
		default:
			return 0
		}
	})
	if !ok {
		return Segment{}, fmt.Errorf("%w: %s", ErrUncovered, id)
	}
	return segs[i], nil
}

// ParentIDs returns the parents of id as recorded by the segments.
func (s *Store) ParentIDs(id core.Id) ([]core.Id, error) {
	seg, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if id > seg.Low {
		return []core.Id{id - 1}, nil
	}
	return slices.Clone(seg.Parents), nil
}
