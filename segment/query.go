package segment

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/xmonader/eden/core"
)

// Queries operate purely on committed segments: the parent resolver is
// never consulted after a build, and the cost of each operation is
// bounded by the number of segments touched.
//
// Id sets are roaring bitmaps; long ancestor spans become bitmap runs
// instead of per-commit entries.

// Ancestors returns the set of ids reachable from heads through parent
// links, including the heads themselves.
func (s *Store) Ancestors(heads ...core.Id) (*roaring64.Bitmap, error) {
	return s.ancestors(heads, nil)
}

// ancestors computes the reachable set. When stop is non-nil the
// computation short-circuits as soon as *stop enters the set, and ids
// below *stop are pruned (parents always have smaller ids, so nothing
// below *stop can reach it).
func (s *Store) ancestors(heads []core.Id, stop *core.Id) (*roaring64.Bitmap, error) {
	result := roaring64.New()
	pending := roaring64.New()
	for _, h := range heads {
		pending.Add(uint64(h))
	}

	for !pending.IsEmpty() {
		u := core.Id(pending.Maximum())
		pending.Remove(uint64(u))
		if result.Contains(uint64(u)) {
			continue
		}

		seg, err := s.find(u)
		if err != nil {
			return nil, err
		}
		low := seg.Low
		if stop != nil && low <= *stop && *stop <= u {
			result.Add(uint64(*stop))
			return result, nil
		}
		result.AddRange(uint64(low), uint64(u)+1)

		for _, p := range seg.Parents {
			if result.Contains(uint64(p)) {
				continue
			}
			if stop != nil && p < *stop {
				continue
			}
			pending.Add(uint64(p))
		}
	}
	return result, nil
}

// IsAncestor reports whether ancestor is reachable from descendant
// (every id is an ancestor of itself).
func (s *Store) IsAncestor(ancestor, descendant core.Id) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestor > descendant {
		// Parents always carry smaller ids than their children.
		return false, nil
	}
	set, err := s.ancestors([]core.Id{descendant}, &ancestor)
	if err != nil {
		return false, err
	}
	return set.Contains(uint64(ancestor)), nil
}

// ParentsOfSet returns the set of parents of every member of set.
// Members of set may themselves appear in the result (a parent of one
// member can be another member).
func (s *Store) ParentsOfSet(set *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	out := roaring64.New()
	it := set.Iterator()

	for it.HasNext() {
		// Collect one maximal run of consecutive ids.
		start := core.Id(it.Next())
		end := start
		for it.HasNext() {
			if core.Id(it.PeekNext()) != end+1 {
				break
			}
			end = core.Id(it.Next())
		}

		// Split the run along segment boundaries.
		for c := start; c <= end; {
			seg, err := s.find(c)
			if err != nil {
				return nil, err
			}
			chunkEnd := min(end, seg.High)
			if c == seg.Low {
				for _, p := range seg.Parents {
					out.Add(uint64(p))
				}
				if chunkEnd > c {
					out.AddRange(uint64(c), uint64(chunkEnd))
				}
			} else {
				out.AddRange(uint64(c)-1, uint64(chunkEnd))
			}
			if chunkEnd == end {
				break
			}
			c = chunkEnd + 1
		}
	}
	return out, nil
}

// Heads returns the members of an ancestor-closed set that have no
// child inside the set. For such sets a member is non-maximal exactly
// when it is some member's parent.
func (s *Store) Heads(set *roaring64.Bitmap) (*roaring64.Bitmap, error) {
	parents, err := s.ParentsOfSet(set)
	if err != nil {
		return nil, err
	}
	heads := set.Clone()
	heads.AndNot(parents)
	return heads, nil
}

// CommonAncestors returns the heads of the common ancestor set of a
// and b (the "greatest" common ancestors; more than one for criss-
// cross merge histories).
func (s *Store) CommonAncestors(a, b core.Id) (*roaring64.Bitmap, error) {
	sa, err := s.Ancestors(a)
	if err != nil {
		return nil, err
	}
	sb, err := s.Ancestors(b)
	if err != nil {
		return nil, err
	}
	sa.And(sb)
	if sa.IsEmpty() {
		return sa, nil
	}
	return s.Heads(sa)
}
