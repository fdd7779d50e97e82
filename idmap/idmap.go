// Package idmap implements the persistent bidirectional mapping
// between vertexes (commit hashes) and dense integer ids.
//
// The mapping is injective both ways within a group, and assignment is
// ancestors-first: whenever a vertex holds an id, every parent of that
// vertex assigned to the same group holds a strictly smaller id. The
// segment store depends on that ordering for its run-length encoding.
package idmap

import (
	"errors"
	"fmt"

	"github.com/xmonader/eden/core"
	"github.com/xmonader/eden/model"
)

// ErrInconsistent signals that the map and the caller's parent
// resolver disagree: an id's vertex or one of its parents cannot be
// resolved back to an id. This is fatal for the running build.
var ErrInconsistent = errors.New("idmap: map and resolver are inconsistent")

// Reader is the read-only view of a Map, handed out through the
// orchestrator's low-level access surface.
type Reader interface {
	FindID(v model.Vertex) (core.Id, bool)
	FindIDWithMaxGroup(v model.Vertex, maxGroup core.Group) (core.Id, bool)
	VertexForID(id core.Id) (model.Vertex, error)
	NextFreeID(g core.Group) core.Id
	Len(g core.Group) uint64
}

// Map is the in-memory working state of the identifier map. It carries
// no locking of its own: the orchestrator only mutates it while
// holding the coordinating lock.
type Map struct {
	ids     map[string]core.Id
	byGroup [len(core.Groups)][]model.Vertex

	// staged collects assignments not yet committed to the log.
	staged []record

	// needRebuildVolatile rises when a stable assignment absorbs a
	// vertex that previously only had a volatile id. The volatile
	// group's numbering is invalid from that point until it is
	// discarded and rebuilt.
	needRebuildVolatile bool
}

type record struct {
	id     core.Id
	vertex model.Vertex
}

// New returns an empty map.
func New() *Map {
	return &Map{ids: make(map[string]core.Id)}
}

// FindID returns the id assigned to v, preferring the stable group
// when the vertex is (transiently) known to both.
func (m *Map) FindID(v model.Vertex) (core.Id, bool) {
	id, ok := m.ids[string(v)]
	return id, ok
}

// FindIDWithMaxGroup is FindID restricted to groups at or below
// maxGroup. It is used to answer "is this vertex already stably
// known" without seeing volatile-only assignments.
func (m *Map) FindIDWithMaxGroup(v model.Vertex, maxGroup core.Group) (core.Id, bool) {
	id, ok := m.ids[string(v)]
	if !ok || id.Group() > maxGroup {
		return 0, false
	}
	return id, true
}

// VertexForID returns the vertex holding id.
func (m *Map) VertexForID(id core.Id) (model.Vertex, error) {
	g := id.Group()
	off := id.Offset()
	if g > core.GroupVolatile || off >= uint64(len(m.byGroup[g])) {
		return nil, fmt.Errorf("%w: id %s not assigned", ErrInconsistent, id)
	}
	return m.byGroup[g][off], nil
}

// NextFreeID returns the smallest unassigned id in the group.
func (m *Map) NextFreeID(g core.Group) core.Id {
	return g.MinID() + core.Id(len(m.byGroup[g]))
}

// Len returns the number of assigned ids in the group.
func (m *Map) Len(g core.Group) uint64 {
	return uint64(len(m.byGroup[g]))
}

// NeedRebuildVolatile reports whether the volatile group must be
// discarded and rebuilt before it can be extended again.
func (m *Map) NeedRebuildVolatile() bool { return m.needRebuildVolatile }

// SetNeedRebuildVolatile restores the flag from a loaded manifest.
func (m *Map) SetNeedRebuildVolatile(v bool) { m.needRebuildVolatile = v }

// AssignHead ensures head and all of its transitive ancestors hold ids
// in group. Ancestors are assigned before descendants. Vertexes
// already mapped in group or below prune the walk, so the resolver is
// only invoked for the new frontier of history.
//
// A vertex found only in a group above the target (a volatile id while
// assigning stable) is re-assigned into the target group and the
// needs-rebuild flag rises: the volatile numbering can no longer be
// trusted and must be rebuilt by the caller.
func (m *Map) AssignHead(head model.Vertex, resolver model.ParentResolver, group core.Group) (core.Id, error) {
	type frame struct {
		vertex   model.Vertex
		expanded bool
	}

	// Explicit work stack: histories are deep and linear, recursion
	// would overflow long before a million commits.
	stack := []frame{{vertex: head}}
	parents := make(map[string][]model.Vertex)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if _, ok := m.FindIDWithMaxGroup(top.vertex, group); ok {
			stack = stack[:len(stack)-1]
			continue
		}

		if !top.expanded {
			key := string(top.vertex)
			ps, ok := parents[key]
			if !ok {
				var err error
				ps, err = resolver(top.vertex)
				if err != nil {
					return 0, fmt.Errorf("idmap: resolving parents of %s: %w", top.vertex, err)
				}
				parents[key] = ps
			}
			top.expanded = true
			for i := len(ps) - 1; i >= 0; i-- {
				if _, ok := m.FindIDWithMaxGroup(ps[i], group); !ok {
					stack = append(stack, frame{vertex: ps[i]})
				}
			}
			continue
		}

		// All parents are assigned now; this vertex gets the next id.
		m.assign(top.vertex, group)
		stack = stack[:len(stack)-1]
	}

	id, _ := m.FindIDWithMaxGroup(head, group)
	return id, nil
}

func (m *Map) assign(v model.Vertex, g core.Group) core.Id {
	if old, ok := m.ids[string(v)]; ok && old.Group() > g {
		// Re-numbering a volatile vertex into the stable range
		// invalidates the volatile group as a whole.
		m.needRebuildVolatile = true
	}

	id := m.NextFreeID(g)
	stored := v.Clone()
	m.byGroup[g] = append(m.byGroup[g], stored)
	m.ids[string(stored)] = id
	m.staged = append(m.staged, record{id: id, vertex: stored})
	return id
}

// PurgeVolatile drops every volatile assignment. Stable ids are
// untouched. The caller is expected to rewrite the persistent log
// afterwards (the volatile portion of the log is gone for good).
func (m *Map) PurgeVolatile() {
	for _, v := range m.byGroup[core.GroupVolatile] {
		if id, ok := m.ids[string(v)]; ok && id.Group() == core.GroupVolatile {
			delete(m.ids, string(v))
		}
	}
	m.byGroup[core.GroupVolatile] = nil
	m.needRebuildVolatile = false

	// Staged-but-uncommitted volatile records must not survive either.
	kept := m.staged[:0]
	for _, r := range m.staged {
		if r.id.Group() != core.GroupVolatile {
			kept = append(kept, r)
		}
	}
	m.staged = kept
}

// ParentsByID composes the vertex-level resolver with the map,
// producing the integer-level parent relation the segment store
// consumes. Any id or parent the map cannot account for is an
// ErrInconsistent: the build must not proceed on a torn mapping.
func (m *Map) ParentsByID(resolver model.ParentResolver) model.ParentsByIDFunc {
	return func(id core.Id) ([]core.Id, error) {
		v, err := m.VertexForID(id)
		if err != nil {
			return nil, err
		}
		ps, err := resolver(v)
		if err != nil {
			return nil, fmt.Errorf("idmap: resolving parents of %s: %w", v, err)
		}
		ids := make([]core.Id, 0, len(ps))
		for _, p := range ps {
			pid, ok := m.FindID(p)
			if !ok {
				return nil, fmt.Errorf("%w: parent %s of %s has no id", ErrInconsistent, p, v)
			}
			ids = append(ids, pid)
		}
		return ids, nil
	}
}
