package eden

import (
	"github.com/xmonader/eden/core"
	"github.com/xmonader/eden/idmap"
	"github.com/xmonader/eden/model"
	"github.com/xmonader/eden/segment"
)

// Contains reports whether v is indexed in any group.
func (g *Graph) Contains(v model.Vertex) (bool, error) {
	ids, _, err := g.snapshot()
	if err != nil {
		return false, err
	}
	_, ok := ids.FindID(v)
	return ok, nil
}

// Lookup returns the dense id assigned to v.
func (g *Graph) Lookup(v model.Vertex) (core.Id, error) {
	ids, _, err := g.snapshot()
	if err != nil {
		return 0, err
	}
	id, ok := ids.FindID(v)
	if !ok {
		return 0, &UnknownVertexError{Vertex: v}
	}
	return id, nil
}

// Parents returns the parent vertexes of v in their stored order.
func (g *Graph) Parents(v model.Vertex) ([]model.Vertex, error) {
	ids, segs, err := g.snapshot()
	if err != nil {
		return nil, err
	}
	id, ok := ids.FindID(v)
	if !ok {
		return nil, &UnknownVertexError{Vertex: v}
	}
	pids, err := segs.ParentIDs(id)
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]model.Vertex, 0, len(pids))
	for _, pid := range pids {
		pv, err := ids.VertexForID(pid)
		if err != nil {
			return nil, translateError(err)
		}
		out = append(out, pv)
	}
	return out, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent edges. Every vertex is its own ancestor.
func (g *Graph) IsAncestor(ancestor, descendant model.Vertex) (bool, error) {
	ids, segs, err := g.snapshot()
	if err != nil {
		return false, err
	}
	aid, ok := ids.FindID(ancestor)
	if !ok {
		return false, &UnknownVertexError{Vertex: ancestor}
	}
	did, ok := ids.FindID(descendant)
	if !ok {
		return false, &UnknownVertexError{Vertex: descendant}
	}
	isAnc, err := segs.IsAncestor(aid, did)
	if err != nil {
		return false, translateError(err)
	}
	return isAnc, nil
}

// CommonAncestors returns the heads of the intersection of the two
// ancestor sets. A criss-cross history yields more than one vertex.
func (g *Graph) CommonAncestors(a, b model.Vertex) ([]model.Vertex, error) {
	ids, segs, err := g.snapshot()
	if err != nil {
		return nil, err
	}
	aid, ok := ids.FindID(a)
	if !ok {
		return nil, &UnknownVertexError{Vertex: a}
	}
	bid, ok := ids.FindID(b)
	if !ok {
		return nil, &UnknownVertexError{Vertex: b}
	}
	common, err := segs.CommonAncestors(aid, bid)
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]model.Vertex, 0, common.GetCardinality())
	it := common.Iterator()
	for it.HasNext() {
		v, err := ids.VertexForID(core.Id(it.Next()))
		if err != nil {
			return nil, translateError(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// LowLevelAccess bundles direct read-only handles to the two halves of
// the index, for callers that work in id space.
//
// The handles are bound to the snapshot current at the time of the
// call; a later Build or Reload publishes a new snapshot that they do
// not follow.
type LowLevelAccess struct {
	Map      idmap.Reader
	Segments segment.Reader
}

// LowLevel returns read-only access to the identifier map and segment
// store of the current snapshot.
func (g *Graph) LowLevel() (LowLevelAccess, error) {
	ids, segs, err := g.snapshot()
	if err != nil {
		return LowLevelAccess{}, err
	}
	return LowLevelAccess{Map: ids, Segments: segs}, nil
}
