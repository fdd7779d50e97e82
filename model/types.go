// Package model defines the shared vertex-level types exchanged
// between the graph index and its callers.
package model

import (
	"bytes"
	"encoding/hex"

	"github.com/xmonader/eden/core"
)

// Vertex is an opaque, immutable, content-addressed identifier for a
// graph node (a commit hash). Equality is byte equality.
type Vertex []byte

// Equal reports whether two vertexes are byte-equal.
func (v Vertex) Equal(other Vertex) bool {
	return bytes.Equal(v, other)
}

// Clone returns an independent copy of the vertex bytes.
func (v Vertex) Clone() Vertex {
	return Vertex(bytes.Clone(v))
}

// String returns the vertex as a hex string.
func (v Vertex) String() string {
	return hex.EncodeToString(v)
}

// ParentResolver reports the parent vertexes of a vertex, backed by
// the repository's actual commit storage. It must be deterministic for
// a given vertex at call time and may be arbitrarily expensive; the
// index only invokes it for newly discovered vertexes. A resolver
// error aborts the running build.
type ParentResolver func(v Vertex) ([]Vertex, error)

// ParentsByIDFunc is the integer-level parent relation derived from a
// ParentResolver and an identifier map. The segment store consumes it
// during builds.
type ParentsByIDFunc func(id core.Id) ([]core.Id, error)
