// Package eden provides a persistent commit-graph index: a
// bidirectional mapping from content-addressed commit hashes to dense
// integer ids, combined with a compressed segment encoding of the DAG
// that answers ancestry and reachability queries over graphs with
// millions of vertexes without walking history.
//
// # Model
//
// The integer id space is split into two stability classes. Stable ids
// number published, immutable history and are never renumbered once
// committed. Volatile ids number work-in-progress history (rebases,
// amends) and may be discarded and reassigned wholesale by a later
// build. The [Graph] orchestrator owns one identifier map and one
// segment store per on-disk location and keeps the two consistent: a
// build mutates and commits them as a single logical unit, and readers
// always observe both at the same commit point.
//
// # Quick start
//
//	g, err := eden.Open(ctx, "/repo/.idx/commitgraph")
//	if err != nil {
//	    return err
//	}
//	defer g.Close()
//
//	err = g.Build(ctx, resolveParents,
//	    []model.Vertex{publishedTip},
//	    []model.Vertex{draftTip},
//	)
//
//	ok, err := g.IsAncestor(publishedTip, draftTip)
//
// resolveParents is a caller-supplied [model.ParentResolver] backed by
// the repository's commit storage. It is only consulted for commits
// the index has never seen; queries afterwards run entirely on the
// committed segments.
//
// # Concurrency
//
// One writer, many readers. Writers across processes serialize through
// an advisory file lock on the index location; Build returns
// [ErrLockContended] (or waits, see [WithLockWait]) when another
// process holds it. Readers never block writers: they work on the
// snapshot loaded by [Open] or the latest [Graph.Reload].
package eden
