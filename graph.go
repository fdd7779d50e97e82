package eden

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xmonader/eden/blockio"
	"github.com/xmonader/eden/core"
	"github.com/xmonader/eden/idmap"
	"github.com/xmonader/eden/lock"
	"github.com/xmonader/eden/manifest"
	"github.com/xmonader/eden/model"
	"github.com/xmonader/eden/segment"
)

// Graph is the orchestrator of one on-disk graph index location. It
// owns exactly one identifier map and one segment store and guarantees
// the two are always mutated, committed, and observed as a single
// logical unit.
//
// A Graph is safe for concurrent readers. At most one Build runs per
// location across all processes, serialized by the coordinating lock.
type Graph struct {
	opts      options
	dir       string
	lk        *lock.Lock
	manifests *manifest.Store

	// mu guards the published snapshot below. Build and Reload prepare
	// a complete replacement off to the side and swap it in; published
	// state is never mutated in place.
	mu     sync.RWMutex
	closed bool
	man    *manifest.Manifest
	ids    *idmap.Map
	segs   *segment.Store
}

// Open loads the graph index at dir, creating an empty one if the
// location has never been used.
//
// The coordinating lock is held just long enough to read the manifest
// and both logs at a single commit point, then released.
func Open(ctx context.Context, dir string, opts ...Option) (*Graph, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if err := o.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	g := &Graph{
		opts:      o,
		dir:       dir,
		lk:        lock.New(dir),
		manifests: manifest.NewStore(o.fsys, dir),
	}

	if err := g.lk.Acquire(ctx, o.lockPoll); err != nil {
		return nil, translateError(err)
	}
	man, ids, segs, err := g.load(ctx)
	g.lk.Release()
	if err != nil {
		return nil, translateError(err)
	}

	g.man, g.ids, g.segs = man, ids, segs
	return g, nil
}

// load reads the committed state: the manifest first, then the idmap
// and per-group segment logs it references, replayed up to their
// durable lengths. The three logs load in parallel; they apply to
// disjoint state.
func (g *Graph) load(ctx context.Context) (*manifest.Manifest, *idmap.Map, *segment.Store, error) {
	man, err := g.manifests.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	ids := idmap.New()
	segs := segment.New()

	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.replayLog(manifest.IDMapFileName(man.IDMap.Gen), man.IDMap.Len, ids.ApplyFrame)
	})
	for _, grp := range core.Groups {
		st := man.Group(grp)
		name := manifest.SegFileName(grp, st.Segments.Gen)
		length := st.Segments.Len
		eg.Go(func() error {
			return g.replayLog(name, length, segs.ApplyFrame)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, nil, err
	}

	ids.SetNeedRebuildVolatile(man.NeedRebuildVolatile)

	// The manifest's watermarks must agree with what the logs replay
	// to; a mismatch means the commit protocol was violated.
	for _, grp := range core.Groups {
		if got := uint64(ids.NextFreeID(grp)); got != man.Group(grp).NextFree {
			return nil, nil, nil, fmt.Errorf("%w: %s watermark %d, idmap replayed to %d",
				idmap.ErrCorrupt, grp, man.Group(grp).NextFree, got)
		}
	}
	return man, ids, segs, nil
}

func (g *Graph) replayLog(name string, durable int64, apply func([]byte) error) error {
	if durable == 0 {
		return nil
	}
	l, err := blockio.OpenLog(g.opts.fsys, filepath.Join(g.dir, name), g.opts.codec, durable)
	if err != nil {
		return err
	}
	defer l.Close()
	return l.Replay(durable, apply)
}

// frontierSatisfied implements the idempotence fast path: stable heads
// must be stably known, volatile heads known in any group.
func frontierSatisfied(ids *idmap.Map, stableHeads, volatileHeads []model.Vertex) bool {
	for _, h := range stableHeads {
		if _, ok := ids.FindIDWithMaxGroup(h, core.GroupStable); !ok {
			return false
		}
	}
	for _, h := range volatileHeads {
		if _, ok := ids.FindID(h); !ok {
			return false
		}
	}
	return true
}

// Build ensures every head in both frontiers (and all of their
// ancestors, pulled from resolver) is indexed, then extends the
// segment store to match and commits both structures as one unit.
//
// Build is idempotent: a frontier that is already fully indexed
// returns nil immediately without taking the coordinating lock. When
// another process holds the lock, Build fails with ErrLockContended
// unless WithLockWait is configured.
//
// On any failure nothing is committed and the previously published
// snapshot stays untouched.
func (g *Graph) Build(ctx context.Context, resolver model.ParentResolver, stableHeads, volatileHeads []model.Vertex) error {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return ErrClosed
	}
	satisfied := frontierSatisfied(g.ids, stableHeads, volatileHeads)
	g.mu.RUnlock()
	if satisfied {
		return nil
	}

	if err := g.acquireBuildLock(ctx); err != nil {
		err = translateError(err)
		g.opts.logger.LogBuild(ctx, len(stableHeads), len(volatileHeads), 0, false, err)
		return err
	}
	defer g.lk.Release()

	man, ids, segs, err := g.buildLocked(ctx, resolver, stableHeads, volatileHeads)
	if err != nil {
		err = translateError(err)
		g.opts.logger.LogBuild(ctx, len(stableHeads), len(volatileHeads), 0, false, err)
		return err
	}
	g.swap(man, ids, segs)
	return nil
}

func (g *Graph) buildLocked(ctx context.Context, resolver model.ParentResolver, stableHeads, volatileHeads []model.Vertex) (*manifest.Manifest, *idmap.Map, *segment.Store, error) {
	// Another process may have committed since our snapshot was taken;
	// always start from the latest durable state.
	man, ids, segs, err := g.load(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if frontierSatisfied(ids, stableHeads, volatileHeads) {
		return man, ids, segs, nil
	}

	before := ids.Len(core.GroupStable) + ids.Len(core.GroupVolatile)

	// Stable first: stable numbering must never depend on volatile
	// assignments made in the same build.
	for _, h := range stableHeads {
		if _, err := ids.AssignHead(h, resolver, core.GroupStable); err != nil {
			return nil, nil, nil, err
		}
	}

	// If stable assignment absorbed formerly-volatile vertexes (or a
	// previous build left the flag behind), the volatile numbering is
	// void: drop the whole group and renumber it below.
	rebuilt := false
	if ids.NeedRebuildVolatile() {
		ids.PurgeVolatile()
		segs.DiscardVolatile()
		rebuilt = true
	}

	for _, h := range volatileHeads {
		if _, err := ids.AssignHead(h, resolver, core.GroupVolatile); err != nil {
			return nil, nil, nil, err
		}
	}

	parentsByID := ids.ParentsByID(resolver)
	for _, grp := range core.Groups {
		next := ids.NextFreeID(grp)
		if next > grp.MinID() {
			if err := segs.Build(next-1, parentsByID); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	if err := g.commit(man, ids, segs, rebuilt); err != nil {
		return nil, nil, nil, err
	}

	// A rebuild can shrink the total, so clamp at zero.
	var assigned uint64
	if after := ids.Len(core.GroupStable) + ids.Len(core.GroupVolatile); after > before {
		assigned = after - before
	}
	g.opts.logger.LogBuild(ctx, len(stableHeads), len(volatileHeads), assigned, rebuilt, nil)
	g.opts.logger.LogCommit(ctx, man.ID)
	return man, ids, segs, nil
}

// commit persists the staged state. Write order is load-bearing: the
// idmap is made durable before the segments that reference its ids,
// and the manifest swap at the end is the only point where any of it
// becomes visible to other openers.
func (g *Graph) commit(man *manifest.Manifest, ids *idmap.Map, segs *segment.Store, rebuilt bool) error {
	man.Codec = uint8(g.opts.codec)

	if rebuilt || man.IDMap.Len == 0 {
		// Fresh generation carrying a full snapshot.
		man.IDMap.Gen++
		n, err := g.writeLog(manifest.IDMapFileName(man.IDMap.Gen), 0, ids.SnapshotFrame())
		if err != nil {
			return err
		}
		man.IDMap.Len = n
	} else if payload, ok := ids.StagedFrame(); ok {
		n, err := g.writeLog(manifest.IDMapFileName(man.IDMap.Gen), man.IDMap.Len, payload)
		if err != nil {
			return err
		}
		man.IDMap.Len = n
	}
	ids.ClearStaged()

	for _, grp := range core.Groups {
		st := man.Group(grp)
		freshGen := st.Segments.Len == 0 || (grp == core.GroupVolatile && rebuilt)
		if freshGen {
			payload := segs.SnapshotFrame(grp)
			if len(payload) == 0 && st.Segments.Len == 0 {
				// Empty group that was never persisted: no file at all.
				segs.ClearStaged(grp)
				continue
			}
			st.Segments.Gen++
			n, err := g.writeLog(manifest.SegFileName(grp, st.Segments.Gen), 0, payload)
			if err != nil {
				return err
			}
			st.Segments.Len = n
		} else if payload, ok := segs.StagedFrame(grp); ok {
			n, err := g.writeLog(manifest.SegFileName(grp, st.Segments.Gen), st.Segments.Len, payload)
			if err != nil {
				return err
			}
			st.Segments.Len = n
		}
		segs.ClearStaged(grp)
	}

	for _, grp := range core.Groups {
		man.Group(grp).NextFree = uint64(ids.NextFreeID(grp))
	}
	man.NeedRebuildVolatile = ids.NeedRebuildVolatile()

	if err := g.manifests.Save(man); err != nil {
		return err
	}
	g.manifests.GC(man)
	return nil
}

// writeLog creates or extends one log file, fsyncs it, and returns the
// new durable length.
func (g *Graph) writeLog(name string, durable int64, payload []byte) (int64, error) {
	l, err := blockio.OpenLog(g.opts.fsys, filepath.Join(g.dir, name), g.opts.codec, durable)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	if len(payload) > 0 {
		if err := l.Append(payload); err != nil {
			return 0, err
		}
	}
	if err := l.Sync(); err != nil {
		return 0, err
	}
	return l.Size(), nil
}

func (g *Graph) acquireBuildLock(ctx context.Context) error {
	if g.opts.lockWait <= 0 {
		return g.lk.TryAcquire()
	}
	wctx, cancel := context.WithTimeout(ctx, g.opts.lockWait)
	defer cancel()
	err := g.lk.Acquire(wctx, g.opts.lockPoll)
	if err != nil && wctx.Err() != nil && ctx.Err() == nil {
		// The bounded wait expired, not the caller's context.
		return fmt.Errorf("%w: gave up after %v", lock.ErrContended, g.opts.lockWait)
	}
	return err
}

func (g *Graph) swap(man *manifest.Manifest, ids *idmap.Map, segs *segment.Store) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.man, g.ids, g.segs = man, ids, segs
}

// Reload re-reads the latest committed state. It never mutates
// anything and is safe to call concurrently with readers; queries in
// flight finish against the snapshot they started on.
func (g *Graph) Reload(ctx context.Context) error {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	man, ids, segs, err := g.load(ctx)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		// A writer may have swapped generations and collected the old
		// files between our manifest read and the log open. The new
		// manifest is committed by then, so one retry suffices.
		man, ids, segs, err = g.load(ctx)
	}
	if err != nil {
		err = translateError(err)
		g.opts.logger.LogReload(ctx, 0, err)
		return err
	}
	g.swap(man, ids, segs)
	g.opts.logger.LogReload(ctx, man.ID, nil)
	return nil
}

// Close marks the handle closed. It does not delete any on-disk state;
// physical removal of a location is a storage-lifecycle concern.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.man, g.ids, g.segs = nil, nil, nil
	return g.lk.Release()
}

// snapshot returns the published state for read-only use.
func (g *Graph) snapshot() (*idmap.Map, *segment.Store, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, nil, ErrClosed
	}
	return g.ids, g.segs, nil
}
