package eden

import (
	"errors"
	"fmt"

	"github.com/xmonader/eden/blockio"
	"github.com/xmonader/eden/idmap"
	"github.com/xmonader/eden/lock"
	"github.com/xmonader/eden/model"
	"github.com/xmonader/eden/segment"
)

var (
	// ErrClosed is returned by operations on a closed Graph.
	ErrClosed = errors.New("graph is closed")

	// ErrLockContended is returned when another process holds the
	// coordinating lock. The condition is transient: a Build that
	// arrives after the holder satisfied the same frontier is a no-op,
	// so retrying is always safe.
	ErrLockContended = errors.New("coordinating lock is contended")

	// ErrCorrupted indicates the on-disk state failed validation
	// (bad magic, checksum mismatch, out-of-order records). It is not
	// auto-repaired.
	//
	// The underlying error can be accessed via errors.Unwrap.
	ErrCorrupted = errors.New("on-disk index state is corrupted")

	// ErrInconsistent indicates the identifier map and the caller's
	// parent resolver disagree about history. Fatal for the build that
	// observes it.
	ErrInconsistent = errors.New("index state is inconsistent")
)

// UnknownVertexError reports a query against a vertex that no build
// has indexed yet.
type UnknownVertexError struct {
	Vertex model.Vertex
}

func (e *UnknownVertexError) Error() string {
	return fmt.Sprintf("vertex %s is not indexed", e.Vertex)
}

// translateError maps sub-package failures onto the package-level
// taxonomy while preserving the cause chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, lock.ErrContended):
		return fmt.Errorf("%w: %w", ErrLockContended, err)

	case errors.Is(err, blockio.ErrBadMagic),
		errors.Is(err, blockio.ErrBadVersion),
		errors.Is(err, blockio.ErrBadCodec),
		errors.Is(err, blockio.ErrChecksum),
		errors.Is(err, blockio.ErrTruncated),
		errors.Is(err, idmap.ErrCorrupt),
		errors.Is(err, segment.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorrupted, err)

	case errors.Is(err, idmap.ErrInconsistent),
		errors.Is(err, segment.ErrUncovered):
		return fmt.Errorf("%w: %w", ErrInconsistent, err)
	}
	return err
}
