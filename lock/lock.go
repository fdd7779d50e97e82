// Package lock implements the coordinating lock that serializes
// writers of a graph index location across processes.
//
// The lock is the single source of truth for "who may mutate": the
// identifier map and the segment store carry no locking of their own
// and are only ever mutated while the lock is held. Readers never take
// it except briefly at open time to observe a consistent snapshot.
package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FileName is the lock file name inside an index location.
const FileName = "LOCK"

// ErrContended is returned when another process holds the lock. The
// condition is transient; callers may retry.
var ErrContended = errors.New("lock: held by another process")

// DefaultPollInterval is the default retry cadence for Acquire.
const DefaultPollInterval = 10 * time.Millisecond

// Lock is an advisory, per-location mutual exclusion handle. It is not
// safe for concurrent use by multiple goroutines; each writer owns its
// own Lock.
type Lock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// New returns an unacquired lock for the given index location.
func New(dir string) *Lock {
	return &Lock{path: filepath.Join(dir, FileName)}
}

// TryAcquire attempts to take the exclusive lock without blocking.
// It returns ErrContended when another process holds it.
func (l *Lock) TryAcquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return err
	}
	l.f = f
	return nil
}

// Acquire takes the exclusive lock, polling at pollInterval until the
// lock is obtained or ctx is done. A non-positive interval uses
// DefaultPollInterval.
func (l *Lock) Acquire(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	for {
		err := l.TryAcquire()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrContended) {
			return err
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
}

// Release drops the lock. It is idempotent and safe to defer on every
// exit path.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	unlockErr := funlock(f)
	closeErr := f.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
