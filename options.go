package eden

import (
	"time"

	"github.com/xmonader/eden/blockio"
	"github.com/xmonader/eden/fs"
	"github.com/xmonader/eden/lock"
)

type options struct {
	fsys     fs.FileSystem
	codec    blockio.Codec
	logger   *Logger
	lockWait time.Duration
	lockPoll time.Duration
}

func defaultOptions() options {
	return options{
		fsys:     fs.Default,
		codec:    blockio.CodecZstd,
		logger:   NopLogger(),
		lockPoll: lock.DefaultPollInterval,
	}
}

// Option configures Open behavior.
type Option func(*options)

// WithLogger configures structured logging. By default all output is
// discarded.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NopLogger()
		}
		o.logger = l
	}
}

// WithFileSystem injects a filesystem implementation. Used by tests to
// exercise I/O failure paths; defaults to the local filesystem.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fsys = fsys
	}
}

// WithCodec selects the compression codec for newly written log
// generations. Existing files are always read with the codec recorded
// in their header. Defaults to zstd.
func WithCodec(c blockio.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithLockWait makes Build wait up to d for the coordinating lock
// instead of failing fast with ErrLockContended. Zero (the default)
// means fail fast; the caller's context still bounds the wait.
func WithLockWait(d time.Duration) Option {
	return func(o *options) {
		o.lockWait = d
	}
}

// WithLockPollInterval tunes how often a waiting Build re-attempts the
// lock.
func WithLockPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockPoll = d
		}
	}
}
