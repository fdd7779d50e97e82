package blockio

import (
	"io"
	"os"

	"github.com/xmonader/eden/fs"
)

// Log is an append-only framed log file.
//
// A Log does not decide durability by itself: the caller commits the
// current Size into the manifest after Sync, and readers replay frames
// only up to that recorded length.
type Log struct {
	fsys  fs.FileSystem
	path  string
	codec Codec
	f     fs.File
	size  int64
}

// OpenLog opens (or creates) the log at path for appending.
//
// durable is the committed length from the manifest. Zero means the
// file is logically fresh: it is truncated and a new header is
// written. Otherwise appends resume at durable, overwriting any
// garbage a crashed commit may have left behind.
func OpenLog(fsys fs.FileSystem, path string, codec Codec, durable int64) (*Log, error) {
	flag := os.O_CREATE | os.O_RDWR
	if durable == 0 {
		flag |= os.O_TRUNC
	}
	f, err := fsys.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}

	l := &Log{fsys: fsys, path: path, codec: codec, f: f}
	if durable == 0 {
		n, err := WriteHeader(f, codec)
		if err != nil {
			f.Close()
			return nil, err
		}
		l.size = n
		return l, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	fileCodec, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.codec = fileCodec
	if _, err := f.Seek(durable, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	l.size = durable
	return l, nil
}

// Codec returns the codec the log file was written with.
func (l *Log) Codec() Codec { return l.codec }

// Size returns the current end offset, the durable-length candidate
// for the next manifest commit.
func (l *Log) Size() int64 { return l.size }

// Append appends one frame holding payload.
func (l *Log) Append(payload []byte) error {
	n, err := AppendFrame(l.f, l.codec, payload)
	if err != nil {
		return err
	}
	l.size += n
	return nil
}

// Sync flushes appended frames to stable storage.
func (l *Log) Sync() error { return l.f.Sync() }

// Replay invokes fn for every committed frame payload, stopping at the
// durable limit.
func (l *Log) Replay(limit int64, fn func(payload []byte) error) error {
	if err := ReadFrames(l.f, limit, fn); err != nil {
		return err
	}
	// Restore the append position.
	_, err := l.f.Seek(l.size, io.SeekStart)
	return err
}

// Close closes the underlying file.
func (l *Log) Close() error { return l.f.Close() }
