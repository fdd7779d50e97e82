package blockio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmonader/eden/fs"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		var buf bytes.Buffer
		n, err := WriteHeader(&buf, codec)
		require.NoError(t, err)
		assert.Equal(t, int64(HeaderSize), n)

		got, err := ReadHeader(&buf)
		require.NoError(t, err)
		assert.Equal(t, codec, got)
	}
}

func TestReadHeaderRejectsGarbage(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte("not a log file at all")))
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadHeader(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrTruncated)
}

func openTestLog(t *testing.T, codec Codec) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := OpenLog(fs.Default, path, codec, 0)
	require.NoError(t, err)
	return l, path
}

func TestLogAppendReplay(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			l, path := openTestLog(t, codec)

			payloads := [][]byte{
				[]byte("first frame"),
				bytes.Repeat([]byte("abcdefgh"), 1024), // compressible
				{0x00},
			}
			for _, p := range payloads {
				require.NoError(t, l.Append(p))
			}
			require.NoError(t, l.Sync())
			durable := l.Size()
			require.NoError(t, l.Close())

			l2, err := OpenLog(fs.Default, path, codec, durable)
			require.NoError(t, err)
			defer l2.Close()

			var got [][]byte
			require.NoError(t, l2.Replay(durable, func(p []byte) error {
				got = append(got, bytes.Clone(p))
				return nil
			}))
			require.Len(t, got, len(payloads))
			for i := range payloads {
				assert.Equal(t, payloads[i], got[i])
			}
		})
	}
}

func TestLogIgnoresBytesBeyondDurableLimit(t *testing.T) {
	l, path := openTestLog(t, CodecZstd)
	require.NoError(t, l.Append([]byte("committed")))
	require.NoError(t, l.Sync())
	durable := l.Size()

	// Simulate a crashed commit: an extra frame past the durable point.
	require.NoError(t, l.Append([]byte("never committed")))
	require.NoError(t, l.Close())

	l2, err := OpenLog(fs.Default, path, CodecZstd, durable)
	require.NoError(t, err)
	defer l2.Close()

	var count int
	require.NoError(t, l2.Replay(durable, func(p []byte) error {
		count++
		assert.Equal(t, []byte("committed"), p)
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestReplayDetectsCorruption(t *testing.T) {
	l, path := openTestLog(t, CodecNone)
	require.NoError(t, l.Append([]byte("some payload to corrupt")))
	require.NoError(t, l.Sync())
	durable := l.Size()
	require.NoError(t, l.Close())

	// Flip a byte inside the frame payload.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	l2, err := OpenLog(fs.Default, path, CodecNone, durable)
	require.NoError(t, err)
	defer l2.Close()

	err = l2.Replay(durable, func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestOpenLogResumesAtDurableLength(t *testing.T) {
	l, path := openTestLog(t, CodecLZ4)
	require.NoError(t, l.Append([]byte("one")))
	durable := l.Size()
	require.NoError(t, l.Append([]byte("garbage from a crash")))
	require.NoError(t, l.Close())

	l2, err := OpenLog(fs.Default, path, CodecLZ4, durable)
	require.NoError(t, err)
	require.NoError(t, l2.Append([]byte("two")))
	require.NoError(t, l2.Sync())
	durable2 := l2.Size()
	require.NoError(t, l2.Close())

	l3, err := OpenLog(fs.Default, path, CodecLZ4, durable2)
	require.NoError(t, err)
	defer l3.Close()

	var got [][]byte
	require.NoError(t, l3.Replay(durable2, func(p []byte) error {
		got = append(got, bytes.Clone(p))
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, []byte("one"), got[0])
	assert.Equal(t, []byte("two"), got[1])
}
