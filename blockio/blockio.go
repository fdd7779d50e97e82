// Package blockio implements the framed on-disk log format shared by
// the identifier map and the segment store.
//
// A log file starts with a fixed header (magic, format version, codec)
// followed by frames. Each frame carries one compressed, checksummed
// batch of records appended by a single commit:
//
//	[u32 stored length][u32 raw length][u32 CRC32][u8 encoding][bytes]
//
// Readers never trust the file size: they stop at the durable length
// recorded in the manifest, so bytes appended by a crashed commit are
// ignored. A checksum mismatch below the durable length is corruption.
package blockio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/xmonader/eden/fs"
)

// Codec selects the per-frame compression algorithm.
type Codec uint8

const (
	// CodecNone stores frames uncompressed.
	CodecNone Codec = 0
	// CodecZstd compresses frames with zstandard (default).
	CodecZstd Codec = 1
	// CodecLZ4 compresses frames with lz4 blocks.
	CodecLZ4 Codec = 2
)

func (c Codec) valid() bool {
	return c == CodecNone || c == CodecZstd || c == CodecLZ4
}

// String implements fmt.Stringer.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

const (
	// HeaderSize is the fixed length of the file header.
	HeaderSize = 16

	frameHeaderSize = 13

	formatVersion = uint16(1)

	encRaw        = byte(0)
	encCompressed = byte(1)
)

var magic = [4]byte{'E', 'D', 'G', '0'}

var (
	ErrBadMagic   = errors.New("blockio: bad magic")
	ErrBadVersion = errors.New("blockio: unsupported format version")
	ErrBadCodec   = errors.New("blockio: unknown codec")
	ErrChecksum   = errors.New("blockio: frame checksum mismatch")
	ErrTruncated  = errors.New("blockio: truncated frame")
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// WriteHeader writes the file header for an empty log file.
func WriteHeader(w io.Writer, codec Codec) (int64, error) {
	if !codec.valid() {
		return 0, fmt.Errorf("%w: %d", ErrBadCodec, codec)
	}
	var buf [HeaderSize]byte
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	buf[6] = byte(codec)
	if _, err := w.Write(buf[:]); err != nil {
		return 0, err
	}
	return HeaderSize, nil
}

// ReadHeader validates the file header and returns the codec the file
// was written with.
func ReadHeader(r io.Reader) (Codec, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, fmt.Errorf("%w: short header", ErrTruncated)
		}
		return 0, err
	}
	if [4]byte(buf[0:4]) != magic {
		return 0, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != formatVersion {
		return 0, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	codec := Codec(buf[6])
	if !codec.valid() {
		return 0, fmt.Errorf("%w: %d", ErrBadCodec, codec)
	}
	return codec, nil
}

// AppendFrame compresses payload with the codec and appends one frame
// to w. It returns the number of bytes written.
func AppendFrame(w io.Writer, codec Codec, payload []byte) (int64, error) {
	enc := encRaw
	stored := payload

	switch codec {
	case CodecZstd:
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) < len(payload) {
			stored = compressed
			enc = encCompressed
		}
	case CodecLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return 0, err
		}
		if n > 0 && n < len(payload) {
			stored = dst[:n]
			enc = encCompressed
		}
	}

	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(stored)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[8:12], crc32.ChecksumIEEE(stored))
	hdr[12] = enc

	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(stored); err != nil {
		return 0, err
	}
	return int64(frameHeaderSize + len(stored)), nil
}

// ReadFrames reads frames starting right after the header and stops at
// the durable limit (absolute file offset). fn is invoked with each
// decompressed payload; the slice is only valid during the call.
func ReadFrames(f fs.File, limit int64, fn func(payload []byte) error) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	codec, err := ReadHeader(f)
	if err != nil {
		return err
	}

	offset := int64(HeaderSize)
	var hdr [frameHeaderSize]byte
	for offset < limit {
		if limit-offset < frameHeaderSize {
			return fmt.Errorf("%w: %d bytes at offset %d", ErrTruncated, limit-offset, offset)
		}
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		storedLen := binary.LittleEndian.Uint32(hdr[0:4])
		rawLen := binary.LittleEndian.Uint32(hdr[4:8])
		sum := binary.LittleEndian.Uint32(hdr[8:12])
		enc := hdr[12]

		offset += frameHeaderSize
		if offset+int64(storedLen) > limit {
			return fmt.Errorf("%w: frame of %d bytes at offset %d", ErrTruncated, storedLen, offset)
		}

		stored := make([]byte, storedLen)
		if _, err := io.ReadFull(f, stored); err != nil {
			return fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		offset += int64(storedLen)

		if crc32.ChecksumIEEE(stored) != sum {
			return ErrChecksum
		}

		payload := stored
		if enc == encCompressed {
			payload, err = decompress(codec, stored, int(rawLen))
			if err != nil {
				return err
			}
		}
		if len(payload) != int(rawLen) {
			return fmt.Errorf("%w: raw length %d, expected %d", ErrChecksum, len(payload), rawLen)
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	return nil
}

func decompress(codec Codec, stored []byte, rawLen int) ([]byte, error) {
	switch codec {
	case CodecZstd:
		return zstdDecoder.DecodeAll(stored, nil)
	case CodecLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("%w: compressed frame in %s log", ErrBadCodec, codec)
	}
}
