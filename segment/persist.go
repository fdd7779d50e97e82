package segment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xmonader/eden/core"
)

// ErrCorrupt signals a malformed or out-of-order segment log record.
var ErrCorrupt = errors.New("segment: corrupt log record")

// Each group persists to its own log. Records are appended in build
// order, so replaying reproduces the in-memory segment slice:
//
//	[u64 low][u64 high][u32 parent count][u64 parent]...

func appendSegment(buf []byte, seg Segment) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(seg.Low))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(seg.High))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(seg.Parents)))
	for _, p := range seg.Parents {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p))
	}
	return buf
}

// StagedFrame encodes the group's segments built since the last commit
// as one log frame payload. ok is false when nothing is staged.
func (s *Store) StagedFrame(g core.Group) (payload []byte, ok bool) {
	staged := s.groups[g][s.stagedFrom[g]:]
	if len(staged) == 0 {
		return nil, false
	}
	for _, seg := range staged {
		payload = appendSegment(payload, seg)
	}
	return payload, true
}

// ClearStaged marks the group's segments as committed.
func (s *Store) ClearStaged(g core.Group) {
	s.stagedFrom[g] = len(s.groups[g])
}

// SnapshotFrame encodes all of the group's segments as a single frame
// payload, used when the group's log is rewritten under a new
// generation.
func (s *Store) SnapshotFrame(g core.Group) []byte {
	var payload []byte
	for _, seg := range s.groups[g] {
		payload = appendSegment(payload, seg)
	}
	return payload
}

// ApplyFrame replays one committed frame payload. Segments must arrive
// in build order: contiguous, ascending, one group per record stream.
func (s *Store) ApplyFrame(payload []byte) error {
	for len(payload) > 0 {
		if len(payload) < 20 {
			return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(payload))
		}
		low := core.Id(binary.LittleEndian.Uint64(payload[0:8]))
		high := core.Id(binary.LittleEndian.Uint64(payload[8:16]))
		count := int(binary.LittleEndian.Uint32(payload[16:20]))
		payload = payload[20:]
		if len(payload) < count*8 {
			return fmt.Errorf("%w: parent list exceeds frame", ErrCorrupt)
		}
		var parents []core.Id
		if count > 0 {
			parents = make([]core.Id, count)
			for i := range parents {
				parents[i] = core.Id(binary.LittleEndian.Uint64(payload[i*8 : i*8+8]))
			}
		}
		payload = payload[count*8:]

		g := low.Group()
		if g > core.GroupVolatile || high < low || high.Group() != g {
			return fmt.Errorf("%w: bad range [%d..%d]", ErrCorrupt, uint64(low), uint64(high))
		}
		want := g.MinID()
		if covered, ok := s.Covered(g); ok {
			want = covered + 1
		}
		if low != want {
			return fmt.Errorf("%w: segment %s out of order (expected low %s)", ErrCorrupt, Segment{Low: low, High: high}, want)
		}

		s.groups[g] = append(s.groups[g], Segment{Low: low, High: high, Parents: parents})
		s.stagedFrom[g] = len(s.groups[g])
	}
	return nil
}
