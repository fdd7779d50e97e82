package idmap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xmonader/eden/core"
)

// ErrCorrupt signals a malformed or out-of-order idmap log record.
var ErrCorrupt = errors.New("idmap: corrupt log record")

// Log records are appended in assignment order, so replaying them
// reproduces exactly the dense per-group numbering:
//
//	[u64 id][u16 vertex length][vertex bytes]

func appendRecord(buf []byte, r record) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.id))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.vertex)))
	return append(buf, r.vertex...)
}

// StagedFrame encodes all assignments staged since the last commit as
// one log frame payload. ok is false when nothing is staged.
func (m *Map) StagedFrame() (payload []byte, ok bool) {
	if len(m.staged) == 0 {
		return nil, false
	}
	for _, r := range m.staged {
		payload = appendRecord(payload, r)
	}
	return payload, true
}

// ClearStaged forgets staged assignments once they are committed.
func (m *Map) ClearStaged() { m.staged = nil }

// SnapshotFrame encodes the entire map as a single frame payload, used
// when the log is rewritten under a new generation after a volatile
// purge.
func (m *Map) SnapshotFrame() []byte {
	var payload []byte
	for _, g := range core.Groups {
		for off, v := range m.byGroup[g] {
			payload = appendRecord(payload, record{id: g.MinID() + core.Id(off), vertex: v})
		}
	}
	return payload
}

// ApplyFrame replays one committed frame payload into the map.
// Records must arrive in assignment order: each id has to be the next
// free id of its group, anything else is corruption.
func (m *Map) ApplyFrame(payload []byte) error {
	for len(payload) > 0 {
		if len(payload) < 10 {
			return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(payload))
		}
		id := core.Id(binary.LittleEndian.Uint64(payload[0:8]))
		vlen := int(binary.LittleEndian.Uint16(payload[8:10]))
		payload = payload[10:]
		if len(payload) < vlen {
			return fmt.Errorf("%w: vertex length %d exceeds frame", ErrCorrupt, vlen)
		}
		vertex := payload[:vlen]
		payload = payload[vlen:]

		g := id.Group()
		if g > core.GroupVolatile {
			return fmt.Errorf("%w: id %d in unknown group", ErrCorrupt, uint64(id))
		}
		if want := m.NextFreeID(g); id != want {
			return fmt.Errorf("%w: id %s out of order (expected %s)", ErrCorrupt, id, want)
		}

		stored := append([]byte(nil), vertex...)
		m.byGroup[g] = append(m.byGroup[g], stored)
		if old, ok := m.ids[string(stored)]; !ok || g < old.Group() {
			m.ids[string(stored)] = id
		}
	}
	return nil
}
