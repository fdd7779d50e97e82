// Package manifest tracks the committed state of a graph index
// location: which log generations are current and how many bytes of
// each are durable.
//
// Commits are published by atomically swapping the CURRENT pointer to
// a freshly written MANIFEST file. Readers that load the manifest see
// the identifier map and the segment store together at a single commit
// point, never a mix of two commits.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xmonader/eden/core"
	"github.com/xmonader/eden/fs"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	CurrentVersion   = 1
)

// LogState describes one committed log file.
type LogState struct {
	Gen uint64 `json:"gen"` // file generation, bumped on rewrite
	Len int64  `json:"len"` // durable byte length, 0 = file absent
}

// GroupState describes the committed state of one id group.
type GroupState struct {
	Segments LogState `json:"segments"`
	NextFree uint64   `json:"next_free"` // smallest unassigned id (absolute)
}

// Manifest is the single commit point for a graph index location.
type Manifest struct {
	Version int    `json:"version"`
	ID      uint64 `json:"id"`
	Codec   uint8  `json:"codec"`

	IDMap    LogState   `json:"idmap"`
	Stable   GroupState `json:"stable"`
	Volatile GroupState `json:"volatile"`

	// NeedRebuildVolatile records that stable assignment absorbed
	// vertexes that previously only had volatile ids, so the volatile
	// group must be discarded and rebuilt by the next build. Persisted
	// so a crash between builds cannot lose a pending rebuild.
	NeedRebuildVolatile bool `json:"need_rebuild_volatile"`
}

// Group returns the state of the given group.
func (m *Manifest) Group(g core.Group) *GroupState {
	if g == core.GroupStable {
		return &m.Stable
	}
	return &m.Volatile
}

// IDMapFileName returns the file name of an idmap log generation.
func IDMapFileName(gen uint64) string {
	return fmt.Sprintf("idmap-%06d.log", gen)
}

// SegFileName returns the file name of a segment log generation.
func SegFileName(g core.Group, gen uint64) string {
	return fmt.Sprintf("segs-%s-%06d.log", g, gen)
}

// Store manages the manifest file and atomic updates.
type Store struct {
	fs  fs.FileSystem
	dir string
	mu  sync.Mutex
}

// NewStore creates a new manifest store for dir.
func NewStore(fsys fs.FileSystem, dir string) *Store {
	return &Store{fs: fsys, dir: dir}
}

// Load loads the current manifest. A location that has never been
// committed yields an empty manifest with zeroed watermarks.
func (s *Store) Load() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := fs.ReadFile(s.fs, filepath.Join(s.dir, CurrentFileName))
	if os.IsNotExist(err) {
		return &Manifest{
			Version:  CurrentVersion,
			Stable:   GroupState{NextFree: uint64(core.GroupStable.MinID())},
			Volatile: GroupState{NextFree: uint64(core.GroupVolatile.MinID())},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(s.fs, filepath.Join(s.dir, strings.TrimSpace(string(content))))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("manifest: unsupported version %d (expected %d)", m.Version, CurrentVersion)
	}
	return &m, nil
}

// Save atomically commits a new manifest.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++

	filename := fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := s.writeAtomic(filename, data); err != nil {
		return err
	}
	return s.writeAtomic(CurrentFileName, []byte(filename))
}

// writeAtomic writes name via a tmp file, fsync, rename, dir sync.
func (s *Store) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"

	f, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		s.fs.Remove(tmpPath)
		return err
	}
	return fs.SyncDir(s.fs, s.dir)
}

// GC removes files no longer referenced by the committed manifest:
// superseded manifest generations and log files from discarded
// generations. Failures are ignored; stale files are harmless.
func (s *Store) GC(m *Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := map[string]bool{
		CurrentFileName:                                  true,
		fmt.Sprintf("%s-%06d.json", ManifestFileName, m.ID): true,
		IDMapFileName(m.IDMap.Gen):                          true,
		SegFileName(core.GroupStable, m.Stable.Segments.Gen):     true,
		SegFileName(core.GroupVolatile, m.Volatile.Segments.Gen): true,
	}

	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if live[name] {
			continue
		}
		collectable := strings.HasPrefix(name, ManifestFileName+"-") ||
			strings.HasPrefix(name, "idmap-") ||
			strings.HasPrefix(name, "segs-")
		if collectable {
			s.fs.Remove(filepath.Join(s.dir, name))
		}
	}
}
