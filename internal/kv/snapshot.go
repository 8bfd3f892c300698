package kv

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

// Snapshot is an immutable view of the database pinned at snap_gen,
// per spec.md §3 and §4.6.
type Snapshot struct {
	id      uint64
	db      *Database
	snapGen uint64
}

// ID returns the snapshot's identifier.
func (s *Snapshot) ID() uint64 { return s.id }

// find returns the record visible through the snapshot at
// (collection, key): the newest version with creation_generation <=
// snap_gen, walking past any later overwrite/tombstone that the
// snapshot predates, per spec.md §4.6.
func (s *Snapshot) find(col *Collection, key Key) (*record, bool) {
	rec, found := col.find(key)
	if !found {
		return nil, false
	}
	for rec != nil && rec.generation > s.snapGen {
		rec = rec.prev
	}
	if rec == nil || !isVisible(rec.generation, rec.tombstone, s.snapGen) {
		return nil, false
	}
	return rec, true
}

// SnapshotManager creates, enumerates, and releases snapshots for one
// Database.
type SnapshotManager struct {
	mu        sync.Mutex
	db        *Database
	nextID    atomic.Uint64
	snapshots map[uint64]*Snapshot
}

func newSnapshotManager(db *Database) *SnapshotManager {
	m := &SnapshotManager{db: db, snapshots: make(map[uint64]*Snapshot)}
	m.nextID.Store(1)
	return m
}

// Create pins the database's current youngest_generation as the new
// snapshot's snap_gen.
func (m *SnapshotManager) Create() *Snapshot {
	gen := m.db.YoungestGeneration()
	snap := &Snapshot{id: m.nextID.Add(1) - 1, db: m.db, snapGen: gen}

	m.mu.Lock()
	m.snapshots[snap.id] = snap
	m.mu.Unlock()
	return snap
}

// List returns every live snapshot id.
func (m *SnapshotManager) List() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint64, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	return ids
}

// Get returns the snapshot for id.
func (m *SnapshotManager) Get(id uint64) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[id]
	return s, ok
}

// Drop releases a snapshot by id and prunes any version history that
// no remaining live snapshot can still need.
func (m *SnapshotManager) Drop(id uint64) error {
	m.mu.Lock()
	if _, ok := m.snapshots[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: snapshot %d", kverrors.ErrNotFound, id)
	}
	delete(m.snapshots, id)
	hasLive, minGen := m.minLiveGenLocked()
	m.mu.Unlock()

	m.prune(minGen, hasLive)
	return nil
}

// DropAll releases every snapshot and drops all retained version
// history; called when the database closes.
func (m *SnapshotManager) DropAll() {
	m.mu.Lock()
	m.snapshots = make(map[uint64]*Snapshot)
	m.mu.Unlock()

	m.prune(0, false)
}

// minLiveGenLocked returns the oldest snap_gen among live snapshots.
// Caller must hold m.mu.
func (m *SnapshotManager) minLiveGenLocked() (hasLive bool, minGen uint64) {
	for _, s := range m.snapshots {
		if !hasLive || s.snapGen < minGen {
			minGen = s.snapGen
			hasLive = true
		}
	}
	return hasLive, minGen
}

// prune trims every collection's version history to what a snapshot
// at minLiveGen or younger could still need.
func (m *SnapshotManager) prune(minLiveGen uint64, hasLive bool) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.main.prune(minLiveGen, hasLive)
	for _, col := range m.db.named {
		col.prune(minLiveGen, hasLive)
	}
}

// Export writes every record visible through the snapshot as a new
// database directory, reusing the persistence codec (spec.md §4.6).
// The target directory must be empty or nonexistent; partial output
// on failure is allowed with no rollback, per spec.md §9.
func (m *SnapshotManager) Export(snap *Snapshot, targetDir string) error {
	entries, err := os.ReadDir(targetDir)
	if err == nil && len(entries) > 0 {
		return fmt.Errorf("%w: export target %s is not empty", kverrors.ErrInvalidArgument, targetDir)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", kverrors.ErrFileOpen, err)
	}

	snap.db.mu.RLock()
	defer snap.db.mu.RUnlock()

	if err := exportCollection(targetDir, "", snap.db.main, snap); err != nil {
		return err
	}
	for name, col := range snap.db.named {
		if err := exportCollection(targetDir, name, col, snap); err != nil {
			return err
		}
	}
	return nil
}

func exportCollection(dir, name string, col *Collection, snap *Snapshot) error {
	view := newCollection(name)
	col.tree.Ascend(func(r *record) bool {
		if rec, ok := snap.find(col, r.key); ok {
			view.upsert(rec.key, rec.payload, rec.generation)
		}
		return true
	})
	return persistCollection(dir, name, view)
}
