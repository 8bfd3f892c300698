package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/logger"
	"github.com/kartikbazzad/ustorekv/internal/memory"
)

// MaxCollectionNameLen bounds a named collection's name, matching the
// teacher's own collection-registry limit.
const MaxCollectionNameLen = 64

// lockFileName is the advisory lock file that enforces spec.md §4.3's
// "if a directory is configured and another process has it open,
// fails with InUse".
const lockFileName = ".ustorekv.lock"

// memSlot is the Caps accounting key a Database registers itself
// under. Caps supports a dbID-keyed map because the teacher ran one
// Caps instance shared across every open database; here each Database
// owns its own private Caps, so there is only ever one slot to track.
const memSlot uint64 = 0

// arenaMaxBytes bounds the scratch allocator backing Read's output
// buffers. Separate from the Caps write-content budget: one tracks
// durable payload bytes across the database's lifetime, the other
// bounds a single batch's transient scratch memory.
const arenaMaxBytes = 256 * 1024 * 1024

// dbMemoryLimitMB is the per-database share of global memory capacity
// a Database registers with its Caps on Open.
const dbMemoryLimitMB = 256

// Config is the core's configuration surface. spec.md §4.3 describes
// the input as "an opaque textual blob; only the optional directory
// field is consumed by the core" — everything else in the blob is
// ignored by the engine itself (the server layer around it may parse
// richer fields from the same blob via viper, see SPEC_FULL.md §3).
type Config struct {
	Directory string `json:"directory"`
}

// ParseConfig decodes the opaque configuration blob, consuming only
// the directory field.
func ParseConfig(blob []byte) (Config, error) {
	if len(blob) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: malformed config: %v", kverrors.ErrInvalidArgument, err)
	}
	return cfg, nil
}

// Database is the top-level handle: main + named collections, the
// monotonic generation counter, a single reader/writer lock, and an
// optional persistence root directory.
type Database struct {
	mu sync.RWMutex

	youngestGeneration atomic.Uint64

	main       *Collection
	named      map[string]*Collection
	nameToID   map[string]CollectionID
	idToName   map[CollectionID]string
	nextColID  atomic.Uint64
	directory  string
	lockFile   *os.File
	closed     bool
	snapshots  *SnapshotManager
	logger     *logger.Logger
	memory     *memory.Caps
	bufferPool *memory.BufferPool
	arena      *memory.Arena

	retry      *kverrors.RetryController
	classifier *kverrors.Classifier
	errTracker *kverrors.ErrorTracker
}

// Open creates or attaches a database per spec.md §4.3. If a directory
// is configured and exists, every collection file in it is loaded; if
// another process already holds the directory's lock file, Open fails
// with ErrInUse.
func Open(cfg Config) (*Database, error) {
	bufferPool := memory.NewBufferPool(nil)
	db := &Database{
		main:       newCollection(""),
		named:      make(map[string]*Collection),
		nameToID:   make(map[string]CollectionID),
		idToName:   make(map[CollectionID]string),
		directory:  cfg.Directory,
		logger:     logger.Default(),
		memory:     memory.NewCaps(1024, dbMemoryLimitMB),
		bufferPool: bufferPool,
		arena:      memory.NewArena(bufferPool, arenaMaxBytes),
		retry:      kverrors.NewRetryController(),
		classifier: kverrors.NewClassifier(),
		errTracker: kverrors.NewErrorTracker(),
	}
	db.nextColID.Store(1)
	db.snapshots = newSnapshotManager(db)
	db.memory.RegisterDB(memSlot, dbMemoryLimitMB)

	if db.directory == "" {
		return db, nil
	}

	if err := os.MkdirAll(db.directory, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", kverrors.ErrFileOpen, err)
	}

	lockPath := filepath.Join(db.directory, lockFileName)
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, kverrors.ErrInUse
		}
		return nil, fmt.Errorf("%w: %v", kverrors.ErrFileOpen, err)
	}
	db.lockFile = lf

	maxGen, err := db.loadDirectory()
	if err != nil {
		lf.Close()
		os.Remove(lockPath)
		return nil, err
	}
	db.youngestGeneration.Store(maxGen)

	return db, nil
}

// nextGeneration atomically issues a fresh generation, per spec.md
// §4.3's "Generation issuance".
func (db *Database) nextGeneration() uint64 {
	return db.youngestGeneration.Add(1)
}

// YoungestGeneration returns the atomic counter without acquiring the
// database lock, per spec.md §5 ("can be inspected without the
// database lock").
func (db *Database) YoungestGeneration() uint64 {
	return db.youngestGeneration.Load()
}

func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name must not be empty", kverrors.ErrInvalidArgument)
	}
	if len(name) > MaxCollectionNameLen {
		return fmt.Errorf("%w: collection name exceeds %d bytes", kverrors.ErrInvalidArgument, MaxCollectionNameLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: collection name is not valid UTF-8", kverrors.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, "/.\x00") {
		return fmt.Errorf("%w: collection name contains a forbidden character", kverrors.ErrInvalidArgument)
	}
	return nil
}

// ListCollections returns the ids and names of every named collection
// (main is omitted), under the shared lock. snap is an optional
// point-in-time qualifier per spec.md §4.3 ("listing is itself a
// point-in-time query"): when non-nil, collections created after
// snap's generation are left out.
func (db *Database) ListCollections(snap *Snapshot) ([]CollectionID, []string) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if snap != nil {
		return db.listCollectionsLocked(snap.snapGen, true)
	}
	return db.listCollectionsLocked(0, false)
}

// listCollectionsLocked is the shared filtering body for
// ListCollections and Transaction.ListCollections. Caller must hold
// db.mu (shared or exclusive).
func (db *Database) listCollectionsLocked(maxGen uint64, filtered bool) ([]CollectionID, []string) {
	ids := make([]CollectionID, 0, len(db.named))
	names := make([]string, 0, len(db.named))
	for name, id := range db.nameToID {
		if filtered && db.named[name].createdGen > maxGen {
			continue
		}
		ids = append(ids, id)
		names = append(names, name)
	}
	return ids, names
}

// CreateCollection creates a named collection under the exclusive
// lock. configBlob, when present, must be a JSON object; an
// "expected_count" field is accepted but does not change how the
// collection is allocated, and the blob is never persisted
// (SPEC_FULL.md §6).
func (db *Database) CreateCollection(name string, configBlob []byte) (CollectionID, error) {
	if err := validateCollectionName(name); err != nil {
		return 0, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.nameToID[name]; exists {
		return 0, fmt.Errorf("%w: collection %q", kverrors.ErrAlreadyExists, name)
	}

	if len(configBlob) > 0 {
		var hint struct {
			ExpectedCount int `json:"expected_count"`
		}
		if err := json.Unmarshal(configBlob, &hint); err != nil {
			return 0, fmt.Errorf("%w: malformed collection config: %v", kverrors.ErrInvalidArgument, err)
		}
		// expected_count is parsed for validity only; every collection
		// is built with btreeDegree and the value is never persisted.
	}

	id := CollectionID(db.nextColID.Add(1) - 1)
	col := newCollection(name)
	col.createdGen = db.nextGeneration()
	db.named[name] = col
	db.nameToID[name] = id
	db.idToName[id] = name
	return id, nil
}

// DropCollection implements spec.md §4.2/§4.3's three drop modes.
// DropCollectionHandle on the main collection fails with
// ErrInvalidArgument.
func (db *Database) DropCollection(id CollectionID, mode DropMode) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if id == DefaultCollectionID {
		switch mode {
		case DropValuesOnly:
			db.main.clearValues(db.nextGeneration())
			return nil
		case DropKeysAndValues:
			db.main.clearAll()
			return nil
		case DropCollectionHandle:
			return fmt.Errorf("%w: cannot drop the main collection by handle", kverrors.ErrInvalidArgument)
		}
	}

	name, ok := db.idToName[id]
	if !ok {
		return fmt.Errorf("%w: collection id %d", kverrors.ErrNotFound, id)
	}
	col := db.named[name]

	switch mode {
	case DropValuesOnly:
		col.clearValues(db.nextGeneration())
	case DropKeysAndValues:
		col.clearAll()
	case DropCollectionHandle:
		delete(db.named, name)
		delete(db.nameToID, name)
		delete(db.idToName, id)
	}
	return nil
}

// collectionLocked returns the collection for id; caller must hold
// db.mu (shared or exclusive).
func (db *Database) collectionLocked(id CollectionID) (*Collection, bool) {
	if id == DefaultCollectionID {
		return db.main, true
	}
	name, ok := db.idToName[id]
	if !ok {
		return nil, false
	}
	col, ok := db.named[name]
	return col, ok
}

// Stats is returned by Control("info") and Control("usage"), trimmed
// from the teacher's multi-database types.Stats to this single-handle
// engine's scope.
type Stats struct {
	Collections        int    `json:"collections"`
	YoungestGeneration uint64 `json:"youngest_generation"`
	MemoryUsed         uint64 `json:"memory_used_bytes"`
	MemoryCapacity     uint64 `json:"memory_capacity_bytes"`
	DatabaseUsed       uint64 `json:"database_used_bytes"`
	DatabaseLimit      uint64 `json:"database_limit_bytes"`
}

// Control implements spec.md §4.3's free-form diagnostic channel.
func (db *Database) Control(request string, arg []byte) ([]byte, error) {
	switch request {
	case "clear":
		db.mu.Lock()
		gen := db.nextGeneration()
		db.main.clearValues(gen)
		for _, col := range db.named {
			col.clearValues(gen)
		}
		db.mu.Unlock()
		return nil, nil
	case "reset":
		db.mu.Lock()
		db.main.clearAll()
		db.named = make(map[string]*Collection)
		db.nameToID = make(map[string]CollectionID)
		db.idToName = make(map[CollectionID]string)
		db.mu.Unlock()
		return nil, nil
	case "compact":
		// A documented no-op: spec.md §3 requires tombstones be
		// retained indefinitely for MVCC conflict detection, so there
		// is nothing this engine can safely compact away.
		return nil, nil
	case "info", "usage":
		db.mu.RLock()
		stats := Stats{
			Collections:        len(db.named) + 1,
			YoungestGeneration: db.youngestGeneration.Load(),
			MemoryUsed:         db.memory.GlobalUsage(),
			MemoryCapacity:     db.memory.GlobalCapacity(),
			DatabaseUsed:       db.memory.DBUsage(memSlot),
			DatabaseLimit:      db.memory.DBLimit(memSlot),
		}
		db.mu.RUnlock()
		return json.Marshal(stats)
	default:
		return nil, fmt.Errorf("%w: control command %q", kverrors.ErrNotImplemented, request)
	}
}

// Close releases every snapshot, persists every collection (if a
// directory is configured) and releases the directory lock. Writing is
// not atomic across Close, per spec.md §4.7.
func (db *Database) Close() error {
	db.snapshots.DropAll()
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	db.arena.Release()
	db.memory.UnregisterDB(memSlot)

	if db.directory != "" {
		if err := db.persistAllLocked(); err != nil {
			return err
		}
		if db.lockFile != nil {
			db.lockFile.Close()
			os.Remove(filepath.Join(db.directory, lockFileName))
		}
	}
	return nil
}

// Begin starts a new transaction stamped with a freshly issued
// generation, one past the youngest generation at the time of the call.
func (db *Database) Begin() *Transaction {
	return newTransaction(db, nil)
}

// BeginAt starts a new transaction backed by a snapshot, per spec.md
// §4.5's "Snapshot-backed transactions".
func (db *Database) BeginAt(snap *Snapshot) *Transaction {
	return newTransaction(db, snap)
}

// Snapshots returns the database's SnapshotManager.
func (db *Database) Snapshots() *SnapshotManager { return db.snapshots }
