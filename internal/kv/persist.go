package kv

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

// fileSuffix and mainFileName implement spec.md §4.7's "the main
// collection uses a reserved filename distinct from any name a named
// collection could take": named collections may never contain a "."
// (validateCollectionName rejects it), so a filename containing one
// beyond the mandatory suffix can never collide with a real collection
// file.
const (
	fileSuffix   = ".kv"
	mainFileName = ".main.kv"
)

func collectionFileName(name string) string {
	if name == "" {
		return mainFileName
	}
	return name + fileSuffix
}

// loadDirectory loads every *.kv file in db.directory, per spec.md
// §4.7: the reserved main file becomes the main collection, every
// other file becomes a named collection named after its filename
// minus the suffix. Returns the highest generation assigned to any
// loaded record so Open can seed youngest_generation correctly.
func (db *Database) loadDirectory() (uint64, error) {
	entries, err := os.ReadDir(db.directory)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", kverrors.ErrFileOpen, err)
	}

	const loadedGeneration = 1
	var maxGen uint64

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(db.directory, entry.Name())

		if entry.Name() == mainFileName {
			if err := db.retryLoad(path, db.main, loadedGeneration); err != nil {
				return 0, err
			}
			maxGen = loadedGeneration
			continue
		}

		name := strings.TrimSuffix(entry.Name(), fileSuffix)
		if err := validateCollectionName(name); err != nil {
			// A file that cannot be a valid collection name (e.g. it
			// contains a dot) is not one of ours; skip it rather than
			// fail the whole open.
			continue
		}
		col := newCollection(name)
		if err := db.retryLoad(path, col, loadedGeneration); err != nil {
			return 0, err
		}
		id := CollectionID(db.nextColID.Add(1) - 1)
		db.named[name] = col
		db.nameToID[name] = id
		db.idToName[id] = name
		maxGen = loadedGeneration
	}

	return maxGen, nil
}

// retryLoad wraps loadCollectionFile in db.retry so a flaky open/read
// on the collection's file (spec.md §4.7's persistence I/O, not any
// in-memory engine path) gets a few backed-off attempts before Open
// gives up, per classifier.go's file-error classification. The error
// that ends the retry loop (not each failed attempt) is recorded on
// db.errTracker; Control does not report the tracker's contents.
func (db *Database) retryLoad(path string, col *Collection, generation uint64) error {
	err := db.retry.Retry(func() error {
		return loadCollectionFile(path, col, generation)
	}, db.classifier)
	if err != nil {
		db.errTracker.RecordError(err, db.classifier.Classify(err))
	}
	return err
}

// loadCollectionFile decodes spec.md §6's persisted layout:
// u32 live_count, then N x (i64 key, u32 len, payload bytes).
func loadCollectionFile(path string, col *Collection, generation uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", kverrors.ErrFileOpen, err)
	}
	defer f.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%w: truncated header in %s", kverrors.ErrCorruption, path)
	}
	count := binary.LittleEndian.Uint32(header)

	entryHeader := make([]byte, 8+4)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(f, entryHeader); err != nil {
			return fmt.Errorf("%w: truncated entry header in %s", kverrors.ErrCorruption, path)
		}
		key := Key(int64(binary.LittleEndian.Uint64(entryHeader[0:8])))
		length := binary.LittleEndian.Uint32(entryHeader[8:12])

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			return fmt.Errorf("%w: truncated payload in %s", kverrors.ErrCorruption, path)
		}
		col.upsert(key, payload, generation)
	}
	return nil
}

// persistAllLocked writes every collection to its own file. Caller
// must hold db.mu exclusively. Per spec.md §4.7, writing is not atomic
// across Close: each file is truncated and rewritten directly.
func (db *Database) persistAllLocked() error {
	if err := db.retryPersist("", db.main); err != nil {
		return err
	}
	for name, col := range db.named {
		if err := db.retryPersist(name, col); err != nil {
			return err
		}
	}
	return nil
}

// retryPersist wraps persistCollection in db.retry the same way
// retryLoad wraps the read path, so a transient file-open or sync
// failure (classified ErrorTransient by classifier.go) retries with
// backoff instead of failing Close/Commit outright.
func (db *Database) retryPersist(name string, col *Collection) error {
	err := db.retry.Retry(func() error {
		return persistCollection(db.directory, name, col)
	}, db.classifier)
	if err != nil {
		db.errTracker.RecordError(err, db.classifier.Classify(err))
	}
	return err
}

func persistCollection(dir, name string, col *Collection) error {
	path := filepath.Join(dir, collectionFileName(name))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", kverrors.ErrFileOpen, err)
	}
	defer f.Close()

	var liveCount uint32
	col.tree.Ascend(func(r *record) bool {
		if !r.tombstone {
			liveCount++
		}
		return true
	})

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, liveCount)
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("%w: %v", kverrors.ErrFileWrite, err)
	}

	entryHeader := make([]byte, 8+4)
	var writeErr error
	col.tree.Ascend(func(r *record) bool {
		if r.tombstone {
			return true
		}
		binary.LittleEndian.PutUint64(entryHeader[0:8], uint64(int64(r.key)))
		binary.LittleEndian.PutUint32(entryHeader[8:12], uint32(len(r.payload)))
		if _, err := f.Write(entryHeader); err != nil {
			writeErr = fmt.Errorf("%w: %v", kverrors.ErrFileWrite, err)
			return false
		}
		if _, err := f.Write(r.payload); err != nil {
			writeErr = fmt.Errorf("%w: %v", kverrors.ErrFileWrite, err)
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", kverrors.ErrFileSync, err)
	}
	return nil
}
