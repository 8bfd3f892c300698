package kv

import (
	"fmt"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/memory"
)

// ReadResult is the output of a batched Read: a contiguous value tape
// plus Arrow-convention offsets, a parallel lengths array, and a
// presence flag per queried key, per spec.md §4.4.1.
type ReadResult struct {
	tape     []byte
	lengths  []uint32
	presence []bool
}

func newReadResult(n int) *ReadResult {
	return &ReadResult{lengths: make([]uint32, n), presence: make([]bool, n)}
}

// set records payload at logical index i. Each payload is first copied
// into a buffer allocated from arena, so a batch's output is bounded by
// the arena's maxBytes, and that copy is then appended to the result
// tape, which itself lives on the Go heap.
func (r *ReadResult) set(i int, payload []byte, present bool, arena *memory.Arena) error {
	r.lengths[i] = uint32(len(payload))
	r.presence[i] = present
	if len(payload) == 0 {
		return nil
	}
	buf, err := arena.Alloc(uint64(len(payload)))
	if err != nil {
		return err
	}
	copy(buf, payload)
	r.tape = append(r.tape, buf[:len(payload)]...)
	return nil
}

func (r *ReadResult) setMissing(i int) {
	r.lengths[i] = LengthMissing
	r.presence[i] = false
}

// Offsets returns the Arrow-convention offset array (N+1 entries).
func (r *ReadResult) Offsets() []uint32 { return offsets(r.presentLengths()) }

func (r *ReadResult) presentLengths() []uint32 {
	out := make([]uint32, len(r.lengths))
	for i, l := range r.lengths {
		if l == LengthMissing {
			out[i] = 0
		} else {
			out[i] = l
		}
	}
	return out
}

// Value returns the raw payload for logical index i and whether it
// was present.
func (r *ReadResult) Value(i int) ([]byte, bool) {
	if !r.presence[i] {
		return nil, false
	}
	offs := r.Offsets()
	return r.tape[offs[i]:offs[i+1]], true
}

// Length returns the length sentinel/value for logical index i.
func (r *ReadResult) Length(i int) uint32 { return r.lengths[i] }

// Presence returns the presence bit for logical index i.
func (r *ReadResult) Presence(i int) bool { return r.presence[i] }

// Read performs a head batched point lookup under the shared lock,
// per spec.md §4.4.1. opts.has(OptionDontDiscardMemory) keeps the
// database's arena outputs from a prior Read alive instead of
// releasing them at entry; OptionReadSharedMemory is logged as a
// no-op hint, per types.go's doc comment.
func (db *Database) Read(cols Strided[CollectionID], keys Strided[Key], snap *Snapshot, opts Options) (*ReadResult, error) {
	n := keys.Len()
	if keys.Stride == 0 {
		return nil, fmt.Errorf("%w: zero stride forbidden for keys", kverrors.ErrInvalidArgument)
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	db.arena.Reset(!opts.has(OptionDontDiscardMemory))
	if opts.has(OptionReadSharedMemory) {
		db.logger.Debug("read requested shared memory output; core treats this as a no-op hint")
	}

	res := newReadResult(n)
	for i := 0; i < n; i++ {
		col, ok := db.collectionLocked(cols.At(i))
		if !ok {
			res.setMissing(i)
			continue
		}
		key := keys.At(i)

		var rec *record
		var found bool
		if snap != nil {
			rec, found = snap.find(col, key)
		} else {
			r, f := col.find(key)
			if f && !r.tombstone {
				rec, found = r, true
			}
		}
		if !found {
			res.setMissing(i)
			continue
		}
		if err := res.set(i, rec.payload, true, db.arena); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Write performs a head batched upsert/delete under the exclusive
// lock, per spec.md §4.4.2: all keys in one batch share the same
// freshly assigned generation. Every upserted payload is checked
// against the database's Caps allocation before it lands, and every
// payload a write overwrites or tombstones is freed back to it. Only
// this head write path updates DBUsage: transaction commits, collection
// drops and clears, and records loaded at Open are not counted.
func (db *Database) Write(cols Strided[CollectionID], keys Strided[Key], contents Strided[[]byte], opts Options) error {
	n := keys.Len()
	if keys.Stride == 0 {
		return fmt.Errorf("%w: zero stride forbidden for keys", kverrors.ErrInvalidArgument)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var allocBytes, freedBytes uint64
	cols2 := make([]*Collection, n)
	for i := 0; i < n; i++ {
		col, ok := db.collectionLocked(cols.At(i))
		if !ok {
			return fmt.Errorf("%w: collection %d", kverrors.ErrNotFound, cols.At(i))
		}
		cols2[i] = col
		if existing, found := col.find(keys.At(i)); found && !existing.tombstone {
			freedBytes += uint64(len(existing.payload))
		}
		if content := contents.At(i); content != nil {
			allocBytes += uint64(len(content))
		}
	}

	if allocBytes > freedBytes {
		if !db.memory.CanAllocate(memSlot, allocBytes-freedBytes) {
			return kverrors.ErrOutOfMemory
		}
	}

	generation := db.nextGeneration()
	for i := 0; i < n; i++ {
		col := cols2[i]
		key := keys.At(i)
		content := contents.At(i)
		if content == nil {
			col.tombstone(key, generation)
			continue
		}
		col.upsert(key, content, generation)
	}

	if allocBytes > freedBytes {
		db.memory.TryAllocate(memSlot, allocBytes-freedBytes)
	} else if freedBytes > allocBytes {
		db.memory.Free(memSlot, freedBytes-allocBytes)
	}

	if opts.has(OptionWriteFlush) && db.directory != "" {
		return db.persistAllLocked()
	}
	return nil
}

// ScanTask describes one (collection, [start,end), limit) range.
type ScanTask struct {
	Collection CollectionID
	Start      Key
	End        Key // exclusive
	Limit      int
}

// ScanResult is the flattened per-task keys output with Arrow-form
// per-task offsets, per spec.md §4.4.3.
type ScanResult struct {
	Keys    []Key
	Offsets []uint32 // N+1 entries
}

// Scan performs a head batched range scan under the shared lock, per
// spec.md §4.4.3. When snap is non-nil, only snapshot-visible keys are
// emitted. opts.has(OptionScanBulk) is logged as a no-op hint, per
// types.go's doc comment.
func (db *Database) Scan(tasks []ScanTask, snap *Snapshot, opts Options) (*ScanResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if opts.has(OptionScanBulk) {
		db.logger.Debug("scan requested bulk ordering relaxation; core always returns ordered keys")
	}

	res := &ScanResult{Offsets: make([]uint32, len(tasks)+1)}
	for i, task := range tasks {
		col, ok := db.collectionLocked(task.Collection)
		if !ok {
			res.Offsets[i+1] = res.Offsets[i]
			continue
		}
		count := 0
		col.lowerBound(task.Start, func(r *record) bool {
			if r.key >= task.End || count >= task.Limit {
				return false
			}
			visible := !r.tombstone
			if snap != nil {
				_, visible = snap.find(col, r.key)
			}
			if visible {
				res.Keys = append(res.Keys, r.key)
				count++
			}
			return true
		})
		res.Offsets[i+1] = res.Offsets[i] + uint32(count)
	}
	return res, nil
}

// Scan performs a transactional range scan: a merge between the head
// stream and the transaction's upserts, per spec.md §4.4.3.
func (tx *Transaction) Scan(tasks []ScanTask) (*ScanResult, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	res := &ScanResult{Offsets: make([]uint32, len(tasks)+1)}
	for i, task := range tasks {
		col, ok := tx.db.collectionLocked(task.Collection)
		emitted := 0

		// Collect transactional upserts in range, sorted by key.
		var txKeys []Key
		for k := range tx.upserts {
			if k.collection == task.Collection && k.key >= task.Start && k.key < task.End {
				txKeys = append(txKeys, k.key)
			}
		}
		sortKeys(txKeys)
		txIdx := 0

		var headKeys []Key
		if ok {
			col.lowerBound(task.Start, func(r *record) bool {
				if r.key >= task.End {
					return false
				}
				headKeys = append(headKeys, r.key)
				return true
			})
		}

		headIdx := 0
		for emitted < task.Limit && (headIdx < len(headKeys) || txIdx < len(txKeys)) {
			var nextKey Key
			fromHead, fromTx := false, false

			switch {
			case headIdx >= len(headKeys):
				nextKey, fromTx = txKeys[txIdx], true
			case txIdx >= len(txKeys):
				nextKey, fromHead = headKeys[headIdx], true
			case headKeys[headIdx] < txKeys[txIdx]:
				nextKey, fromHead = headKeys[headIdx], true
			case txKeys[txIdx] < headKeys[headIdx]:
				nextKey, fromTx = txKeys[txIdx], true
			default:
				nextKey, fromTx = txKeys[txIdx], true
				fromHead = true
			}

			k := opKey{task.Collection, nextKey}
			_, removed := tx.removes[k]

			if fromTx {
				txIdx++
			}
			if fromHead {
				headIdx++
			}

			if removed {
				continue
			}
			if fromTx {
				res.Keys = append(res.Keys, nextKey)
				emitted++
				continue
			}
			// head-only: skip tombstones.
			r, found := col.find(nextKey)
			if found && r.tombstone {
				continue
			}
			res.Keys = append(res.Keys, nextKey)
			emitted++
		}
		res.Offsets[i+1] = res.Offsets[i] + uint32(emitted)
	}
	return res, nil
}

func sortKeys(keys []Key) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// SizeEstimate reports the six unsigned counters of spec.md §4.4.4 for
// one (collection, [start,end)) range.
type SizeEstimate struct {
	MinCardinality uint64
	MaxCardinality uint64
	MinValueBytes  uint64
	MaxValueBytes  uint64
	MinSpaceUsage  uint64
	MaxSpaceUsage  uint64
}

// perEntryOverhead is the rough fixed-cost-per-entry accounting used
// by Size's "space usage" counters.
const perEntryOverhead = 32

// Size reports cardinality/bytes/space-usage bounds for a range, per
// spec.md §4.4.4. tx is optional; when present its upserts widen the
// "max" counters.
func (db *Database) Size(task ScanTask, tx *Transaction) (SizeEstimate, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	col, ok := db.collectionLocked(task.Collection)
	if !ok {
		return SizeEstimate{}, fmt.Errorf("%w: collection %d", kverrors.ErrNotFound, task.Collection)
	}

	var est SizeEstimate
	col.lowerBound(task.Start, func(r *record) bool {
		if r.key >= task.End {
			return false
		}
		if !r.tombstone {
			est.MinCardinality++
			est.MinValueBytes += uint64(len(r.payload))
		}
		est.MaxCardinality++
		est.MaxValueBytes += uint64(len(r.payload))
		return true
	})

	if tx != nil {
		for k, payload := range tx.upserts {
			if k.collection == task.Collection && k.key >= task.Start && k.key < task.End {
				est.MaxCardinality++
				est.MaxValueBytes += uint64(len(payload))
			}
		}
	}

	est.MinSpaceUsage = est.MinValueBytes + est.MinCardinality*perEntryOverhead
	est.MaxSpaceUsage = est.MaxValueBytes + est.MaxCardinality*perEntryOverhead
	return est, nil
}
