package kv

import (
	"fmt"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

// TxState is one of the five states in spec.md §4.5's transition
// diagram.
type TxState int

const (
	TxOpen TxState = iota
	TxStaged
	TxCommitted
	TxAborted
	TxPoisoned
)

type opKey struct {
	collection CollectionID
	key        Key
}

// Transaction is a private overlay over a Database: a write set, a
// delete set, and a read set (key -> observed generation), per
// spec.md §3.
type Transaction struct {
	db         *Database
	generation uint64
	snapshot   *Snapshot

	upserts map[opKey][]byte
	removes map[opKey]struct{}
	reads   map[opKey]uint64

	state     TxState
	poisonErr error
}

func newTransaction(db *Database, snap *Snapshot) *Transaction {
	tx := &Transaction{db: db, snapshot: snap, state: TxOpen}
	tx.resetOverlay()
	if snap != nil {
		tx.generation = snap.snapGen
	} else {
		tx.generation = db.nextGeneration()
	}
	return tx
}

func (tx *Transaction) resetOverlay() {
	tx.upserts = make(map[opKey][]byte)
	tx.removes = make(map[opKey]struct{})
	tx.reads = make(map[opKey]uint64)
}

// State returns the transaction's current state.
func (tx *Transaction) State() TxState { return tx.state }

// checkOpen returns the poison error if the transaction is poisoned
// (spec.md §4.5: "any further operation on it is a no-op returning the
// same status" until Reset), or ErrInvalidArgument if it isn't open.
func (tx *Transaction) checkOpen() error {
	if tx.state == TxPoisoned {
		return tx.poisonErr
	}
	if tx.state != TxOpen {
		return fmt.Errorf("%w: transaction is not open", kverrors.ErrInvalidArgument)
	}
	return nil
}

// Read performs a batched point lookup through the transaction's
// overlay layered over head (or over the attached snapshot), per
// spec.md §4.4.1.
func (tx *Transaction) Read(cols Strided[CollectionID], keys Strided[Key], opts Options) (*ReadResult, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	n := keys.Len()
	if keys.Stride == 0 {
		return nil, fmt.Errorf("%w: zero stride forbidden for keys", kverrors.ErrInvalidArgument)
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	res := newReadResult(n)
	for i := 0; i < n; i++ {
		col := cols.At(i)
		key := keys.At(i)
		k := opKey{col, key}

		if payload, ok := tx.upserts[k]; ok {
			if err := res.set(i, payload, true, tx.db.arena); err != nil {
				return nil, err
			}
			continue
		}
		if _, ok := tx.removes[k]; ok {
			res.setMissing(i)
			continue
		}

		c, ok := tx.db.collectionLocked(col)
		if !ok {
			res.setMissing(i)
			continue
		}

		var rec *record
		var found bool
		if tx.snapshot != nil {
			rec, found = tx.snapshot.find(c, key)
		} else {
			r, f := c.find(key)
			if f && !r.tombstone {
				rec, found = r, true
			}
		}

		observedGen := uint64(0)
		if found {
			observedGen = rec.generation
		} else if tx.snapshot != nil {
			observedGen = tx.snapshot.snapGen
		}

		if !opts.has(OptionTransactionDontWatch) {
			tx.reads[k] = observedGen
			if found && rec.generation > tx.generation {
				tx.state = TxPoisoned
				tx.poisonErr = kverrors.ErrConflict
				return nil, tx.poisonErr
			}
		}

		if !found {
			res.setMissing(i)
			continue
		}
		if err := res.set(i, rec.payload, true, tx.db.arena); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Write records upserts/removals in the transaction's overlay, per
// spec.md §4.4.2's transactional path (shared lock, no mutation of
// head).
func (tx *Transaction) Write(cols Strided[CollectionID], keys Strided[Key], contents Strided[[]byte]) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	n := keys.Len()
	if keys.Stride == 0 {
		return fmt.Errorf("%w: zero stride forbidden for keys", kverrors.ErrInvalidArgument)
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	for i := 0; i < n; i++ {
		k := opKey{cols.At(i), keys.At(i)}
		content := contents.At(i)
		if content == nil {
			delete(tx.upserts, k)
			tx.removes[k] = struct{}{}
			continue
		}
		delete(tx.removes, k)
		tx.upserts[k] = content
	}
	return nil
}

// validateLocked implements the conflict checks of spec.md §4.5 steps
// 1-3. Caller must hold db.mu exclusively.
func (tx *Transaction) validateLocked() error {
	Y := tx.db.youngestGeneration.Load()

	for k, observedGen := range tx.reads {
		col, ok := tx.db.collectionLocked(k.collection)
		if !ok {
			continue
		}
		rec, found := col.find(k.key)
		if !found {
			continue
		}
		if rec.generation != observedGen && rec.generation > tx.generation && rec.generation <= Y {
			return kverrors.ErrConflict
		}
	}

	check := func(k opKey) error {
		col, ok := tx.db.collectionLocked(k.collection)
		if !ok {
			return nil
		}
		rec, found := col.find(k.key)
		if !found {
			return nil
		}
		if rec.generation == tx.generation {
			return kverrors.ErrRepeated
		}
		if rec.generation > tx.generation && rec.generation <= Y {
			return kverrors.ErrConflict
		}
		return nil
	}
	for k := range tx.upserts {
		if err := check(k); err != nil {
			return err
		}
	}
	for k := range tx.removes {
		if err := check(k); err != nil {
			return err
		}
	}
	return nil
}

// Stage performs the validation steps of Commit without applying any
// mutation, per spec.md §4.5.
func (tx *Transaction) Stage() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	if err := tx.validateLocked(); err != nil {
		tx.state = TxPoisoned
		tx.poisonErr = err
		return err
	}
	tx.state = TxStaged
	return nil
}

// Commit runs the full protocol of spec.md §4.5: validate, assign a
// fresh commit generation, apply every upsert and removal, and
// optionally flush to disk.
func (tx *Transaction) Commit(opts Options) error {
	if tx.state != TxOpen && tx.state != TxStaged {
		if tx.state == TxPoisoned {
			return tx.poisonErr
		}
		return fmt.Errorf("%w: transaction is not open or staged", kverrors.ErrInvalidArgument)
	}

	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()

	if err := tx.validateLocked(); err != nil {
		tx.state = TxPoisoned
		tx.poisonErr = err
		return err
	}

	commitGen := tx.db.nextGeneration()
	for k, payload := range tx.upserts {
		col, ok := tx.db.collectionLocked(k.collection)
		if !ok {
			continue
		}
		col.upsert(k.key, payload, commitGen)
	}
	for k := range tx.removes {
		col, ok := tx.db.collectionLocked(k.collection)
		if !ok {
			continue
		}
		col.tombstone(k.key, commitGen)
	}
	tx.state = TxCommitted

	if opts.has(OptionWriteFlush) && tx.db.directory != "" {
		return tx.db.persistAllLocked()
	}
	return nil
}

// ListCollections implements the transaction/snapshot-qualified form
// of spec.md §4.3's list_collections: snapshot-backed transactions
// list as of the snapshot, plain transactions list as of the
// generation they were opened at.
func (tx *Transaction) ListCollections() ([]CollectionID, []string, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, nil, err
	}
	if tx.snapshot != nil {
		ids, names := tx.db.ListCollections(tx.snapshot)
		return ids, names, nil
	}
	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()
	ids, names := tx.db.listCollectionsLocked(tx.generation, true)
	return ids, names, nil
}

// Abort discards the transaction's overlay without touching head.
func (tx *Transaction) Abort() {
	tx.state = TxAborted
	tx.resetOverlay()
}

// Reset clears the overlay and returns the transaction to open with a
// fresh generation stamp, per spec.md §4.5.
func (tx *Transaction) Reset() {
	tx.generation = tx.db.YoungestGeneration() + 1
	tx.resetOverlay()
	tx.state = TxOpen
	tx.poisonErr = nil
}
