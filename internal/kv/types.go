// Package kv implements the embedded transactional key-value engine:
// collections, an in-memory ordered store, MVCC-based optimistic
// transactions, snapshot isolation, batched scans, and a per-collection
// on-disk persistence format.
package kv

import "math"

// Key is a signed 64-bit key, totally ordered by signed comparison
// within a collection.
type Key int64

// CollectionID identifies a collection within a Database. 0 always
// denotes the main collection, which is present in every database and
// cannot be renamed or dropped by handle.
type CollectionID uint64

// DefaultCollectionID is the reserved identifier of the always-present
// main collection.
const DefaultCollectionID CollectionID = 0

// LengthMissing is the sentinel length returned for a key that does
// not exist.
const LengthMissing uint32 = math.MaxUint32

// KeyUnknown is the sentinel key value meaning "no such key".
const KeyUnknown Key = math.MaxInt64

// DefaultEdgeID is the reserved edge identifier the graph adapter uses
// for edges that carry no explicit id.
const DefaultEdgeID uint64 = math.MaxUint64 - 1

// Options is a bit set carried on every batched call.
type Options uint32

const (
	// OptionWriteFlush forces a disk flush before returning (writes
	// and commits only).
	OptionWriteFlush Options = 1 << 1
	// OptionTransactionDontWatch suppresses read tracking inside a
	// transaction.
	OptionTransactionDontWatch Options = 1 << 2
	// OptionDontDiscardMemory keeps the arena's prior outputs alive
	// instead of resetting it at operation entry.
	OptionDontDiscardMemory Options = 1 << 4
	// OptionReadSharedMemory is a hint that outputs should live in
	// shared memory for collaborator transports; the core treats it
	// as a no-op hint.
	OptionReadSharedMemory Options = 1 << 5
	// OptionScanBulk relaxes scan ordering guarantees as a performance
	// escape hatch. ustorekv's in-memory btree makes ordered iteration
	// cheap enough that bulk scans take the same code path as ordered
	// ones; the bit is accepted and recorded but never changes output.
	OptionScanBulk Options = 1 << 6
)

func (o Options) has(bit Options) bool { return o&bit != 0 }

// DropMode selects what drop_collection removes.
type DropMode int

const (
	// DropValuesOnly tombstones every entry but keeps all keys.
	DropValuesOnly DropMode = iota
	// DropKeysAndValues empties the collection entirely but keeps its
	// name registered.
	DropKeysAndValues
	// DropCollectionHandle removes the collection from the database's
	// name registry. Forbidden on the main collection.
	DropCollectionHandle
)
