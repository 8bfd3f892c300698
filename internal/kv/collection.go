package kv

import (
	"sync/atomic"

	"github.com/google/btree"
)

// btreeDegree controls the branching factor of the ordered map backing
// every collection. 32 is the library's own suggested default for
// small-to-medium in-memory trees.
const btreeDegree = 32

// record is a value_record per spec.md §3: a live key's payload plus
// the generation that last touched it. A tombstoned record retains
// its generation and an empty payload so concurrent transactions can
// still detect a conflict against a deletion. prev chains to the
// version this one superseded, so a snapshot taken before a later
// overwrite can still find the value it pinned (spec.md §4.6).
type record struct {
	key        Key
	payload    []byte
	generation uint64
	tombstone  bool
	prev       *record
}

func recordLess(a, b *record) bool { return a.key < b.key }

// Collection is an ordered map from Key to record, with a live-entry
// counter. It has no lock of its own: all synchronization happens at
// the owning Database, per spec.md §5's locking discipline. createdGen
// is the generation the collection itself was created at, so a
// point-in-time list_collections can filter out collections that
// didn't exist yet (spec.md §4.3); it is 0 and unused for main.
type Collection struct {
	name       string
	tree       *btree.BTreeG[*record]
	liveCount  atomic.Uint64
	createdGen uint64
}

func newCollection(name string) *Collection {
	return &Collection{
		name: name,
		tree: btree.NewG(btreeDegree, recordLess),
	}
}

// find returns the record at key, including tombstones, per spec.md
// §4.2's "find(key) -> option<&value_record>".
func (c *Collection) find(key Key) (*record, bool) {
	return c.tree.Get(&record{key: key})
}

// upsert replaces or inserts the payload at key, stamping generation
// and clearing any tombstone. The record it replaces is chained off
// prev rather than discarded, so snapshots pinned at an older
// generation keep seeing it. live_count is adjusted when the entry
// transitions from absent/tombstoned to live.
func (c *Collection) upsert(key Key, payload []byte, generation uint64) {
	existing, found := c.tree.Get(&record{key: key})
	wasLive := found && !existing.tombstone
	var prev *record
	if found {
		prev = existing
	}
	c.tree.ReplaceOrInsert(&record{key: key, payload: payload, generation: generation, prev: prev})
	if !wasLive {
		c.liveCount.Add(1)
	}
}

// tombstone marks key deleted at generation, clearing its payload.
// The deleted record is chained off prev for the same reason upsert
// chains its predecessor. live_count is decremented if the entry was
// previously live.
func (c *Collection) tombstone(key Key, generation uint64) {
	existing, found := c.tree.Get(&record{key: key})
	wasLive := found && !existing.tombstone
	var prev *record
	if found {
		prev = existing
	}
	c.tree.ReplaceOrInsert(&record{key: key, payload: nil, generation: generation, tombstone: true, prev: prev})
	if wasLive {
		c.liveCount.Add(^uint64(0)) // -1
	}
}

// prune trims every key's version chain down to what a reader pinned
// at minLiveGen or later could still need: every version newer than
// minLiveGen is kept (a snapshot pinned above minLiveGen may still
// need it), plus the single newest version at or before minLiveGen.
// hasLive false (no snapshot outstanding) drops full history.
func (c *Collection) prune(minLiveGen uint64, hasLive bool) {
	c.tree.Ascend(func(r *record) bool {
		if !hasLive {
			r.prev = nil
			return true
		}
		v := r
		for v != nil && v.generation > minLiveGen {
			v = v.prev
		}
		if v != nil {
			v.prev = nil
		}
		return true
	})
}

// lowerBound walks entries with key >= from, including tombstones,
// calling visit for each until visit returns false or entries are
// exhausted.
func (c *Collection) lowerBound(from Key, visit func(*record) bool) {
	c.tree.AscendGreaterOrEqual(&record{key: from}, func(r *record) bool {
		return visit(r)
	})
}

// clearValues tombstones every entry at generation, preserving keys.
func (c *Collection) clearValues(generation uint64) {
	var keys []Key
	c.tree.Ascend(func(r *record) bool {
		if !r.tombstone {
			keys = append(keys, r.key)
		}
		return true
	})
	for _, k := range keys {
		c.tombstone(k, generation)
	}
}

// clearAll removes every entry, including tombstones, and resets
// live_count to 0.
func (c *Collection) clearAll() {
	c.tree.Clear(false)
	c.liveCount.Store(0)
}

// liveEntries returns live_count as observed under the database's
// current lock (exact under the exclusive lock, eventually consistent
// otherwise, per spec.md §3).
func (c *Collection) liveEntries() uint64 {
	return c.liveCount.Load()
}

// totalEntries returns the count of all entries, live and tombstoned.
func (c *Collection) totalEntries() int {
	return c.tree.Len()
}
