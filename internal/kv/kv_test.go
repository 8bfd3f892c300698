package kv

import (
	"bytes"
	"testing"
)

func openMem(t *testing.T) *Database {
	t.Helper()
	db, err := Open(Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func TestBasicCRUD(t *testing.T) {
	db := openMem(t)

	cols := One(DefaultCollectionID)
	keys := Many([]Key{97, 98, 99})
	contents := Many([][]byte{[]byte("A"), []byte("B"), []byte("C")})

	if err := db.Write(cols, keys, contents, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := db.Read(cols, keys, nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, want := range []string{"A", "B", "C"} {
		v, ok := res.Value(i)
		if !ok || string(v) != want {
			t.Errorf("key %d: got %q present=%v, want %q", i, v, ok, want)
		}
	}

	// write(98, null) deletes it.
	if err := db.Write(cols, Many([]Key{98}), Many([][]byte{nil}), 0); err != nil {
		t.Fatalf("Write delete: %v", err)
	}
	res2, err := db.Read(cols, Many([]Key{98}), nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res2.Presence(0) || res2.Length(0) != LengthMissing {
		t.Errorf("deleted key should be missing: presence=%v length=%d", res2.Presence(0), res2.Length(0))
	}
}

func TestScanBounds(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	for k := Key(1000); k < 1100; k++ {
		if err := db.Write(cols, Many([]Key{k}), Many([][]byte{[]byte("some")}), 0); err != nil {
			t.Fatalf("Write(%d): %v", k, err)
		}
	}

	res, err := db.Scan([]ScanTask{{Collection: DefaultCollectionID, Start: 1050, End: 1060, Limit: 100}}, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Keys) != 10 {
		t.Fatalf("expected 10 keys, got %d", len(res.Keys))
	}
	for i, want := 0, Key(1050); i < len(res.Keys); i, want = i+1, want+1 {
		if res.Keys[i] != want {
			t.Errorf("keys[%d] = %d, want %d", i, res.Keys[i], want)
		}
	}
}

func TestTransactionReadCommitted(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	tx := db.Begin()
	if err := tx.Write(cols, Many([]Key{42}), Many([][]byte{[]byte("X")})); err != nil {
		t.Fatalf("tx.Write: %v", err)
	}

	res, err := db.Read(cols, Many([]Key{42}), nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Presence(0) {
		t.Fatal("uncommitted write must not be visible outside the transaction")
	}

	if err := tx.Commit(0); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	res2, err := db.Read(cols, Many([]Key{42}), nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	v, ok := res2.Value(0)
	if !ok || string(v) != "X" {
		t.Errorf("got %q present=%v, want X", v, ok)
	}
}

func TestConflictDetection(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	if err := db.Write(cols, Many([]Key{5}), Many([][]byte{[]byte("orig")}), 0); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	t1 := db.Begin()
	if _, err := t1.Read(cols, Many([]Key{5}), 0); err != nil {
		t.Fatalf("t1.Read: %v", err)
	}

	t2 := db.Begin()
	if err := t2.Write(cols, Many([]Key{5}), Many([][]byte{[]byte("Y")})); err != nil {
		t.Fatalf("t2.Write: %v", err)
	}
	if err := t2.Commit(0); err != nil {
		t.Fatalf("t2.Commit: %v", err)
	}

	if err := t1.Commit(0); err == nil {
		t.Fatal("t1.Commit should fail with a conflict")
	}

	res, err := db.Read(cols, Many([]Key{5}), nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	v, _ := res.Value(0)
	if string(v) != "Y" {
		t.Errorf("main key 5 = %q, want Y", v)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	if err := db.Write(cols, Many([]Key{10}), Many([][]byte{[]byte("a")}), 0); err != nil {
		t.Fatalf("write a: %v", err)
	}

	snap := db.Snapshots().Create()

	if err := db.Write(cols, Many([]Key{10}), Many([][]byte{[]byte("b")}), 0); err != nil {
		t.Fatalf("write b: %v", err)
	}

	viaSnap, err := db.Read(cols, Many([]Key{10}), snap, 0)
	if err != nil {
		t.Fatalf("Read via snapshot: %v", err)
	}
	v, _ := viaSnap.Value(0)
	if string(v) != "a" {
		t.Errorf("snapshot read = %q, want a", v)
	}

	viaHead, err := db.Read(cols, Many([]Key{10}), nil, 0)
	if err != nil {
		t.Fatalf("Read head: %v", err)
	}
	v2, _ := viaHead.Value(0)
	if string(v2) != "b" {
		t.Errorf("head read = %q, want b", v2)
	}
}

// TestSnapshotSurvivesOverwrite is the scenario from spec.md's
// universal invariants: a snapshot taken before a later overwrite of
// the same key (not a delete) must still return the pre-write value,
// and that must hold across more than one overwrite and through scan
// and export too, not just a single point read.
func TestSnapshotSurvivesOverwrite(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	if err := db.Write(cols, Many([]Key{10}), Many([][]byte{[]byte("a")}), 0); err != nil {
		t.Fatalf("write a: %v", err)
	}
	snap := db.Snapshots().Create()

	if err := db.Write(cols, Many([]Key{10}), Many([][]byte{[]byte("b")}), 0); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := db.Write(cols, Many([]Key{10}), Many([][]byte{[]byte("c")}), 0); err != nil {
		t.Fatalf("write c: %v", err)
	}

	res, err := db.Read(cols, Many([]Key{10}), snap, 0)
	if err != nil {
		t.Fatalf("Read via snapshot: %v", err)
	}
	v, ok := res.Value(0)
	if !ok || string(v) != "a" {
		t.Fatalf("snapshot read after two overwrites = %q present=%v, want a", v, ok)
	}

	scanRes, err := db.Scan([]ScanTask{{Collection: DefaultCollectionID, Start: 10, End: 11, Limit: 10}}, snap, 0)
	if err != nil {
		t.Fatalf("Scan via snapshot: %v", err)
	}
	if len(scanRes.Keys) != 1 || scanRes.Keys[0] != 10 {
		t.Fatalf("snapshot scan = %v, want [10]", scanRes.Keys)
	}

	dir := t.TempDir()
	if err := db.Snapshots().Export(snap, dir); err != nil {
		t.Fatalf("Export: %v", err)
	}
	exported, err := Open(Config{Directory: dir})
	if err != nil {
		t.Fatalf("reopen exported: %v", err)
	}
	defer exported.Close()
	expRes, err := exported.Read(cols, Many([]Key{10}), nil, 0)
	if err != nil {
		t.Fatalf("Read exported: %v", err)
	}
	ev, ok := expRes.Value(0)
	if !ok || string(ev) != "a" {
		t.Fatalf("exported snapshot value = %q present=%v, want a", ev, ok)
	}

	headRes, err := db.Read(cols, Many([]Key{10}), nil, 0)
	if err != nil {
		t.Fatalf("Read head: %v", err)
	}
	hv, _ := headRes.Value(0)
	if string(hv) != "c" {
		t.Errorf("head read = %q, want c", hv)
	}
}

// TestSnapshotSurvivesTombstone covers the delete case alongside the
// overwrite case: a snapshot taken before a later delete of a key must
// still see the pre-delete value.
func TestSnapshotSurvivesTombstone(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	if err := db.Write(cols, Many([]Key{20}), Many([][]byte{[]byte("live")}), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap := db.Snapshots().Create()

	if err := db.Write(cols, Many([]Key{20}), Many([][]byte{nil}), 0); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err := db.Read(cols, Many([]Key{20}), snap, 0)
	if err != nil {
		t.Fatalf("Read via snapshot: %v", err)
	}
	v, ok := res.Value(0)
	if !ok || string(v) != "live" {
		t.Fatalf("snapshot read after delete = %q present=%v, want live", v, ok)
	}

	headRes, err := db.Read(cols, Many([]Key{20}), nil, 0)
	if err != nil {
		t.Fatalf("Read head: %v", err)
	}
	if headRes.Presence(0) {
		t.Fatal("head read should see the delete")
	}
}

// TestSnapshotHistoryPrunedAfterDrop checks that dropping the only
// live snapshot releases the version history it was pinning: once
// dropped, the chain collapses back to a single head version per key.
func TestSnapshotHistoryPrunedAfterDrop(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	if err := db.Write(cols, Many([]Key{30}), Many([][]byte{[]byte("a")}), 0); err != nil {
		t.Fatalf("write a: %v", err)
	}
	snap := db.Snapshots().Create()
	if err := db.Write(cols, Many([]Key{30}), Many([][]byte{[]byte("b")}), 0); err != nil {
		t.Fatalf("write b: %v", err)
	}

	rec, found := db.main.find(30)
	if !found || rec.prev == nil {
		t.Fatalf("expected a retained prior version while the snapshot is live")
	}

	if err := db.Snapshots().Drop(snap.ID()); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	rec2, found := db.main.find(30)
	if !found || rec2.prev != nil {
		t.Fatalf("expected prior version to be pruned once no snapshot needs it")
	}
}

// TestListCollectionsSnapshotQualifier checks spec.md §4.3's
// point-in-time qualifier: a collection created after a snapshot was
// taken must not appear when listing as of that snapshot.
func TestListCollectionsSnapshotQualifier(t *testing.T) {
	db := openMem(t)

	snap := db.Snapshots().Create()
	if _, err := db.CreateCollection("late", nil); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	_, namesAtSnap := db.ListCollections(snap)
	for _, n := range namesAtSnap {
		if n == "late" {
			t.Fatalf("collection created after the snapshot should not be listed, got %v", namesAtSnap)
		}
	}

	_, namesHead := db.ListCollections(nil)
	found := false
	for _, n := range namesHead {
		if n == "late" {
			found = true
		}
	}
	if !found {
		t.Fatalf("head listing should include the new collection, got %v", namesHead)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Config{Directory: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cols := One(DefaultCollectionID)
	if err := db.Write(cols, Many([]Key{1, 2}), Many([][]byte{[]byte("p"), []byte("q")}), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(Config{Directory: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	res, err := db2.Read(cols, Many([]Key{1, 2}), nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, want := range []string{"p", "q"} {
		v, ok := res.Value(i)
		if !ok || string(v) != want {
			t.Errorf("key %d: got %q present=%v, want %q", i, v, ok, want)
		}
	}
}

func TestDropCollectionModes(t *testing.T) {
	db := openMem(t)
	id, err := db.CreateCollection("notes", nil)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	cols := One(id)
	if err := db.Write(cols, Many([]Key{1}), Many([][]byte{[]byte("v")}), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := db.DropCollection(id, DropValuesOnly); err != nil {
		t.Fatalf("DropCollection(values_only): %v", err)
	}
	res, err := db.Scan([]ScanTask{{Collection: id, Start: 0, End: 1000, Limit: 100}}, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Keys) != 0 {
		t.Fatalf("values_only drop should leave no live keys, got %v", res.Keys)
	}

	ids, names := db.ListCollections(nil)
	found := false
	for _, n := range names {
		if n == "notes" {
			found = true
		}
	}
	if !found {
		t.Fatalf("collection %q should still be listed, got %v / %v", "notes", ids, names)
	}

	if err := db.DropCollection(id, DropCollectionHandle); err != nil {
		t.Fatalf("DropCollection(handle): %v", err)
	}
	_, names2 := db.ListCollections(nil)
	for _, n := range names2 {
		if n == "notes" {
			t.Fatalf("collection %q should have been removed", n)
		}
	}
}

func TestIdempotentWrite(t *testing.T) {
	db := openMem(t)
	cols := One(DefaultCollectionID)

	for i := 0; i < 3; i++ {
		if err := db.Write(cols, Many([]Key{7}), Many([][]byte{[]byte("same")}), 0); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	res, err := db.Read(cols, Many([]Key{7}), nil, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	v, _ := res.Value(0)
	if !bytes.Equal(v, []byte("same")) {
		t.Errorf("got %q, want same", v)
	}
}

func TestZeroStrideKeysRejected(t *testing.T) {
	db := openMem(t)
	_, err := db.Read(One(DefaultCollectionID), Strided[Key]{Values: []Key{1}, Stride: 0}, nil, 0)
	if err == nil {
		t.Fatal("zero stride for keys must be rejected")
	}
}

// TestTransactionListCollections checks the transaction-qualified form
// of list_collections: a transaction opened before a collection is
// created at head must not see it until the transaction is reset.
func TestTransactionListCollections(t *testing.T) {
	db := openMem(t)

	tx := db.Begin()
	if _, err := db.CreateCollection("during-tx", nil); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	_, names, err := tx.ListCollections()
	if err != nil {
		t.Fatalf("tx.ListCollections: %v", err)
	}
	for _, n := range names {
		if n == "during-tx" {
			t.Fatalf("transaction opened before the create should not see it, got %v", names)
		}
	}

	tx.Abort()
	tx2 := db.Begin()
	_, names2, err := tx2.ListCollections()
	if err != nil {
		t.Fatalf("tx2.ListCollections: %v", err)
	}
	found := false
	for _, n := range names2 {
		if n == "during-tx" {
			found = true
		}
	}
	if !found {
		t.Fatalf("a fresh transaction should see the collection, got %v", names2)
	}
}

// BenchmarkWrite measures single-key write throughput against an
// in-memory database, the same scenario the teacher's standalone
// benchmark suite measured for document creation.
func BenchmarkWrite(b *testing.B) {
	db, err := Open(Config{})
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	defer db.Close()

	cols := One(DefaultCollectionID)
	payload := []byte("benchmark payload")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.Write(cols, Many([]Key{Key(i)}), Many([][]byte{payload}), 0); err != nil {
			b.Fatalf("Write: %v", err)
		}
	}
}

// BenchmarkRead measures point-read throughput against a
// pre-populated in-memory database.
func BenchmarkRead(b *testing.B) {
	db, err := Open(Config{})
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	defer db.Close()

	cols := One(DefaultCollectionID)
	payload := []byte("benchmark payload")
	const n = 10000
	for i := 0; i < n; i++ {
		if err := db.Write(cols, Many([]Key{Key(i)}), Many([][]byte{payload}), 0); err != nil {
			b.Fatalf("seed write: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.Read(cols, Many([]Key{Key(i % n)}), nil, 0); err != nil {
			b.Fatalf("Read: %v", err)
		}
	}
}
