package pool

import (
	"sync"
	"testing"

	"github.com/kartikbazzad/ustorekv/internal/kv"
)

func TestOpenOrCreateAndRoute(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(dir, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	id, err := p.OpenOrCreateDB("orders")
	if err != nil {
		t.Fatalf("OpenOrCreateDB: %v", err)
	}

	db, err := p.Database(id)
	if err != nil {
		t.Fatalf("Database: %v", err)
	}
	if err := db.Write(kv.One(kv.DefaultCollectionID), kv.Many([]kv.Key{1}), kv.Many([][]byte{[]byte("x")}), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	id2, err := p.OpenOrCreateDB("orders")
	if err != nil || id2 != id {
		t.Fatalf("reopening the same name should return the same id: got %d/%d err=%v", id2, id, err)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(dir, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	id, err := p.OpenOrCreateDB("accounts")
	if err != nil {
		t.Fatalf("OpenOrCreateDB: %v", err)
	}

	handle, err := p.BeginTransaction(id)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	tx, err := p.Transaction(handle)
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if err := tx.Write(kv.One(kv.DefaultCollectionID), kv.Many([]kv.Key{5}), kv.Many([][]byte{[]byte("v")})); err != nil {
		t.Fatalf("tx.Write: %v", err)
	}
	if err := tx.Commit(0); err != nil {
		t.Fatalf("tx.Commit: %v", err)
	}
	p.EndTransaction(handle)

	if _, err := p.Transaction(handle); err != ErrUnknownTx {
		t.Fatalf("Transaction after EndTransaction = %v, want ErrUnknownTx", err)
	}
}

func TestCloseDBRemovesFromRoutingTable(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(dir, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	id, _ := p.OpenOrCreateDB("temp")
	if err := p.CloseDB(id); err != nil {
		t.Fatalf("CloseDB: %v", err)
	}
	if _, err := p.Database(id); err != ErrUnknownDB {
		t.Fatalf("Database after CloseDB = %v, want ErrUnknownDB", err)
	}
}

// TestConcurrentWritersSameDB exercises the same scenario the
// teacher's standalone concurrency suite did (many goroutines hammer
// one open database through the pool), adapted to the pool's routed
// single-kv.Database-per-id model instead of the teacher's
// partitioned LogicalDB.
func TestConcurrentWritersSameDB(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(dir, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	id, err := p.OpenOrCreateDB("concurrent")
	if err != nil {
		t.Fatalf("OpenOrCreateDB: %v", err)
	}
	db, err := p.Database(id)
	if err != nil {
		t.Fatalf("Database: %v", err)
	}

	const writers = 16
	const perWriter = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := kv.Key(base*perWriter + i)
				if err := db.Write(kv.One(kv.DefaultCollectionID), kv.Many([]kv.Key{key}), kv.Many([][]byte{[]byte("v")}), 0); err != nil {
					t.Errorf("Write(%d): %v", key, err)
				}
			}
		}(w)
	}
	wg.Wait()

	est, err := db.Size(kv.ScanTask{Collection: kv.DefaultCollectionID, Start: 0, End: kv.Key(writers * perWriter)}, nil)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if est.MaxCardinality != uint64(writers*perWriter) {
		t.Fatalf("MaxCardinality = %d, want %d", est.MaxCardinality, writers*perWriter)
	}
}
