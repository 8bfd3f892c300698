package vectors

import (
	"testing"

	"github.com/kartikbazzad/ustorekv/internal/kv"
)

func openMem(t *testing.T) *kv.Database {
	t.Helper()
	db, err := kv.Open(kv.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

func TestPutGetVector(t *testing.T) {
	db := openMem(t)
	vec := []float32{1, 2, 3}
	if err := Put(db, kv.DefaultCollectionID, 1, vec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := Get(db, kv.DefaultCollectionID, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("got %v, want %v", got, vec)
		}
	}
}

func TestSearchL2NearestFirst(t *testing.T) {
	db := openMem(t)
	Put(db, kv.DefaultCollectionID, 1, []float32{0, 0})
	Put(db, kv.DefaultCollectionID, 2, []float32{10, 10})
	Put(db, kv.DefaultCollectionID, 3, []float32{1, 1})

	results, err := Search(db, kv.DefaultCollectionID, 0, 100, []float32{0, 0}, MetricL2, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Key != 1 || results[1].Key != 3 {
		t.Fatalf("unexpected order: %+v", results)
	}
}
