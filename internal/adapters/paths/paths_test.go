package paths

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

func TestPutGet(t *testing.T) {
	db := openMem(t)
	if err := Put(db, kv.DefaultCollectionID, "/users/ada/profile", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := Get(db, kv.DefaultCollectionID, "/users/ada/profile")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "data" {
		t.Errorf("Get = %q, want data", v)
	}
}

func TestGetMissing(t *testing.T) {
	db := openMem(t)
	if _, err := Get(db, kv.DefaultCollectionID, "/nope"); err == nil {
		t.Fatal("Get of missing path should fail")
	}
}

func TestToKeyDeterministic(t *testing.T) {
	if ToKey("/a/b") != ToKey("/a/b") {
		t.Fatal("ToKey must be deterministic for the same path")
	}
}

func TestDelete(t *testing.T) {
	db := openMem(t)
	Put(db, kv.DefaultCollectionID, "/x", []byte("v"))
	if err := Delete(db, kv.DefaultCollectionID, "/x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := Get(db, kv.DefaultCollectionID, "/x"); err == nil {
		t.Fatal("Get after Delete should fail")
	}
}
