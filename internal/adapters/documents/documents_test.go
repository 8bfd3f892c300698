package documents

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

func TestPutGetJSON(t *testing.T) {
	db := openMem(t)
	doc := map[string]interface{}{"name": "ada", "address": map[string]interface{}{"city": "london"}}
	if err := Put(db, kv.DefaultCollectionID, 1, FormatJSON, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := Get(db, kv.DefaultCollectionID, 1, FormatJSON)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m := got.(map[string]interface{})
	if m["name"] != "ada" {
		t.Errorf("name = %v, want ada", m["name"])
	}
}

func TestGetFieldNested(t *testing.T) {
	db := openMem(t)
	doc := map[string]interface{}{"address": map[string]interface{}{"city": "london"}}
	if err := Put(db, kv.DefaultCollectionID, 2, FormatJSON, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, err := GetField(db, kv.DefaultCollectionID, 2, FormatJSON, "address.city")
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if v != "london" {
		t.Errorf("GetField = %v, want london", v)
	}
}

func TestSetFieldCreatesDocument(t *testing.T) {
	db := openMem(t)
	if err := SetField(db, kv.DefaultCollectionID, 3, FormatJSON, "profile.age", float64(30)); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	v, err := GetField(db, kv.DefaultCollectionID, 3, FormatJSON, "profile.age")
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if v != float64(30) {
		t.Errorf("GetField = %v, want 30", v)
	}
}

func TestPutGetMessagePack(t *testing.T) {
	db := openMem(t)
	doc := map[string]interface{}{"score": int64(42)}
	if err := Put(db, kv.DefaultCollectionID, 4, FormatMessagePack, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := Get(db, kv.DefaultCollectionID, 4, FormatMessagePack)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m := got.(map[string]interface{})
	if m["score"] != int64(42) {
		t.Errorf("score = %v (%T), want 42", m["score"], m["score"])
	}
}
