package catalog

import (
	"path/filepath"
	"testing"
)

func TestCreateGetList(t *testing.T) {
	dir := t.TempDir()
	cat := New(filepath.Join(dir, "catalog.bin"), nil)
	if err := cat.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer cat.Close()

	id, err := cat.Create("orders", filepath.Join(dir, "orders"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	entry, err := cat.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Name != "orders" {
		t.Errorf("Name = %q, want orders", entry.Name)
	}

	if _, err := cat.Create("orders", "/x"); err != ErrDBExists {
		t.Errorf("duplicate Create error = %v, want ErrDBExists", err)
	}

	if len(cat.List()) != 1 {
		t.Errorf("List length = %d, want 1", len(cat.List()))
	}
}

func TestDropThenReuse(t *testing.T) {
	dir := t.TempDir()
	cat := New(filepath.Join(dir, "catalog.bin"), nil)
	if err := cat.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer cat.Close()

	id, _ := cat.Create("temp", dir)
	if err := cat.Drop(id); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := cat.Get(id); err != ErrDBNotFound {
		t.Errorf("Get after drop = %v, want ErrDBNotFound", err)
	}

	if _, err := cat.Create("temp", dir); err != nil {
		t.Errorf("re-Create after drop should succeed, got %v", err)
	}
}

func TestLoadReplaysLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.bin")

	cat := New(path, nil)
	if err := cat.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	id, _ := cat.Create("keep", dir)
	_, _ = cat.Create("gone", dir)
	_ = cat.Drop(func() uint64 {
		e, _ := cat.GetByName("gone")
		return e.ID
	}())
	cat.Close()

	reloaded := New(path, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer reloaded.Close()

	if _, err := reloaded.Get(id); err != nil {
		t.Errorf("Get(%d) after reload: %v", id, err)
	}
	if _, err := reloaded.GetByName("gone"); err != ErrDBNotFound {
		t.Errorf("GetByName(gone) after reload = %v, want ErrDBNotFound", err)
	}
}
