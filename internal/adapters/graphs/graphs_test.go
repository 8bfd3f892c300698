package graphs

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

func TestAddAndListEdges(t *testing.T) {
	db := openMem(t)
	if err := AddEdge(db, kv.DefaultCollectionID, 1, 2, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := AddEdge(db, kv.DefaultCollectionID, 1, 3, 0); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	edges, err := OutEdges(db, kv.DefaultCollectionID, 1)
	if err != nil {
		t.Fatalf("OutEdges: %v", err)
	}
	if len(edges) != 2 || edges[0].Target != 2 || edges[1].Target != 3 {
		t.Fatalf("unexpected edges: %+v", edges)
	}
}

func TestRemoveEdge(t *testing.T) {
	db := openMem(t)
	AddEdge(db, kv.DefaultCollectionID, 1, 2, 0)
	AddEdge(db, kv.DefaultCollectionID, 1, 3, 0)

	if err := RemoveEdge(db, kv.DefaultCollectionID, 1, 2); err != nil {
		t.Fatalf("RemoveEdge: %v", err)
	}
	edges, _ := OutEdges(db, kv.DefaultCollectionID, 1)
	if len(edges) != 1 || edges[0].Target != 3 {
		t.Fatalf("unexpected edges after removal: %+v", edges)
	}
}

func TestBFSTraversal(t *testing.T) {
	db := openMem(t)
	AddEdge(db, kv.DefaultCollectionID, 1, 2, 0)
	AddEdge(db, kv.DefaultCollectionID, 2, 3, 0)
	AddEdge(db, kv.DefaultCollectionID, 3, 4, 0)

	order, err := BFS(db, kv.DefaultCollectionID, 1, 2)
	if err != nil {
		t.Fatalf("BFS: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 3 {
		t.Fatalf("BFS(depth=2) = %v, want [2 3]", order)
	}
}
