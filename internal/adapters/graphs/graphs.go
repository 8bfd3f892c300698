// Package graphs layers a vertex-adjacency edge list over the kv
// engine: each vertex's key holds its own encoded out-edge list, so
// traversal is a point read plus a linear scan of that one record's
// payload rather than a separate index structure.
package graphs

import (
	"encoding/binary"
	"fmt"
	"sort"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// Edge is one directed out-edge from a vertex.
type Edge struct {
	Target kv.Key
	ID     uint64 // kv.DefaultEdgeID when the edge carries no identity of its own
}

const edgeSize = 8 + 8

func encodeEdges(edges []Edge) []byte {
	buf := make([]byte, len(edges)*edgeSize)
	for i, e := range edges {
		binary.LittleEndian.PutUint64(buf[i*edgeSize:], uint64(e.Target))
		binary.LittleEndian.PutUint64(buf[i*edgeSize+8:], e.ID)
	}
	return buf
}

func decodeEdges(data []byte) ([]Edge, error) {
	if len(data)%edgeSize != 0 {
		return nil, fmt.Errorf("%w: malformed adjacency record", kverrors.ErrCorruption)
	}
	n := len(data) / edgeSize
	edges := make([]Edge, n)
	for i := 0; i < n; i++ {
		edges[i].Target = kv.Key(binary.LittleEndian.Uint64(data[i*edgeSize:]))
		edges[i].ID = binary.LittleEndian.Uint64(data[i*edgeSize+8:])
	}
	return edges, nil
}

// OutEdges returns the current out-edge list for vertex.
func OutEdges(db *kv.Database, col kv.CollectionID, vertex kv.Key) ([]Edge, error) {
	res, err := db.Read(kv.One(col), kv.Many([]kv.Key{vertex}), nil, 0)
	if err != nil {
		return nil, err
	}
	v, ok := res.Value(0)
	if !ok {
		return nil, nil
	}
	return decodeEdges(v)
}

// AddEdge inserts one out-edge, keeping the vertex's list sorted by
// target, and defaults its id to kv.DefaultEdgeID when the caller
// doesn't need to address the edge itself later.
func AddEdge(db *kv.Database, col kv.CollectionID, from, to kv.Key, edgeID uint64) error {
	if edgeID == 0 {
		edgeID = kv.DefaultEdgeID
	}
	edges, err := OutEdges(db, col, from)
	if err != nil {
		return err
	}
	i := sort.Search(len(edges), func(i int) bool { return edges[i].Target > to })
	edges = append(edges, Edge{})
	copy(edges[i+1:], edges[i:])
	edges[i] = Edge{Target: to, ID: edgeID}
	return db.Write(kv.One(col), kv.Many([]kv.Key{from}), kv.Many([][]byte{encodeEdges(edges)}), 0)
}

// RemoveEdge deletes every out-edge from->to, regardless of edge id.
func RemoveEdge(db *kv.Database, col kv.CollectionID, from, to kv.Key) error {
	edges, err := OutEdges(db, col, from)
	if err != nil {
		return err
	}
	kept := edges[:0]
	for _, e := range edges {
		if e.Target != to {
			kept = append(kept, e)
		}
	}
	return db.Write(kv.One(col), kv.Many([]kv.Key{from}), kv.Many([][]byte{encodeEdges(kept)}), 0)
}

// BFS performs a breadth-first traversal from start up to maxDepth hops,
// returning every reachable vertex in discovery order (start excluded).
func BFS(db *kv.Database, col kv.CollectionID, start kv.Key, maxDepth int) ([]kv.Key, error) {
	visited := map[kv.Key]bool{start: true}
	frontier := []kv.Key{start}
	var order []kv.Key

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []kv.Key
		for _, v := range frontier {
			edges, err := OutEdges(db, col, v)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if !visited[e.Target] {
					visited[e.Target] = true
					order = append(order, e.Target)
					next = append(next, e.Target)
				}
			}
		}
		frontier = next
	}
	return order, nil
}
