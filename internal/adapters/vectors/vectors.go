// Package vectors layers fixed-dimension float32 vectors and a
// linear-scan nearest-neighbor search over the kv engine. It is
// intentionally the simplest of the four modality adapters: an index
// structure (HNSW, IVF, ...) is out of scope for an embedded engine
// whose core has no background threads (spec.md §9), so search here
// costs one collection scan.
package vectors

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// Metric selects the distance function used by Search.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: malformed vector record", kverrors.ErrCorruption)
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}

// Put stores one fixed-dimension vector at key.
func Put(db *kv.Database, col kv.CollectionID, key kv.Key, vec []float32) error {
	return db.Write(kv.One(col), kv.Many([]kv.Key{key}), kv.Many([][]byte{encodeVector(vec)}), 0)
}

// Get returns the vector stored at key.
func Get(db *kv.Database, col kv.CollectionID, key kv.Key) ([]float32, error) {
	res, err := db.Read(kv.One(col), kv.Many([]kv.Key{key}), nil, 0)
	if err != nil {
		return nil, err
	}
	v, ok := res.Value(0)
	if !ok {
		return nil, fmt.Errorf("%w: vector key %d", kverrors.ErrNotFound, key)
	}
	return decodeVector(v)
}

func distance(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricDot:
		var sum float32
		for i := range a {
			sum += a[i] * b[i]
		}
		return -sum // larger dot product -> "closer"
	case MetricCosine:
		var dot, na, nb float32
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	default: // MetricL2
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return float32(math.Sqrt(float64(sum)))
	}
}

// Neighbor is one Search result.
type Neighbor struct {
	Key      kv.Key
	Distance float32
}

// Search scans [start,end) in col, computing distance(query, v) for
// every stored vector, and returns the k closest in ascending distance
// order.
func Search(db *kv.Database, col kv.CollectionID, start, end kv.Key, query []float32, metric Metric, k int) ([]Neighbor, error) {
	scan, err := db.Scan([]kv.ScanTask{{Collection: col, Start: start, End: end, Limit: math.MaxInt32}}, nil, 0)
	if err != nil {
		return nil, err
	}

	neighbors := make([]Neighbor, 0, len(scan.Keys))
	for _, key := range scan.Keys {
		vec, err := Get(db, col, key)
		if err != nil {
			continue
		}
		if len(vec) != len(query) {
			continue
		}
		neighbors = append(neighbors, Neighbor{Key: key, Distance: distance(metric, query, vec)})
	}

	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Distance < neighbors[j].Distance })
	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}
