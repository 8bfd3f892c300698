package pool

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kartikbazzad/ustorekv/internal/benchstore"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// TestConcurrentWriteWorkloadRecordsResults runs the same concurrent-writer
// shape as TestConcurrentWritersSameDB, but measures per-write latency and
// persists the workload's throughput/p95/p99 into a benchstore run the way
// the teacher's matrix runner persisted each load-test configuration's
// results for later analysis.
func TestConcurrentWriteWorkloadRecordsResults(t *testing.T) {
	dir := t.TempDir()
	p := NewPool(dir, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	id, err := p.OpenOrCreateDB("bench")
	if err != nil {
		t.Fatalf("OpenOrCreateDB: %v", err)
	}
	db, err := p.Database(id)
	if err != nil {
		t.Fatalf("Database: %v", err)
	}

	const writers = 8
	const perWriter = 100

	latencies := make([][]time.Duration, writers)
	var wg sync.WaitGroup
	wg.Add(writers)
	start := time.Now()
	for w := 0; w < writers; w++ {
		go func(base int) {
			defer wg.Done()
			own := make([]time.Duration, 0, perWriter)
			for i := 0; i < perWriter; i++ {
				key := kv.Key(base*perWriter + i)
				opStart := time.Now()
				if err := db.Write(kv.One(kv.DefaultCollectionID), kv.Many([]kv.Key{key}), kv.Many([][]byte{[]byte("v")}), 0); err != nil {
					t.Errorf("Write(%d): %v", key, err)
					return
				}
				own = append(own, time.Since(opStart))
			}
			latencies[base] = own
		}(w)
	}
	wg.Wait()
	duration := time.Since(start)

	all := make([]time.Duration, 0, writers*perWriter)
	for _, ls := range latencies {
		all = append(all, ls...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	totalOps := int64(len(all))
	result := benchstore.WorkloadResult{
		Name:             "concurrent-writers-same-db",
		Writers:          writers,
		OpsPerWriter:     perWriter,
		Duration:         duration,
		TotalOps:         totalOps,
		ThroughputOpsSec: float64(totalOps) / duration.Seconds(),
		P95LatencyMs:     percentileMs(all, 0.95),
		P99LatencyMs:     percentileMs(all, 0.99),
		Success:          totalOps == writers*perWriter,
	}

	resultsDB, err := benchstore.Open(benchstore.Path(t.TempDir()))
	if err != nil {
		t.Fatalf("benchstore.Open: %v", err)
	}
	defer resultsDB.Close()

	runID, err := benchstore.InsertRun(resultsDB)
	if err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	if err := benchstore.InsertResult(resultsDB, runID, result); err != nil {
		t.Fatalf("InsertResult: %v", err)
	}
	successCount := 0
	if result.Success {
		successCount = 1
	}
	if err := benchstore.UpdateRun(resultsDB, runID, 1, successCount, 1-successCount); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	latest, err := benchstore.QueryLatestRunID(resultsDB)
	if err != nil {
		t.Fatalf("QueryLatestRunID: %v", err)
	}
	if latest != runID {
		t.Fatalf("QueryLatestRunID = %d, want %d", latest, runID)
	}

	stored, err := benchstore.QueryResultsByRunID(resultsDB, runID)
	if err != nil {
		t.Fatalf("QueryResultsByRunID: %v", err)
	}
	if len(stored) != 1 || stored[0].Name != result.Name || !stored[0].Success {
		t.Fatalf("QueryResultsByRunID round trip mismatch: %+v", stored)
	}
}

func percentileMs(sorted []time.Duration, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx]) / float64(time.Millisecond)
}
