// Package benchstore persists concurrency-benchmark results to a SQLite
// database, the way the teacher's load-test matrix runner persisted
// per-configuration throughput/latency rows for later analysis, adapted
// here to the engine's own Write/Read/Scan workloads instead of document
// CRUD.
package benchstore

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const resultsDBFilename = "bench_results.db"

// Path returns the path to the results SQLite DB for a given directory.
func Path(dir string) string {
	return filepath.Join(dir, resultsDBFilename)
}

// Open opens or creates the results database at the given path.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open bench results db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			total_workloads INTEGER DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			fail_count INTEGER DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			workload_name TEXT NOT NULL,
			writers INTEGER NOT NULL,
			ops_per_writer INTEGER NOT NULL,
			duration_sec REAL NOT NULL,
			total_ops INTEGER NOT NULL,
			throughput_ops_sec REAL NOT NULL,
			p95_latency_ms REAL NOT NULL,
			p99_latency_ms REAL NOT NULL,
			success INTEGER NOT NULL
		);
	`)
	return err
}

// WorkloadResult is one concurrency workload's measured throughput and
// tail latency, grouped under a run.
type WorkloadResult struct {
	Name             string
	Writers          int
	OpsPerWriter     int
	Duration         time.Duration
	TotalOps         int64
	ThroughputOpsSec float64
	P95LatencyMs     float64
	P99LatencyMs     float64
	Success          bool
}

// InsertRun inserts a new run row and returns its id.
func InsertRun(db *sql.DB) (int64, error) {
	startedAt := time.Now().UTC().Format(time.RFC3339)
	res, err := db.Exec(`INSERT INTO runs (started_at) VALUES (?)`, startedAt)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRun finalizes a run's counters and finished_at timestamp.
func UpdateRun(db *sql.DB, runID int64, total, success, fail int) error {
	finishedAt := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(
		`UPDATE runs SET finished_at = ?, total_workloads = ?, success_count = ?, fail_count = ? WHERE id = ?`,
		finishedAt, total, success, fail, runID,
	)
	return err
}

// InsertResult inserts a single workload result row under the given run.
func InsertResult(db *sql.DB, runID int64, r WorkloadResult) error {
	success := 0
	if r.Success {
		success = 1
	}
	_, err := db.Exec(
		`INSERT INTO results (
			run_id, workload_name, writers, ops_per_writer,
			duration_sec, total_ops, throughput_ops_sec, p95_latency_ms, p99_latency_ms, success
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Name, r.Writers, r.OpsPerWriter,
		r.Duration.Seconds(), r.TotalOps, r.ThroughputOpsSec, r.P95LatencyMs, r.P99LatencyMs, success,
	)
	return err
}

// QueryLatestRunID returns the id of the most recent run, or 0 if none.
func QueryLatestRunID(db *sql.DB) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// QueryResultsByRunID returns all workload results recorded under a run.
func QueryResultsByRunID(db *sql.DB, runID int64) ([]WorkloadResult, error) {
	rows, err := db.Query(
		`SELECT workload_name, writers, ops_per_writer, duration_sec, total_ops,
			throughput_ops_sec, p95_latency_ms, p99_latency_ms, success
		 FROM results WHERE run_id = ? ORDER BY workload_name`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []WorkloadResult
	for rows.Next() {
		var (
			r        WorkloadResult
			durSec   float64
			success  int
		)
		if err := rows.Scan(
			&r.Name, &r.Writers, &r.OpsPerWriter, &durSec, &r.TotalOps,
			&r.ThroughputOpsSec, &r.P95LatencyMs, &r.P99LatencyMs, &success,
		); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durSec * float64(time.Second))
		r.Success = success != 0
		list = append(list, r)
	}
	return list, rows.Err()
}
