package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CompactionRun is the persisted summary of one compaction pass.
type CompactionRun struct {
	RunID             string    `json:"run_id"`
	Trigger           string    `json:"trigger"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
	RecordsRead       int       `json:"records_read"`
	DensitiesWritten  int       `json:"densities_written"`
	SuspiciousDevices int       `json:"suspicious_devices"`
	RecordsCleared    int64     `json:"records_cleared"`
	Error             string    `json:"error,omitempty"`
}

// RecordCompactionRun stores or updates a run summary.
func (db *DB) RecordCompactionRun(ctx context.Context, r CompactionRun) error {
	var finished sql.NullInt64
	if !r.FinishedAt.IsZero() {
		finished = sql.NullInt64{Int64: toUnixNano(r.FinishedAt), Valid: true}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO compaction_runs (run_id, run_trigger, started_at, finished_at,
			records_read, densities_written, suspicious_devices, records_cleared, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = excluded.finished_at, records_read = excluded.records_read,
			densities_written = excluded.densities_written,
			suspicious_devices = excluded.suspicious_devices,
			records_cleared = excluded.records_cleared, error = excluded.error`,
		r.RunID, r.Trigger, toUnixNano(r.StartedAt), finished,
		r.RecordsRead, r.DensitiesWritten, r.SuspiciousDevices, r.RecordsCleared, r.Error)
	if err != nil {
		return fmt.Errorf("record compaction run %s: %w", r.RunID, err)
	}
	return nil
}

// RecentCompactionRuns returns up to limit runs, newest first.
func (db *DB) RecentCompactionRuns(ctx context.Context, limit int) ([]CompactionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, run_trigger, started_at, finished_at,
			records_read, densities_written, suspicious_devices, records_cleared, error
		FROM compaction_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query compaction runs: %w", err)
	}
	defer rows.Close()

	var out []CompactionRun
	for rows.Next() {
		var (
			r        CompactionRun
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.RunID, &r.Trigger, &started, &finished,
			&r.RecordsRead, &r.DensitiesWritten, &r.SuspiciousDevices, &r.RecordsCleared, &r.Error); err != nil {
			return nil, fmt.Errorf("scan compaction run: %w", err)
		}
		r.StartedAt = db.fromUnixNano(started)
		if finished.Valid {
			r.FinishedAt = db.fromUnixNano(finished.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
