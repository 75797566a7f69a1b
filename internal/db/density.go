package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
)

const upsertDensitySQL = `INSERT INTO density_history
	(date_time, location_id, node_id, total_estimated_devices, total_estimated_humans, estimation_factors)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (node_id, date_time) DO UPDATE SET
		location_id = excluded.location_id,
		total_estimated_devices = excluded.total_estimated_devices,
		total_estimated_humans = excluded.total_estimated_humans,
		estimation_factors = excluded.estimation_factors`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func densityArgs(d density.DensityRecord) []interface{} {
	return []interface{}{
		toUnixNano(density.Bucket(d.Timestamp)), nullString(d.LocationID), d.NodeID,
		d.TotalEstimatedDevices, d.TotalEstimatedHumans, d.EstimationFactor,
	}
}

// InsertDensity writes one density record, replacing any record already
// stored for the same node and bucket.
func (db *DB) InsertDensity(ctx context.Context, d density.DensityRecord) error {
	if _, err := db.ExecContext(ctx, upsertDensitySQL, densityArgs(d)...); err != nil {
		return fmt.Errorf("insert density for node %s: %w", d.NodeID, err)
	}
	return nil
}

// UpsertDensities writes a batch in one transaction keyed by
// (node_id, date_time), so rerunning a pass over the same window is
// idempotent. An empty batch is logged and ignored.
func (db *DB) UpsertDensities(ctx context.Context, recs []density.DensityRecord) (int, error) {
	if len(recs) == 0 {
		monitoring.Warnf("upsert densities: empty batch ignored")
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin density batch: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			monitoring.Logf("density batch rollback failed: %v", rbErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertDensitySQL)
	if err != nil {
		return 0, fmt.Errorf("prepare density upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range recs {
		if _, err := stmt.ExecContext(ctx, densityArgs(d)...); err != nil {
			return 0, fmt.Errorf("upsert density for node %s: %w", d.NodeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit density batch: %w", err)
	}
	return len(recs), nil
}

// DensityFilter narrows FindDensities. Zero fields do not filter.
type DensityFilter struct {
	NodeID     string
	LocationID string
	From       time.Time // inclusive
	To         time.Time // exclusive
	Limit      int
}

// FindDensities returns stored density records ordered by bucket then node.
func (db *DB) FindDensities(ctx context.Context, f DensityFilter) ([]density.DensityRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, f.NodeID)
	}
	if f.LocationID != "" {
		where = append(where, "location_id = ?")
		args = append(args, f.LocationID)
	}
	if !f.From.IsZero() {
		where = append(where, "date_time >= ?")
		args = append(args, toUnixNano(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date_time < ?")
		args = append(args, toUnixNano(f.To))
	}

	q := `SELECT date_time, location_id, node_id, total_estimated_devices, total_estimated_humans, estimation_factors
		FROM density_history`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date_time, node_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query densities: %w", err)
	}
	defer rows.Close()

	var out []density.DensityRecord
	for rows.Next() {
		var (
			d        density.DensityRecord
			ts       int64
			location sql.NullString
		)
		if err := rows.Scan(&ts, &location, &d.NodeID, &d.TotalEstimatedDevices, &d.TotalEstimatedHumans, &d.EstimationFactor); err != nil {
			return nil, fmt.Errorf("scan density: %w", err)
		}
		d.Timestamp = db.fromUnixNano(ts)
		d.LocationID = location.String
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate densities: %w", err)
	}
	return out, nil
}
