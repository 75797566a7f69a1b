package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
)

// attendance_history is the detection holding store: nodes append to it and
// each compaction pass reads a snapshot and clears what it read.

const insertDetectionSQL = `INSERT INTO attendance_history
	(node_id, packet_type, device_id, signal_strength, date_time)
	VALUES (?, ?, ?, ?, ?)`

func strengthArg(s *int) interface{} {
	if s == nil {
		return nil
	}
	return int64(*s)
}

// InsertDetection appends a single detection.
func (db *DB) InsertDetection(ctx context.Context, rec density.DetectionRecord) error {
	_, err := db.ExecContext(ctx, insertDetectionSQL,
		rec.NodeID, int(rec.PacketType), rec.DeviceID, strengthArg(rec.SignalStrength), toUnixNano(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// InsertDetections appends a batch in one transaction. An empty batch is
// logged and ignored.
func (db *DB) InsertDetections(ctx context.Context, recs []density.DetectionRecord) error {
	if len(recs) == 0 {
		monitoring.Warnf("insert detections: empty batch ignored")
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin detection batch: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			monitoring.Logf("detection batch rollback failed: %v", rbErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertDetectionSQL)
	if err != nil {
		return fmt.Errorf("prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.NodeID, int(rec.PacketType), rec.DeviceID, strengthArg(rec.SignalStrength), toUnixNano(rec.Timestamp)); err != nil {
			return fmt.Errorf("insert detection for node %s: %w", rec.NodeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit detection batch: %w", err)
	}
	return nil
}

// DetectionSnapshot reads every held detection in insertion order along with
// the id of the newest row read.
func (db *DB) DetectionSnapshot(ctx context.Context) (density.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, node_id, packet_type, device_id, signal_strength, date_time
		FROM attendance_history ORDER BY id`)
	if err != nil {
		return density.Snapshot{}, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var snap density.Snapshot
	for rows.Next() {
		var (
			id         int64
			rec        density.DetectionRecord
			packetType int
			strength   sql.NullInt64
			ts         int64
		)
		if err := rows.Scan(&id, &rec.NodeID, &packetType, &rec.DeviceID, &strength, &ts); err != nil {
			return density.Snapshot{}, fmt.Errorf("scan detection: %w", err)
		}
		rec.PacketType = density.PacketType(packetType)
		if strength.Valid {
			v := int(strength.Int64)
			rec.SignalStrength = &v
		}
		rec.Timestamp = db.fromUnixNano(ts)
		snap.Records = append(snap.Records, rec)
		if id > snap.HighWater {
			snap.HighWater = id
		}
	}
	if err := rows.Err(); err != nil {
		return density.Snapshot{}, fmt.Errorf("iterate detections: %w", err)
	}
	return snap, nil
}

// DeleteDetectionsThrough removes held detections with id <= highWater and
// returns the number removed.
func (db *DB) DeleteDetectionsThrough(ctx context.Context, highWater int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM attendance_history WHERE id <= ?`, highWater)
	if err != nil {
		return 0, fmt.Errorf("clear detections through %d: %w", highWater, err)
	}
	return res.RowsAffected()
}

// ClearDetections removes every held detection.
func (db *DB) ClearDetections(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM attendance_history`)
	if err != nil {
		return 0, fmt.Errorf("clear detections: %w", err)
	}
	return res.RowsAffected()
}

// CountDetections returns the number of held detections.
func (db *DB) CountDetections(ctx context.Context) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}
