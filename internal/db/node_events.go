package db

import (
	"context"
	"fmt"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// RecordNodeEvent stores a node heartbeat.
func (db *DB) RecordNodeEvent(ctx context.Context, e density.NodeEvent) error {
	_, err := db.ExecContext(ctx, `INSERT INTO node_events (node_id, is_powered, is_receiving_data, date_time)
		VALUES (?, ?, ?, ?)`, e.NodeID, e.IsPowered, e.IsReceivingData, toUnixNano(e.Timestamp))
	if err != nil {
		return fmt.Errorf("record node event for %s: %w", e.NodeID, err)
	}
	return nil
}

// LatestNodeEvents returns the most recent heartbeat of every node that has
// reported, ordered by node id.
func (db *DB) LatestNodeEvents(ctx context.Context) ([]density.NodeEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT e.node_id, e.is_powered, e.is_receiving_data, e.date_time
		FROM node_events e
		JOIN (SELECT node_id, MAX(id) AS id FROM node_events GROUP BY node_id) latest
			ON latest.id = e.id
		ORDER BY e.node_id`)
	if err != nil {
		return nil, fmt.Errorf("query node events: %w", err)
	}
	defer rows.Close()

	var out []density.NodeEvent
	for rows.Next() {
		var (
			e  density.NodeEvent
			ts int64
		)
		if err := rows.Scan(&e.NodeID, &e.IsPowered, &e.IsReceivingData, &ts); err != nil {
			return nil, fmt.Errorf("scan node event: %w", err)
		}
		e.Timestamp = db.fromUnixNano(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
