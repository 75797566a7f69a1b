package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// ErrNotFound is returned when a node or location id does not exist.
var ErrNotFound = errors.New("not found")

// SaveLocation inserts or replaces a location.
func (db *DB) SaveLocation(ctx context.Context, l density.Location) error {
	if l.ID == "" {
		return fmt.Errorf("save location: empty location_id")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO locations (location_id, name, building, level, room, description)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			name = excluded.name, building = excluded.building, level = excluded.level,
			room = excluded.room, description = excluded.description`,
		l.ID, l.Name, l.Building, l.Level, l.Room, l.Description)
	if err != nil {
		return fmt.Errorf("save location %s: %w", l.ID, err)
	}
	return nil
}

const selectLocationSQL = `SELECT location_id, name, building, level, room, description FROM locations`

// GetLocation returns the location with id.
func (db *DB) GetLocation(ctx context.Context, id string) (density.Location, error) {
	var l density.Location
	err := db.QueryRowContext(ctx, selectLocationSQL+` WHERE location_id = ?`, id).
		Scan(&l.ID, &l.Name, &l.Building, &l.Level, &l.Room, &l.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return l, fmt.Errorf("get location %s: %w", id, err)
	}
	return l, nil
}

// ListLocations returns all locations ordered by id.
func (db *DB) ListLocations(ctx context.Context) ([]density.Location, error) {
	rows, err := db.QueryContext(ctx, selectLocationSQL+` ORDER BY location_id`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []density.Location
	for rows.Next() {
		var l density.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Building, &l.Level, &l.Room, &l.Description); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveNode inserts or replaces a node. A non-empty LocationID must refer to
// an existing location.
func (db *DB) SaveNode(ctx context.Context, n density.Node) error {
	if n.ID == "" {
		return fmt.Errorf("save node: empty node_id")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO nodes (node_id, name, ip_address, mac_address, model, brand,
			ram_size, ram_unit, storage_size, storage_unit, storage_type,
			is_poe_compatible, is_wireless_connectivity, location_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (node_id) DO UPDATE SET
			name = excluded.name, ip_address = excluded.ip_address, mac_address = excluded.mac_address,
			model = excluded.model, brand = excluded.brand, ram_size = excluded.ram_size,
			ram_unit = excluded.ram_unit, storage_size = excluded.storage_size,
			storage_unit = excluded.storage_unit, storage_type = excluded.storage_type,
			is_poe_compatible = excluded.is_poe_compatible,
			is_wireless_connectivity = excluded.is_wireless_connectivity,
			location_id = excluded.location_id`,
		n.ID, n.Name, n.IPAddress, n.MACAddress, n.Model, n.Brand,
		n.RAMSize, n.RAMUnit, n.StorageSize, n.StorageUnit, n.StorageType,
		n.IsPoECompatible, n.IsWirelessConnectivity, nullString(n.LocationID))
	if err != nil {
		return fmt.Errorf("save node %s: %w", n.ID, err)
	}
	return nil
}

const selectNodeSQL = `SELECT node_id, name, ip_address, mac_address, model, brand,
	ram_size, ram_unit, storage_size, storage_unit, storage_type,
	is_poe_compatible, is_wireless_connectivity, location_id FROM nodes`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(r rowScanner) (density.Node, error) {
	var (
		n        density.Node
		location sql.NullString
	)
	err := r.Scan(&n.ID, &n.Name, &n.IPAddress, &n.MACAddress, &n.Model, &n.Brand,
		&n.RAMSize, &n.RAMUnit, &n.StorageSize, &n.StorageUnit, &n.StorageType,
		&n.IsPoECompatible, &n.IsWirelessConnectivity, &location)
	n.LocationID = location.String
	return n, err
}

// GetNode returns the node with id.
func (db *DB) GetNode(ctx context.Context, id string) (density.Node, error) {
	n, err := scanNode(db.QueryRowContext(ctx, selectNodeSQL+` WHERE node_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return n, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

// ListNodes returns all nodes ordered by id.
func (db *DB) ListNodes(ctx context.Context) ([]density.Node, error) {
	rows, err := db.QueryContext(ctx, selectNodeSQL+` ORDER BY node_id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []density.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ResolveNode resolves a node reference against the nodes table.
func (db *DB) ResolveNode(ctx context.Context, ref density.NodeRef) (density.Node, error) {
	if ref.IsResolved() {
		n, _ := ref.Resolve(nil)
		return n, nil
	}
	return db.GetNode(ctx, ref.ID())
}
