// Package testutil provides fixtures shared by tests outside internal/db.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// NewDB opens a migrated SQLite database in a temp dir that returns times
// in loc. It is closed when the test ends.
func NewDB(t testing.TB, loc *time.Location) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "dpd.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	store.SetLocation(loc)
	t.Cleanup(func() { store.Close() })
	return store
}

// Perth loads Australia/Perth, the zone the deployment runs in.
func Perth(t testing.TB) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Perth")
	if err != nil {
		t.Fatalf("load Australia/Perth: %v", err)
	}
	return loc
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Seed saves locations then nodes.
func Seed(t testing.TB, store *db.DB, locs []density.Location, nodes []density.Node) {
	t.Helper()
	ctx := context.Background()
	for _, l := range locs {
		if err := store.SaveLocation(ctx, l); err != nil {
			t.Fatalf("save location %s: %v", l.ID, err)
		}
	}
	for _, n := range nodes {
		if err := store.SaveNode(ctx, n); err != nil {
			t.Fatalf("save node %s: %v", n.ID, err)
		}
	}
}

// Detection builds a record for node and device at t.
func Detection(at time.Time, node, device string, strength *int, pt density.PacketType) density.DetectionRecord {
	return density.DetectionRecord{
		Timestamp:      at,
		NodeID:         node,
		DeviceID:       device,
		SignalStrength: strength,
		PacketType:     pt,
	}
}
