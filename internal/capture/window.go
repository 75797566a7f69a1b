package capture

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is how long a device counts towards the live estimate after
// it was last heard.
const DefaultWindow = 5 * time.Minute

// RollingWindow tracks the last time each device was seen and forgets
// devices older than its width.
type RollingWindow struct {
	width time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewRollingWindow returns a window of the given width, or DefaultWindow.
func NewRollingWindow(width time.Duration) *RollingWindow {
	if width <= 0 {
		width = DefaultWindow
	}
	return &RollingWindow{width: width, lastSeen: make(map[string]time.Time)}
}

// Width returns the window width.
func (w *RollingWindow) Width() time.Duration { return w.width }

// Record marks id as seen at t. Out of order calls never move a device's
// last sighting backwards.
func (w *RollingWindow) Record(id string, t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.lastSeen[id]; ok && prev.After(t) {
		return
	}
	w.lastSeen[id] = t
}

// Prune drops devices last seen before now minus the width and reports how
// many were removed.
func (w *RollingWindow) Prune(now time.Time) int {
	cutoff := now.Add(-w.width)
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for id, seen := range w.lastSeen {
		if seen.Before(cutoff) {
			delete(w.lastSeen, id)
			removed++
		}
	}
	return removed
}

// DistinctCount is the number of devices currently in the window.
func (w *RollingWindow) DistinctCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lastSeen)
}

// Devices returns the ids in the window, sorted.
func (w *RollingWindow) Devices() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.lastSeen))
	for id := range w.lastSeen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
