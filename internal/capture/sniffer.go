package capture

import (
	"sync"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
)

// DefaultMinStrength drops sightings weaker than -70 dBm.
const DefaultMinStrength = -70

// SnifferOptions configures a Sniffer. Zero values take defaults except
// MinStrength, where nil disables the strength filter.
type SnifferOptions struct {
	HashSalt         string
	MinStrength      *int
	EstimationFactor float64
	Window           time.Duration
	Location         *time.Location
	Clock            timeutil.Clock
}

// Batch is what a Sniffer has accumulated since the previous Flush.
type Batch struct {
	Detections      []density.DetectionRecord
	Event           density.NodeEvent
	DevicesSeen     int
	EstimatedHumans int
	Dropped         int
}

// Sniffer turns raw observations into hashed detection records for one node
// and keeps a rolling estimate of how many people are nearby.
type Sniffer struct {
	node   density.NodeRef
	hasher DeviceHasher
	window *RollingWindow
	min    *int
	factor float64
	loc    *time.Location
	clock  timeutil.Clock

	mu      sync.Mutex
	pending []density.DetectionRecord
	dropped int
}

// NewSniffer returns a sniffer that attributes observations to node.
func NewSniffer(node density.NodeRef, opts SnifferOptions) *Sniffer {
	s := &Sniffer{
		node:   node,
		hasher: NewDeviceHasher(opts.HashSalt),
		window: NewRollingWindow(opts.Window),
		min:    opts.MinStrength,
		factor: opts.EstimationFactor,
		loc:    opts.Location,
		clock:  opts.Clock,
	}
	if s.factor <= 0 {
		s.factor = 1
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	return s
}

// Window exposes the live device window.
func (s *Sniffer) Window() *RollingWindow { return s.window }

// Observe records o unless it is weaker than the configured minimum. It
// reports whether o was kept. A zero observation time means now.
func (s *Sniffer) Observe(o Observation) bool {
	if s.min != nil && o.Strength != nil && *o.Strength < *s.min {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return false
	}
	at := o.Time
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.In(s.loc)
	id := s.hasher.Hash(o.Address)
	s.window.Record(id, at)

	var strength *int
	if o.Strength != nil {
		strength = intPtr(*o.Strength)
	}
	s.mu.Lock()
	s.pending = append(s.pending, density.DetectionRecord{
		Timestamp:      at,
		NodeID:         s.node.ID(),
		DeviceID:       id,
		SignalStrength: strength,
		PacketType:     o.PacketType,
	})
	s.mu.Unlock()
	return true
}

// Flush prunes the window at now and returns everything observed since the
// last flush along with a heartbeat event for the node.
func (s *Sniffer) Flush(now time.Time) Batch {
	now = now.In(s.loc)
	s.window.Prune(now)

	s.mu.Lock()
	recs := s.pending
	dropped := s.dropped
	s.pending = nil
	s.dropped = 0
	s.mu.Unlock()

	seen := s.window.DistinctCount()
	b := Batch{
		Detections: recs,
		Event: density.NodeEvent{
			NodeID:          s.node.ID(),
			IsPowered:       true,
			IsReceivingData: len(recs) > 0,
			Timestamp:       now,
		},
		DevicesSeen:     seen,
		EstimatedHumans: density.EstimateHumans(seen, s.factor),
		Dropped:         dropped,
	}
	monitoring.Logf("node %s: devices_seen=%d total_estimated_humans=%d estimation_factor=%.2f detections=%d dropped=%d",
		s.node.ID(), b.DevicesSeen, b.EstimatedHumans, s.factor, len(recs), dropped)
	return b
}
