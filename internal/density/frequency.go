package density

import (
	"sort"
	"time"
)

// DeviceStats summarises one device's detections inside one bucket.
type DeviceStats struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
	Count    int       `json:"count"`
}

func (s DeviceStats) merge(t time.Time) DeviceStats {
	if s.Count == 0 {
		return DeviceStats{Earliest: t, Latest: t, Count: 1}
	}
	if t.Before(s.Earliest) {
		s.Earliest = t
	}
	if t.After(s.Latest) {
		s.Latest = t
	}
	s.Count++
	return s
}

// Index maps bucket start to device id to the device's stats in that bucket.
// Keys are produced by Bucket, so records must share a time.Location for
// equal instants to land on the same key.
type Index map[time.Time]map[string]DeviceStats

// Include reports whether rec passes the strength filter. A record with a
// strength is kept only when it is strictly below the lowest bound of its
// category. The highest bound is not consulted. Records without a strength
// follow IncludeNull.
func Include(rec DetectionRecord, opts StrengthOptions) bool {
	if rec.SignalStrength == nil {
		return opts.IncludeNull
	}
	return *rec.SignalStrength < opts.BoundsFor(rec.PacketType).Lowest
}

// BuildIndex folds the included records into a fresh index. The result does
// not depend on record order.
func BuildIndex(records []DetectionRecord, opts StrengthOptions) Index {
	idx := make(Index)
	for _, rec := range records {
		if Include(rec, opts) {
			idx.Add(rec)
		}
	}
	return idx
}

// Add folds a record into the index without filtering.
func (idx Index) Add(rec DetectionRecord) {
	b := Bucket(rec.Timestamp)
	devices, ok := idx[b]
	if !ok {
		devices = make(map[string]DeviceStats)
		idx[b] = devices
	}
	devices[rec.DeviceID] = devices[rec.DeviceID].merge(rec.Timestamp)
}

// Has reports whether bucket has at least one included detection.
func (idx Index) Has(bucket time.Time) bool {
	_, ok := idx[Bucket(bucket)]
	return ok
}

// Buckets returns the bucket keys in chronological order.
func (idx Index) Buckets() []time.Time {
	out := make([]time.Time, 0, len(idx))
	for b := range idx {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Devices returns the device ids seen in bucket, sorted.
func (idx Index) Devices(bucket time.Time) []string {
	devices := idx[Bucket(bucket)]
	out := make([]string, 0, len(devices))
	for id := range devices {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stats returns the stats of device in bucket.
func (idx Index) Stats(bucket time.Time, device string) (DeviceStats, bool) {
	s, ok := idx[Bucket(bucket)][device]
	return s, ok
}

// Detections returns the number of records folded into the index.
func (idx Index) Detections() int {
	n := 0
	for _, devices := range idx {
		for _, s := range devices {
			n += s.Count
		}
	}
	return n
}
