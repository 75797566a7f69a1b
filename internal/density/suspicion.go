package density

import "sort"

// DeviceSet is a set of device ids.
type DeviceSet map[string]struct{}

// Add inserts id.
func (s DeviceSet) Add(id string) { s[id] = struct{}{} }

// Contains reports whether id is in the set. A nil set contains nothing.
func (s DeviceSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s DeviceSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Classification is the outcome of the suspicion rules over one index.
type Classification struct {
	// Suspicious is the union of every flagging rule. Compaction removes
	// these devices from all buckets.
	Suspicious DeviceSet
	// Persistent devices appear in more buckets than allowed.
	Persistent DeviceSet
	// OutOfHours devices were seen before opening or after closing and were
	// not already Persistent.
	OutOfHours DeviceSet
	// LowActivity devices had fewer than MinPackets detections in some
	// bucket. They are reported only and never flagged.
	LowActivity DeviceSet
	// Occurrences is the number of distinct buckets each device appears in.
	Occurrences map[string]int
}

// BucketOccurrences counts, per device, the distinct buckets it appears in.
func BucketOccurrences(idx Index) map[string]int {
	out := make(map[string]int)
	for _, devices := range idx {
		for id := range devices {
			out[id]++
		}
	}
	return out
}

// Classify applies the suspicion rules to idx.
//
// A device is persistent when its bucket occurrence count is strictly
// greater than MaxBucketOccurrences. A device that is not persistent is out
// of hours when, in any bucket, its earliest detection hour is before
// Time.Earliest or its latest detection hour is after Time.Latest. Hours are
// read in the location of the detection timestamps.
func Classify(idx Index, opts SuspicionOptions) Classification {
	c := Classification{
		Suspicious:  make(DeviceSet),
		Persistent:  make(DeviceSet),
		OutOfHours:  make(DeviceSet),
		LowActivity: make(DeviceSet),
		Occurrences: BucketOccurrences(idx),
	}

	for id, n := range c.Occurrences {
		if n > opts.MaxBucketOccurrences {
			c.Persistent.Add(id)
			c.Suspicious.Add(id)
		}
	}

	for _, devices := range idx {
		for id, s := range devices {
			if s.Count < opts.MinPackets {
				c.LowActivity.Add(id)
			}
			if c.Suspicious.Contains(id) {
				continue
			}
			if s.Earliest.Hour() < opts.Time.Earliest || s.Latest.Hour() > opts.Time.Latest {
				c.OutOfHours.Add(id)
				c.Suspicious.Add(id)
			}
		}
	}
	return c
}
