package density

import (
	"sort"
	"time"
)

// Compaction is the output of Compact.
type Compaction struct {
	Densities []DensityRecord
	// UnresolvedNodes lists node ids that had detections but no metadata.
	UnresolvedNodes []string
	// EmptyPairs counts (node, bucket) pairs skipped because no device in
	// the bucket survived suspicion filtering.
	EmptyPairs int
}

// SurvivorCounts returns, per bucket, the number of devices in the bucket
// that are not in suspicious. Counts are bucket wide and shared by every
// node that reported into the bucket.
func SurvivorCounts(idx Index, suspicious DeviceSet) map[time.Time]int {
	out := make(map[time.Time]int, len(idx))
	for b, devices := range idx {
		n := 0
		for id := range devices {
			if !suspicious.Contains(id) {
				n++
			}
		}
		out[b] = n
	}
	return out
}

// Compact emits one DensityRecord per distinct (node, bucket) pair among
// records whose bucket is present in idx and still has surviving devices.
// Output is ordered by node id then bucket.
func Compact(records []DetectionRecord, idx Index, suspicious DeviceSet, nodes NodeDirectory, factor float64) Compaction {
	survivors := SurvivorCounts(idx, suspicious)

	pairs := make(map[string]map[time.Time]struct{})
	for _, rec := range records {
		b := Bucket(rec.Timestamp)
		if _, ok := idx[b]; !ok {
			continue
		}
		buckets, ok := pairs[rec.NodeID]
		if !ok {
			buckets = make(map[time.Time]struct{})
			pairs[rec.NodeID] = buckets
		}
		buckets[b] = struct{}{}
	}

	nodeIDs := make([]string, 0, len(pairs))
	for id := range pairs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	var out Compaction
	for _, nodeID := range nodeIDs {
		node, found := Unresolved(nodeID).Resolve(nodes)
		buckets := make([]time.Time, 0, len(pairs[nodeID]))
		for b := range pairs[nodeID] {
			buckets = append(buckets, b)
		}
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

		unresolved := false
		for _, b := range buckets {
			n := survivors[b]
			if n == 0 {
				out.EmptyPairs++
				continue
			}
			if !found {
				unresolved = true
				continue
			}
			out.Densities = append(out.Densities, NewDensityRecord(b, node, n, factor))
		}
		if unresolved {
			out.UnresolvedNodes = append(out.UnresolvedNodes, nodeID)
		}
	}
	return out
}
