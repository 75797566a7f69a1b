package graph

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// LocationSummary describes the occupancy of one location over a range of
// buckets. Humans are summed across the location's nodes per bucket first.
type LocationSummary struct {
	LocationID   string  `json:"location_id"`
	Buckets      int     `json:"buckets"`
	MeanHumans   float64 `json:"mean_humans"`
	MaxHumans    float64 `json:"max_humans"`
	P90Humans    float64 `json:"p90_humans"`
	TotalDevices int     `json:"total_devices"`
}

// Summarize groups recs by location. Records without a location are grouped
// under the empty id.
func Summarize(recs []density.DensityRecord) []LocationSummary {
	perBucket := make(map[string]map[time.Time]float64)
	devices := make(map[string]int)
	for _, r := range recs {
		m, ok := perBucket[r.LocationID]
		if !ok {
			m = make(map[time.Time]float64)
			perBucket[r.LocationID] = m
		}
		m[r.Timestamp] += float64(r.TotalEstimatedHumans)
		devices[r.LocationID] += r.TotalEstimatedDevices
	}

	out := make([]LocationSummary, 0, len(perBucket))
	for loc, m := range perBucket {
		xs := make([]float64, 0, len(m))
		for _, v := range m {
			xs = append(xs, v)
		}
		sort.Float64s(xs)
		out = append(out, LocationSummary{
			LocationID:   loc,
			Buckets:      len(xs),
			MeanHumans:   stat.Mean(xs, nil),
			MaxHumans:    floats.Max(xs),
			P90Humans:    stat.Quantile(0.9, stat.Empirical, xs, nil),
			TotalDevices: devices[loc],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out
}
