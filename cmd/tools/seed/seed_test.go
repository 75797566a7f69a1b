package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

func testPlan() Plan {
	return Plan{
		Nodes:     []string{"n1", "n2"},
		Start:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Buckets:   8,
		Visitors:  5,
		Pool:      50,
		Residents: 1,
		Salt:      "salt",
		Seed:      42,
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(testPlan())
	b := Generate(testPlan())
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	p := testPlan()
	p.Seed = 43
	assert.NotEqual(t, a, Generate(p))
}

func TestGenerateStaysInRange(t *testing.T) {
	p := testPlan()
	end := p.Start.Add(time.Duration(p.Buckets) * density.BucketWidth)
	for _, r := range Generate(p) {
		assert.False(t, r.Timestamp.Before(p.Start), r.Timestamp)
		assert.True(t, r.Timestamp.Before(end), r.Timestamp)
		require.NotNil(t, r.SignalStrength)
		assert.LessOrEqual(t, *r.SignalStrength, -40)
		assert.Greater(t, *r.SignalStrength, -90)
		assert.Len(t, r.DeviceID, 64)
	}
}

func TestResidentsAreFlaggedPersistent(t *testing.T) {
	p := testPlan()
	recs := Generate(p)

	opts := density.Options{
		Suspicion: density.SuspicionOptions{
			Time:                 density.HourBounds{Earliest: 0, Latest: 23},
			MaxBucketOccurrences: p.Buckets - 1,
		},
		Strength: density.StrengthOptions{
			WiFi:        density.Bounds{Lowest: 0, Highest: -100},
			Bluetooth:   density.Bounds{Lowest: 0, Highest: -100},
			IncludeNull: true,
		},
		EstimationFactor: 1,
	}
	dir := density.NewNodeDirectory([]density.Node{{ID: "n1"}, {ID: "n2"}})
	res := density.Aggregate(recs, opts, dir)

	h := capture.NewDeviceHasher(p.Salt)
	assert.True(t, res.Classification.Persistent.Contains(h.Hash("resident-n1-0")))
	assert.True(t, res.Classification.Persistent.Contains(h.Hash("resident-n2-0")))
}
