package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// Plan describes a synthetic day of traffic.
type Plan struct {
	Nodes     []string
	Start     time.Time
	Buckets   int
	Visitors  float64 // mean distinct visitors per node per bucket
	Pool      int     // size of the visitor population
	Residents int     // devices seen by every node in every bucket
	Salt      string
	Seed      uint64
}

// Generate draws detections for p. Residents are fixed devices such as
// printers that the persistent rule should filter out.
func Generate(p Plan) []density.DetectionRecord {
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	visitors := distuv.Poisson{Lambda: p.Visitors, Src: rng}
	hasher := capture.NewDeviceHasher(p.Salt)
	pool := max(p.Pool, 1)

	var out []density.DetectionRecord
	for b := 0; b < p.Buckets; b++ {
		bucket := density.Bucket(p.Start).Add(time.Duration(b) * density.BucketWidth)
		for _, node := range p.Nodes {
			for r := 0; r < p.Residents; r++ {
				out = append(out, sighting(rng, hasher, bucket, node, fmt.Sprintf("resident-%s-%d", node, r)))
			}
			n := int(visitors.Rand())
			for i := 0; i < n; i++ {
				out = append(out, sighting(rng, hasher, bucket, node, fmt.Sprintf("visitor-%d", rng.IntN(pool))))
			}
		}
	}
	return out
}

func sighting(rng *rand.Rand, h capture.DeviceHasher, bucket time.Time, node, device string) density.DetectionRecord {
	offset := time.Duration(rng.Int64N(int64(density.BucketWidth)))
	strength := -40 - rng.IntN(50)
	pt := density.PacketBluetooth
	if rng.IntN(3) == 0 {
		pt = density.PacketWiFi
	}
	return density.DetectionRecord{
		Timestamp:      bucket.Add(offset),
		NodeID:         node,
		DeviceID:       h.Hash(device),
		SignalStrength: &strength,
		PacketType:     pt,
	}
}
