package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// BucketRow is one half-hour bucket of the replayed capture.
type BucketRow struct {
	Bucket          time.Time `json:"bucket"`
	Devices         int       `json:"devices"`
	Detections      int       `json:"detections"`
	Survivors       int       `json:"survivors"`
	EstimatedHumans int       `json:"estimated_humans"`
}

// AnalysisResult is what a replay of one capture produced.
type AnalysisResult struct {
	PCAPFile         string         `json:"pcap_file"`
	NodeID           string         `json:"node_id"`
	Observations     int            `json:"observations"`
	Kept             int            `json:"kept"`
	Dropped          int            `json:"dropped"`
	DistinctDevices  int            `json:"distinct_devices"`
	ByPacketType     map[string]int `json:"by_packet_type"`
	Persistent       int            `json:"persistent_devices"`
	OutOfHours       int            `json:"out_of_hours_devices"`
	Buckets          []BucketRow    `json:"buckets"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// Analyse replays src through a sniffer and runs the aggregation the server
// would apply, without touching any store.
func Analyse(ctx context.Context, src capture.Source, nodeID string, sniff capture.SnifferOptions, opts density.Options) (*AnalysisResult, error) {
	started := time.Now()
	s := capture.NewSniffer(density.Unresolved(nodeID), sniff)

	res := &AnalysisResult{NodeID: nodeID, ByPacketType: make(map[string]int)}
	err := src.Run(ctx, func(o capture.Observation) {
		res.Observations++
		if s.Observe(o) {
			res.Kept++
			res.ByPacketType[o.PacketType.String()]++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	batch := s.Flush(time.Now())
	res.Dropped = batch.Dropped

	devices := make(map[string]struct{})
	for _, r := range batch.Detections {
		devices[r.DeviceID] = struct{}{}
	}
	res.DistinctDevices = len(devices)

	node := density.Node{ID: nodeID}
	agg := density.Aggregate(batch.Detections, opts, density.NewNodeDirectory([]density.Node{node}))
	res.Persistent = len(agg.Classification.Persistent)
	res.OutOfHours = len(agg.Classification.OutOfHours)

	survivors := density.SurvivorCounts(agg.Index, agg.Classification.Suspicious)
	for _, b := range agg.Index.Buckets() {
		devs := agg.Index.Devices(b)
		seen := 0
		for _, id := range devs {
			if st, ok := agg.Index.Stats(b, id); ok {
				seen += st.Count
			}
		}
		res.Buckets = append(res.Buckets, BucketRow{
			Bucket:          b,
			Devices:         len(devs),
			Detections:      seen,
			Survivors:       survivors[b],
			EstimatedHumans: density.EstimateHumans(survivors[b], opts.EstimationFactor),
		})
	}

	res.ProcessingTimeMs = time.Since(started).Milliseconds()
	return res, nil
}

func printSummary(w io.Writer, r *AnalysisResult) {
	fmt.Fprintln(w, "\n========== Capture Replay Summary ==========")
	fmt.Fprintf(w, "File: %s (node %s)\n", r.PCAPFile, r.NodeID)
	fmt.Fprintf(w, "Observations: %d, kept %d, dropped %d\n", r.Observations, r.Kept, r.Dropped)
	fmt.Fprintf(w, "Distinct devices: %d (persistent %d, out of hours %d)\n", r.DistinctDevices, r.Persistent, r.OutOfHours)
	types := make([]string, 0, len(r.ByPacketType))
	for k := range r.ByPacketType {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		fmt.Fprintf(w, "  %s: %d\n", k, r.ByPacketType[k])
	}
	fmt.Fprintln(w)
	for _, b := range r.Buckets {
		fmt.Fprintf(w, "%s  devices=%d detections=%d survivors=%d humans=%d\n",
			b.Bucket.Format("2006-01-02 15:04"), b.Devices, b.Detections, b.Survivors, b.EstimatedHumans)
	}
	fmt.Fprintln(w, "============================================")
}

func writeBucketsCSV(w io.Writer, rows []BucketRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"bucket", "devices", "detections", "survivors", "estimated_humans"}); err != nil {
		return err
	}
	for _, b := range rows {
		row := []string{
			b.Bucket.Format(time.RFC3339),
			strconv.Itoa(b.Devices),
			strconv.Itoa(b.Detections),
			strconv.Itoa(b.Survivors),
			strconv.Itoa(b.EstimatedHumans),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
