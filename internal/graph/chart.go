// Package graph renders stored density records as charts and summaries.
package graph

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// AssetsHost serves the echarts javascript bundle.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

const bucketLabel = "2006-01-02 15:04"

// DensityLine renders an HTML line chart of estimated humans per node with
// one point per bucket. Buckets where a node has no record are gaps.
func DensityLine(w io.Writer, recs []density.DensityRecord, title string) error {
	bucketSet := make(map[time.Time]struct{})
	byNode := make(map[string]map[time.Time]int)
	for _, r := range recs {
		bucketSet[r.Timestamp] = struct{}{}
		m, ok := byNode[r.NodeID]
		if !ok {
			m = make(map[time.Time]int)
			byNode[r.NodeID] = m
		}
		m[r.Timestamp] += r.TotalEstimatedHumans
	}

	buckets := make([]time.Time, 0, len(bucketSet))
	for b := range bucketSet {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Format(bucketLabel)
	}

	nodes := make([]string, 0, len(byNode))
	for n := range byNode {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	subtitle := "no data"
	if len(buckets) > 0 {
		subtitle = fmt.Sprintf("%s to %s, %d nodes", labels[0], labels[len(labels)-1], len(nodes))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Estimated humans", NameLocation: "middle", NameGap: 35}),
	)
	line.SetXAxis(labels)
	for _, n := range nodes {
		data := make([]opts.LineData, len(buckets))
		for i, b := range buckets {
			if v, ok := byNode[n][b]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(n, data)
	}
	return line.Render(w)
}
