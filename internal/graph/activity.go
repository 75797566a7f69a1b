package graph

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// NodeTotals sums estimated devices per node, sorted by node id.
func NodeTotals(recs []density.DensityRecord) (nodes []string, totals []float64) {
	sums := make(map[string]int)
	for _, r := range recs {
		sums[r.NodeID] += r.TotalEstimatedDevices
	}
	for n := range sums {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	totals = make([]float64, len(nodes))
	for i, n := range nodes {
		totals[i] = float64(sums[n])
	}
	return nodes, totals
}

// NodeActivityPNG writes a bar chart of total devices per node as PNG.
func NodeActivityPNG(w io.Writer, recs []density.DensityRecord, width, height vg.Length) error {
	nodes, totals := NodeTotals(recs)

	p := plot.New()
	p.Title.Text = "Total activity per node"
	p.Y.Label.Text = "Estimated devices"
	p.Y.Min = 0

	if len(nodes) > 0 {
		bars, err := plotter.NewBarChart(plotter.Values(totals), vg.Points(20))
		if err != nil {
			return fmt.Errorf("bar chart: %w", err)
		}
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
		p.NominalX(nodes...)
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
