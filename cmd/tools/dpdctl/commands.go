package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/compaction"
	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/graph"
	"github.com/cameronsims/DynamicPopulationDensity/internal/httputil"
)

var errUsage = errors.New("usage: dpdctl <status|run|enable|disable|runs [limit]|summary [from [to]]>")

func run(ctx context.Context, c *httputil.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "status":
		var st compaction.Status
		if err := c.GetJSON(ctx, "/api/compaction/status", &st); err != nil {
			return err
		}
		printStatus(out, st)
		return nil

	case "run":
		var resp struct {
			Triggered bool `json:"triggered"`
		}
		if err := c.PostForm(ctx, "/api/compaction/run", nil, &resp); err != nil {
			return err
		}
		if resp.Triggered {
			fmt.Fprintln(out, "compaction pass queued")
		} else {
			fmt.Fprintln(out, "a compaction pass is already queued")
		}
		return nil

	case "enable", "disable":
		var st compaction.Status
		form := url.Values{"enabled": {strconv.FormatBool(args[0] == "enable")}}
		if err := c.PostForm(ctx, "/api/compaction/enabled", form, &st); err != nil {
			return err
		}
		printStatus(out, st)
		return nil

	case "runs":
		path := "/api/compaction/runs"
		if len(args) > 1 {
			path += "?limit=" + url.QueryEscape(args[1])
		}
		var runs []db.CompactionRun
		if err := c.GetJSON(ctx, path, &runs); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tTRIGGER\tSTARTED\tREAD\tWRITTEN\tCLEARED\tERROR")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.RunID, r.Trigger, r.StartedAt.Format(time.RFC3339), r.RecordsRead, r.DensitiesWritten, r.RecordsCleared, r.Error)
		}
		return tw.Flush()

	case "summary":
		q := url.Values{}
		if len(args) > 1 {
			q.Set("from", args[1])
		}
		if len(args) > 2 {
			q.Set("to", args[2])
		}
		path := "/api/summary"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var sums []graph.LocationSummary
		if err := c.GetJSON(ctx, path, &sums); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LOCATION\tBUCKETS\tMEAN\tP90\tMAX\tDEVICES")
		for _, s := range sums {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\t%.0f\t%d\n",
				s.LocationID, s.Buckets, s.MeanHumans, s.P90Humans, s.MaxHumans, s.TotalDevices)
		}
		return tw.Flush()
	}
	return errUsage
}

func printStatus(out io.Writer, st compaction.Status) {
	fmt.Fprintf(out, "enabled:   %t\n", st.Enabled)
	fmt.Fprintf(out, "healthy:   %t\n", st.IsHealthy)
	fmt.Fprintf(out, "interval:  %s\n", st.Interval)
	fmt.Fprintf(out, "runs:      %d\n", st.RunCount)
	if !st.LastRunAt.IsZero() {
		fmt.Fprintf(out, "last run:  %s\n", st.LastRunAt.Format(time.RFC3339))
	}
	if st.LastRunError != "" {
		fmt.Fprintf(out, "last error: %s\n", st.LastRunError)
	}
	if st.CurrentRun != nil {
		fmt.Fprintf(out, "running:   %s (%s)\n", st.CurrentRun.RunID, st.CurrentRun.Trigger)
	}
}
