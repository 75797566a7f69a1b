// Command dpdctl talks to a running dpd-server: it shows and controls the
// compaction job and prints occupancy summaries.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/httputil"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "base URL of dpd-server")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <status|run|enable|disable|runs [limit]|summary [from [to]]>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := httputil.NewClient(*server, nil)
	if err := run(ctx, client, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "dpdctl: %v\n", err)
		os.Exit(1)
	}
}
