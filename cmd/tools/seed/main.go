// Command seed fills a database with a location, its nodes and a synthetic
// day of detections so the server and dashboards have something to show.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/compaction"
	"github.com/cameronsims/DynamicPopulationDensity/internal/config"
	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the JSON configuration file")
	dbPath := flag.String("db", "", "path to sqlite db (overrides database.path)")
	location := flag.String("location", "lib-l2-study", "location id to create")
	nodeList := flag.String("nodes", "node-a,node-b", "comma separated node ids to create")
	dateStr := flag.String("date", "", "day to generate (2006-01-02, default today)")
	buckets := flag.Int("buckets", 48, "number of 30 minute buckets to generate")
	visitors := flag.Float64("visitors", 12, "mean visitors per node per bucket")
	pool := flag.Int("pool", 200, "size of the visitor population")
	residents := flag.Int("residents", 2, "always-on devices per node")
	seed := flag.Uint64("seed", 1, "random seed")
	compact := flag.Bool("compact", false, "run one compaction pass after seeding")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	loc := cfg.Location()

	day := time.Now().In(loc)
	if *dateStr != "" {
		day, err = time.ParseInLocation("2006-01-02", *dateStr, loc)
		if err != nil {
			log.Fatalf("invalid date: %v", err)
		}
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	store, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()
	store.SetLocation(loc)

	ctx := context.Background()
	nodes := strings.Split(*nodeList, ",")
	if err := store.SaveLocation(ctx, density.Location{ID: *location, Name: *location}); err != nil {
		log.Fatalf("save location: %v", err)
	}
	for _, id := range nodes {
		if err := store.SaveNode(ctx, density.Node{ID: id, Name: id, LocationID: *location}); err != nil {
			log.Fatalf("save node %s: %v", id, err)
		}
	}

	recs := Generate(Plan{
		Nodes:     nodes,
		Start:     start,
		Buckets:   *buckets,
		Visitors:  *visitors,
		Pool:      *pool,
		Residents: *residents,
		Salt:      cfg.Capture.HashSalt,
		Seed:      *seed,
	})
	if err := store.InsertDetections(ctx, recs); err != nil {
		log.Fatalf("insert detections: %v", err)
	}
	fmt.Printf("seeded %d detections for %d nodes from %s\n", len(recs), len(nodes), start.Format(time.RFC3339))

	if *compact {
		w := compaction.NewWorker(store, cfg.Options())
		rep, err := w.RunOnce(ctx, "manual")
		if err != nil {
			log.Fatalf("compaction failed: %v", err)
		}
		fmt.Printf("compacted: read=%d written=%d suspicious=%d\n", rep.RecordsRead, rep.Written, len(rep.Classification.Suspicious))
	}
}
