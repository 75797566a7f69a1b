// Command pcap-analyse replays a packet capture through the capture and
// aggregation pipeline and reports what a node at that spot would have
// contributed, bucket by bucket. It needs a binary built with -tags pcap.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/config"
)

// Config holds the command line options.
type Config struct {
	PCAPFile   string
	ConfigPath string
	OutputDir  string
	NodeID     string
	Filter     string
	ExportCSV  bool
	ExportJSON bool
	Quiet      bool
}

func main() {
	cfg := parseFlags()
	if cfg.PCAPFile == "" {
		fmt.Fprintln(os.Stderr, "Error: PCAP file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(cfg.PCAPFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: PCAP file not found: %s\n", cfg.PCAPFile)
		os.Exit(1)
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	src, err := capture.OpenPCAP(capture.PCAPConfig{File: cfg.PCAPFile, Filter: cfg.Filter})
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer src.Close()

	threshold := appCfg.GetRSSIThreshold()
	result, err := Analyse(context.Background(), src, cfg.NodeID, capture.SnifferOptions{
		HashSalt:         appCfg.Capture.HashSalt,
		MinStrength:      &threshold,
		EstimationFactor: *appCfg.EstimationFactor,
		Window:           appCfg.GetRollingWindow(),
		Location:         appCfg.Location(),
	}, appCfg.Options())
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	result.PCAPFile = cfg.PCAPFile

	if !cfg.Quiet {
		printSummary(os.Stdout, result)
	}
	if err := exportResults(cfg, result); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Path to PCAP file (required)")
	flag.StringVar(&cfg.ConfigPath, "config", config.DefaultConfigPath, "Path to the JSON configuration file")
	flag.StringVar(&cfg.OutputDir, "output", ".", "Output directory for results")
	flag.StringVar(&cfg.NodeID, "node", "pcap-replay", "Node id to attribute detections to")
	flag.StringVar(&cfg.Filter, "filter", "", "BPF filter applied while reading")
	flag.BoolVar(&cfg.ExportCSV, "csv", true, "Export per-bucket counts to CSV")
	flag.BoolVar(&cfg.ExportJSON, "json", true, "Export full results to JSON")
	flag.BoolVar(&cfg.Quiet, "q", false, "Do not print the summary")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Replays a capture file through hashing, suspicion filtering and compaction.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -pcap monitor.pcap -output ./results\n", os.Args[0])
	}
	flag.Parse()
	return cfg
}

func exportResults(cfg Config, result *AnalysisResult) error {
	baseName := strings.TrimSuffix(filepath.Base(cfg.PCAPFile), filepath.Ext(cfg.PCAPFile))

	if cfg.ExportJSON {
		jsonPath := filepath.Join(cfg.OutputDir, baseName+"_analysis.json")
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("JSON marshal: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		fmt.Printf("JSON results: %s\n", jsonPath)
	}

	if cfg.ExportCSV && len(result.Buckets) > 0 {
		csvPath := filepath.Join(cfg.OutputDir, baseName+"_buckets.csv")
		f, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := writeBucketsCSV(f, result.Buckets); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
		fmt.Printf("CSV buckets: %s\n", csvPath)
	}
	return nil
}
