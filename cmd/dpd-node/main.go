// Command dpd-node runs on a capture node. It reads device sightings from a
// BLE scanner on a serial port or from a pcap capture, hashes them, and
// ships them to the server either through MQTT or straight into the
// database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cameronsims/DynamicPopulationDensity/internal/capture"
	"github.com/cameronsims/DynamicPopulationDensity/internal/config"
	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/mqtt"
	"github.com/cameronsims/DynamicPopulationDensity/internal/serialmux"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
	"github.com/cameronsims/DynamicPopulationDensity/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON configuration file")
	nodeID      = flag.String("node", "", "Node id (overrides capture.node_id)")
	sourceFlag  = flag.String("source", "", "Capture source: ble-serial or pcap (overrides capture.source)")
	portFlag    = flag.String("port", "", "Serial port of the BLE scanner (overrides capture.serial_port)")
	ifaceFlag   = flag.String("iface", "", "Capture interface for pcap (overrides capture.interface)")
	pcapFile    = flag.String("pcap-file", "", "Read packets from a capture file instead of a live interface")
	maxLoops    = flag.Int("max-loops", 0, "Number of scan cycles before exiting; -1 runs forever (0 uses the config)")
	adminListen = flag.String("admin-listen", "", "Admin listen address for scanner debug routes (disabled when empty)")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dpd-node %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)
	if cfg.Capture.NodeID == "" {
		log.Fatal("node id is required: set capture.node_id or pass -node")
	}

	logger, err := monitoring.NewLogger(cfg.GetLogLevel(), cfg.GetLogFormat(), "dpd-node")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	monitoring.UseZap(logger)
	monitoring.Logf("dpd-node %s starting for node %s", version.Version, cfg.Capture.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	threshold := cfg.GetRSSIThreshold()
	sniffer := capture.NewSniffer(density.Unresolved(cfg.Capture.NodeID), capture.SnifferOptions{
		HashSalt:         cfg.Capture.HashSalt,
		MinStrength:      &threshold,
		EstimationFactor: *cfg.EstimationFactor,
		Window:           cfg.GetRollingWindow(),
		Location:         loc,
	})

	sink, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open output: %v", err)
	}
	defer closeSink()

	var wg sync.WaitGroup
	source, closeSource, err := openSource(ctx, cfg, &wg)
	if err != nil {
		log.Fatalf("failed to open capture source: %v", err)
	}

	loop := &capture.Loop{
		Source:   source,
		Sniffer:  sniffer,
		Sink:     sink,
		Interval: cfg.GetScanInterval(),
		MaxLoops: cfg.GetMaxLoops(),
		Clock:    timeutil.RealClock{},
	}
	monitoring.Logf("capturing from %s every %s (max_loops=%d, window=%s, rssi>=%d)",
		cfg.GetCaptureSource(), loop.Interval, loop.MaxLoops, cfg.GetRollingWindow(), threshold)

	runErr := loop.Run(ctx)
	stop()
	closeSource()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("capture stopped: %v", runErr)
	}
	monitoring.Logf("dpd-node stopped")
}

func applyFlags(cfg *config.Config) {
	if *nodeID != "" {
		cfg.Capture.NodeID = *nodeID
	}
	if *sourceFlag != "" {
		cfg.Capture.Source = *sourceFlag
	}
	if *portFlag != "" {
		cfg.Capture.SerialPort = *portFlag
	}
	if *ifaceFlag != "" {
		cfg.Capture.Interface = *ifaceFlag
	}
	if *pcapFile != "" {
		cfg.Capture.Source = config.SourcePCAP
		cfg.Capture.PCAPFile = *pcapFile
	}
	if *maxLoops != 0 {
		cfg.Capture.MaxLoops = maxLoops
	}
}

// openSink picks the database when insert_into_db is set, otherwise MQTT.
func openSink(ctx context.Context, cfg *config.Config) (capture.BatchSink, func(), error) {
	if cfg.Capture.InsertIntoDB {
		store, err := db.NewDB(cfg.GetDatabasePath())
		if err != nil {
			return nil, nil, err
		}
		store.SetLocation(cfg.Location())
		if n, err := store.GetNode(ctx, cfg.Capture.NodeID); err != nil {
			monitoring.Warnf("node %s is not registered: %v", cfg.Capture.NodeID, err)
		} else {
			monitoring.Logf("node %s is %q at location %s", n.ID, n.Name, n.LocationID)
		}
		monitoring.Logf("writing detections to %s", cfg.GetDatabasePath())
		return capture.StoreSink{Detections: store, Events: store}, func() { store.Close() }, nil
	}

	if !cfg.MQTT.Enabled() {
		return nil, nil, errors.New("either capture.insert_into_db or mqtt.broker must be set")
	}
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "dpd-node-" + cfg.Capture.NodeID
	}
	client, err := mqtt.NewClient(mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    clientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         cfg.MQTT.QoS,
	})
	if err != nil {
		return nil, nil, err
	}
	return mqtt.NewPublisher(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS), client.Disconnect, nil
}

// openSource starts whatever background readers the source needs on wg and
// returns a function that releases the device.
func openSource(ctx context.Context, cfg *config.Config, wg *sync.WaitGroup) (capture.Source, func(), error) {
	switch cfg.GetCaptureSource() {
	case config.SourcePCAP:
		src, err := capture.OpenPCAP(capture.PCAPConfig{
			Interface: cfg.Capture.Interface,
			File:      cfg.Capture.PCAPFile,
			Filter:    cfg.Capture.BPFFilter,
			Timeout:   time.Second,
			Promisc:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil

	default:
		scanner, err := serialmux.OpenScanner(cfg.GetSerialPort(), serialmux.PortOptions{BaudRate: cfg.Capture.BaudRate})
		if err != nil {
			return nil, nil, err
		}
		if err := scanner.Initialize(cfg.Capture.ScannerInit...); err != nil {
			scanner.Close()
			return nil, nil, err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := scanner.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Warnf("scanner monitor error: %v", err)
			}
		}()

		if *adminListen != "" {
			mux := http.NewServeMux()
			scanner.AttachAdminRoutes(mux)
			server := &http.Server{Addr: *adminListen, Handler: mux}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					monitoring.Warnf("admin server error: %v", err)
				}
			}()
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					monitoring.Warnf("admin server shutdown error: %v", err)
				}
			}()
		}

		return capture.SerialSource{Lines: scanner}, func() { scanner.Close() }, nil
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
}
