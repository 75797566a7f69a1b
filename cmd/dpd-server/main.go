// Command dpd-server aggregates raw detections into half-hour population
// density records and serves them over HTTP.
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

	"github.com/google/uuid"

	"github.com/cameronsims/DynamicPopulationDensity/internal/api"
	"github.com/cameronsims/DynamicPopulationDensity/internal/compaction"
	"github.com/cameronsims/DynamicPopulationDensity/internal/config"
	"github.com/cameronsims/DynamicPopulationDensity/internal/db"
	"github.com/cameronsims/DynamicPopulationDensity/internal/health"
	"github.com/cameronsims/DynamicPopulationDensity/internal/holding"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
	"github.com/cameronsims/DynamicPopulationDensity/internal/mqtt"
	"github.com/cameronsims/DynamicPopulationDensity/internal/timeutil"
	"github.com/cameronsims/DynamicPopulationDensity/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON configuration file")
	dbPathFlag  = flag.String("db", "", "Path to the SQLite database (overrides database.path)")
	listen      = flag.String("listen", "", "HTTP listen address (overrides server.listen)")
	once        = flag.Bool("once", false, "Run a single compaction pass and exit")
	disableJob  = flag.Bool("disable-compaction", false, "Start with the periodic compaction job paused")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const shutdownTimeout = 5 * time.Second

// holdingStore is where inbound detections wait for the next compaction pass.
type holdingStore interface {
	compaction.DetectionStore
	mqtt.DetectionSink
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("dpd-server %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dbPathFlag != "" {
		cfg.Database.Path = *dbPathFlag
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDatabasePath()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	logger, err := monitoring.NewLogger(cfg.GetLogLevel(), cfg.GetLogFormat(), "dpd-server")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	monitoring.UseZap(logger)
	monitoring.Logf("dpd-server %s (%s) starting", version.Version, version.GitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	store, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	store.SetLocation(loc)

	worker := compaction.NewWorker(store, cfg.Options())
	worker.Interval = cfg.GetCompactionInterval()
	worker.Persist = cfg.GetPersist()
	worker.ClearAfter = cfg.GetClearAfter()

	// Detections land in the holding store; everything else stays in SQLite.
	var detections holdingStore = store
	if cfg.GetHoldingBackend() == config.HoldingRedis {
		rs, err := holding.NewRedisStore(ctx, holding.Options{
			Addr:     cfg.Holding.RedisAddr,
			DB:       cfg.Holding.RedisDB,
			Key:      cfg.GetRedisKey(),
			Location: loc,
		})
		if err != nil {
			log.Fatalf("failed to open holding store: %v", err)
		}
		defer rs.Close()
		detections = rs
		monitoring.Logf("holding detections in redis at %s key %s", cfg.Holding.RedisAddr, cfg.GetRedisKey())
	}
	worker.Detections = detections

	if *once {
		rep, err := worker.RunOnce(ctx, "manual")
		if err != nil {
			log.Fatalf("compaction failed: %v", err)
		}
		monitoring.Logf("compaction %s: read=%d written=%d cleared=%d", rep.RunID, rep.RecordsRead, rep.Written, rep.Cleared)
		return
	}

	controller := compaction.NewController(worker, worker.Interval, timeutil.RealClock{})
	if *disableJob {
		controller.SetEnabled(false)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("compaction loop error: %v", err)
		}
	}()

	if cfg.MQTT.Enabled() {
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    clientID(cfg.MQTT.ClientID),
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err != nil {
			log.Fatalf("failed to connect to mqtt: %v", err)
		}
		defer client.Disconnect()
		consumer := &mqtt.Consumer{
			Detections: detections,
			Events:     store,
			Prefix:     cfg.MQTT.TopicPrefix,
			QoS:        cfg.MQTT.QoS,
			Location:   loc,
		}
		if err := consumer.Start(ctx, client); err != nil {
			log.Fatalf("failed to subscribe: %v", err)
		}
	}

	hs := health.NewServer(cfg.GetGRPCListen(), controller, nil)
	if err := hs.Start(); err != nil {
		log.Fatalf("failed to start health server: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		hs.Watch(ctx, health.DefaultPollInterval)
		hs.Stop()
	}()

	apiServer := api.NewServer(store, controller, loc)
	serve(ctx, &wg, "api", cfg.GetListen(), api.LoggingMiddleware(apiServer.ServeMux()))

	if addr := cfg.GetAdminListen(); addr != "" {
		admin := http.NewServeMux()
		if err := store.AttachAdminRoutes(admin); err != nil {
			log.Fatalf("failed to attach admin routes: %v", err)
		}
		serve(ctx, &wg, "admin", addr, admin)
	}

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
}

// serve runs an HTTP server on wg until ctx is done.
func serve(ctx context.Context, wg *sync.WaitGroup, name, addr string, h http.Handler) {
	server := &http.Server{Addr: addr, Handler: h}

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitoring.Logf("%s server listening on %s", name, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("%s server error: %v", name, err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("%s server forced to shutdown: %v", name, err)
		}
	}()
}

// clientID keeps broker sessions of restarted servers from colliding.
func clientID(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return "dpd-server-" + host + "-" + uuid.NewString()[:8]
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s [flags] migrate <up|down|status|detect|version N|force N|baseline N>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}
