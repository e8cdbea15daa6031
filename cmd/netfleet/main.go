// NetFleet Core - network device fleet orchestration.
//
// This is the main entry point. It wires the event journal, the vendor
// controller, the inventory, the topology projection and the HTTP API,
// then waits for a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/nerrad567/netfleet-core/migrations"

	"github.com/nerrad567/netfleet-core/internal/api"
	"github.com/nerrad567/netfleet-core/internal/audit"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/database"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/netfleet-core/internal/inventory"
	"github.com/nerrad567/netfleet-core/internal/journal"
	"github.com/nerrad567/netfleet-core/internal/observability"
	"github.com/nerrad567/netfleet-core/internal/orchestrator"
	"github.com/nerrad567/netfleet-core/internal/retry"
	"github.com/nerrad567/netfleet-core/internal/topology"
	"github.com/nerrad567/netfleet-core/internal/vendor"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// closes run in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting NetFleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID, "site_name", cfg.Site.Name)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	health := map[string]api.HealthChecker{}

	var journalOpts []journal.Option
	journalOpts = append(journalOpts, journal.WithLogger(log.Component("journal")))

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT,
			mqtt.WithLogger(log.Component("mqtt")),
			mqtt.WithSite(cfg.Site.ID),
		)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)
		health["mqtt"] = mqttClient
		//nolint:gosec // QoS is validated to 0..2
		journalOpts = append(journalOpts,
			journal.WithPublisher(mqttClient, byte(cfg.MQTT.QoS)),
			journal.WithTopics(mqttClient.Topics().Event),
		)
	} else {
		log.Info("MQTT fan-out disabled")
	}

	j, db, err := openJournal(ctx, cfg, journalOpts)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing journal")
		if closeErr := j.Close(); closeErr != nil {
			log.Error("error closing journal", "error", closeErr)
		}
		if db != nil {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}
	}()
	var trail audit.Repository = audit.NewMemoryRepository()
	if db != nil {
		health["database"] = db
		if trail, err = audit.NewSQLiteRepository(ctx, db); err != nil {
			return fmt.Errorf("opening audit trail: %w", err)
		}
	}
	log.Info("journal ready", "backend", cfg.Journal.Backend, "stream", cfg.Journal.StreamName)

	var recorder orchestrator.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		health["influxdb"] = influxClient
		recorder = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	controller, err := openVendor(ctx, cfg.Vendor)
	if err != nil {
		return err
	}
	defer controller.Disconnect(context.Background()) //nolint:errcheck // static controller never fails
	log.Info("vendor controller connected", "vendor", controller.VendorName(), "seed", cfg.Vendor.SeedFile)

	var inv inventory.Inventory
	if cfg.Inventory.Enabled {
		inv = inventory.NewMemory(cfg.Inventory.System)
		log.Info("inventory enabled", "system", cfg.Inventory.System)
	}

	metrics, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	policy := retry.Policy{
		MaxTries:        cfg.Orchestrator.Retry.MaxTries,
		InitialInterval: cfg.Orchestrator.Retry.InitialInterval,
		MaxInterval:     cfg.Orchestrator.Retry.MaxInterval,
		MaxElapsed:      cfg.Orchestrator.Retry.MaxElapsed,
	}
	deps := orchestrator.Deps{
		Journal:     j,
		Vendor:      controller,
		Logger:      log.Component("orchestrator"),
		Metrics:     metrics,
		Tracer:      observability.Tracer(),
		Recorder:    recorder,
		Retry:       policy,
		Concurrency: cfg.Orchestrator.Concurrency,
	}
	if inv != nil {
		deps.Inventory = inv
	}
	svc, err := orchestrator.New(deps)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	if cfg.Orchestrator.WarmOnStart {
		if err := svc.Warm(ctx); err != nil {
			return fmt.Errorf("warming device cache: %w", err)
		}
		log.Info("device cache warmed", "devices", len(svc.List()))
	}

	graph := topology.NewGraph()
	projector := topology.NewProjector(graph, j, cfg.Journal.SubjectPrefix,
		topology.WithProjectorLogger(log.Component("topology")),
		topology.WithRetryPolicy(policy),
	)
	projectorDone := make(chan error, 1)
	go func() { projectorDone <- projector.Run(ctx) }()

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Projection: cfg.Projection,
		Logger:     log,
		Fleet:      svc,
		Graph:      graph,
		Journal:    j,
		Inventory:  inv,
		Audit:      trail,
		Metrics:    metrics,
		Health:     health,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err := <-projectorDone:
		if err != nil {
			return fmt.Errorf("topology projector stopped: %w", err)
		}
	}

	log.Info("NetFleet Core stopped")
	return nil
}

// getConfigPath returns NETFLEET_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("NETFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openJournal builds the configured store. The returned database is nil
// for the memory backend.
func openJournal(ctx context.Context, cfg *config.Config, opts []journal.Option) (journal.Journal, *database.DB, error) {
	jcfg := journal.Config{
		URL:             journal.SchemeMemory,
		StreamName:      cfg.Journal.StreamName,
		SubjectPrefix:   cfg.Journal.SubjectPrefix,
		MaxMessages:     cfg.Journal.MaxMessages,
		MaxAge:          cfg.Journal.MaxAge,
		Replicas:        cfg.Journal.Replicas,
		DuplicateWindow: cfg.Journal.DuplicateWindow,
	}
	if cfg.Journal.Backend == config.JournalMemory {
		store, err := journal.NewMemoryStore(jcfg, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating memory journal: %w", err)
		}
		return store, nil, nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	jcfg.URL = journal.SchemeSQLite + cfg.Database.Path
	store, err := journal.NewSQLiteStore(ctx, db, jcfg, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("opening sqlite journal: %w", err)
	}
	return store, db, nil
}

// openVendor loads the static controller from the seed file, or starts an
// empty one.
func openVendor(ctx context.Context, cfg config.VendorConfig) (*vendor.Static, error) {
	var (
		controller *vendor.Static
		err        error
	)
	if cfg.SeedFile != "" {
		controller, err = vendor.LoadStatic(cfg.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("loading vendor seed: %w", err)
		}
	} else {
		controller = vendor.NewStatic(cfg.Name)
	}
	if err := controller.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting vendor controller: %w", err)
	}
	return controller, nil
}

// healthCheck verifies every infrastructure connection once at startup.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, hc := range checks {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
