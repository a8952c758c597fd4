// ConsultEase Core - faculty consultation message bus
//
// This is the main entry point for the ConsultEase central service. It
// connects the faculty desk units, the student kiosks and the dashboard
// through one MQTT broker:
//   - Faculty presence is tracked from status, beacon and heartbeat topics
//   - Consultation requests and cancellations are sent to desk units
//   - Desk unit responses are relayed to students, dashboards and the audit trail
//
// Configuration is read from configs/config.yaml unless CONSULTEASE_CONFIG
// points elsewhere.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/nerrad567/consultease-core/migrations"

	"github.com/nerrad567/consultease-core/internal/api"
	"github.com/nerrad567/consultease-core/internal/consultation"
	"github.com/nerrad567/consultease-core/internal/infrastructure/broker"
	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
	"github.com/nerrad567/consultease-core/internal/infrastructure/database"
	"github.com/nerrad567/consultease-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/consultease-core/internal/infrastructure/logging"
	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/consultease-core/internal/presence"
	"github.com/nerrad567/consultease-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting ConsultEase Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Embedded broker for single-machine and development deployments
	if cfg.EmbeddedBroker.Enabled {
		b, brokerErr := broker.Start(cfg.EmbeddedBroker, log.Component("broker").Logger)
		if brokerErr != nil {
			return fmt.Errorf("starting embedded broker: %w", brokerErr)
		}
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping embedded broker", "error", closeErr)
			}
		}()
		log.Info("embedded broker started", "address", b.Addr())
	}

	// Message bus
	bus := mqtt.New(cfg.MQTT)
	bus.SetLogger(log.Component("mqtt"))
	bus.SetOnConnect(func() {
		log.Info("MQTT connected", "broker", cfg.MQTT.BrokerURL())
	})
	bus.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	if startErr := bus.Start(ctx); startErr != nil {
		return fmt.Errorf("starting message bus: %w", startErr)
	}
	defer func() {
		log.Info("stopping message bus")
		if stopErr := bus.Stop(); stopErr != nil {
			log.Error("error stopping message bus", "error", stopErr)
		}
	}()

	// Connect to InfluxDB (optional)
	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Faculty presence
	presenceRepo := presence.NewSQLiteRepository(db.DB)
	recorder := presence.NewRecorder(bus, presenceRepo, cfg.Presence)
	recorder.SetLogger(log.Component("presence"))
	if influxClient != nil {
		recorder.SetPointWriter(influxClient)
	}
	if startErr := recorder.Start(ctx); startErr != nil {
		return fmt.Errorf("starting presence recorder: %w", startErr)
	}
	defer recorder.Stop()

	// Consultation messaging. Notifier and relay share the pending table so
	// responses can be matched to the requests that caused them.
	pending := consultation.NewPending(consultation.DefaultPendingTTL)
	notifier := consultation.NewNotifier(bus, pending)
	notifier.SetLogger(log.Component("consultation"))
	relay := consultation.NewResponseRelay(bus, pending)
	relay.SetLogger(log.Component("consultation"))
	if influxClient != nil {
		notifier.SetEventWriter(influxClient)
		relay.SetEventWriter(influxClient)
	}
	if startErr := relay.Start(); startErr != nil {
		return fmt.Errorf("starting response relay: %w", startErr)
	}
	defer relay.Stop()

	// Bus statistics: Prometheus always, InfluxDB when enabled
	collector := telemetry.NewBusCollector(bus)
	if regErr := collector.Register(prometheus.DefaultRegisterer); regErr != nil {
		return fmt.Errorf("registering bus metrics: %w", regErr)
	}
	if cfg.Telemetry.Enabled && influxClient != nil {
		reporter := telemetry.NewReporter(bus, influxClient, cfg.Telemetry.Interval)
		reporter.SetLogger(log.Component("telemetry"))
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	// HTTP API and WebSocket relay
	checks := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	apiServer, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log.Component("api"),
		Bus:           bus,
		Presence:      presenceRepo,
		Consultations: notifier,
		Checks:        checks,
		Gatherer:      prometheus.DefaultGatherer,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"api", apiServer.Addr(),
		"mqtt_state", bus.State().String(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, telemetry, consultation
	// relay, presence, InfluxDB, bus, embedded broker, database.

	log.Info("ConsultEase Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CONSULTEASE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CONSULTEASE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux returns nil without error when InfluxDB is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// healthCheck verifies the storage dependencies before serving.
// The bus is not checked: it connects in the background and reports its
// state through /api/v1/health.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
