// FamilyTree Core - session and access-control service for family trees.
//
// This is the main entry point. It loads configuration, opens the SQLite
// store, wires the optional MQTT and InfluxDB audit sinks, and serves the
// HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/familytree-core/internal/api"
	"github.com/nerrad567/familytree-core/internal/audit"
	"github.com/nerrad567/familytree-core/internal/auth"
	"github.com/nerrad567/familytree-core/internal/family"
	"github.com/nerrad567/familytree-core/internal/infrastructure/config"
	"github.com/nerrad567/familytree-core/internal/infrastructure/database"
	"github.com/nerrad567/familytree-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/familytree-core/internal/infrastructure/logging"
	"github.com/nerrad567/familytree-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/familytree-core/internal/infrastructure/reporting"
	"github.com/nerrad567/familytree-core/migrations"
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

// healthCheckTimeout bounds the startup health probe.
const healthCheckTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // sequential startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting FamilyTree Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	reportingActive, err := reporting.Init(cfg.Reporting, cfg.Environment, version)
	if err != nil {
		return fmt.Errorf("initialising error reporting: %w", err)
	}
	if reportingActive {
		defer reporting.Flush()
		log.Info("error reporting enabled")
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	familyRepo := family.NewSQLiteRepository(db.DB)
	if seedErr := family.SeedRoles(ctx, familyRepo, log); seedErr != nil {
		return fmt.Errorf("seeding roles: %w", seedErr)
	}

	// Audit sinks: SQLite always, MQTT and InfluxDB when enabled.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	sinks := []audit.Sink{auditRepo}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.WithVersion(version))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.LogConnectionEvents(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttSink := audit.NewMQTTSink(mqttClient,
			audit.WithQueueSize(cfg.MQTT.QueueSize),
			audit.WithSinkLogger(log),
		)
		// Runs before the client disconnects so queued events still go out.
		defer mqttSink.Close()
		sinks = append(sinks, mqttSink)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		sinks = append(sinks, audit.NewMetricsSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	recorder := audit.NewFanout(log, sinks...)
	log.Info("audit trail ready", "sinks", recorder.Sinks())

	// Session and login core
	tokens, err := auth.NewTokenService(cfg.Session.Secret, auth.WithTokenTTL(cfg.Session.TokenTTL))
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	lifecycle := auth.NewLifecycle(tokens, auth.WithIdleTimeout(cfg.Session.IdleTimeout))

	authenticator, err := auth.NewAuthenticator(auth.AuthenticatorDeps{
		Users:    auth.NewUserRepository(db.DB),
		Hasher:   auth.NewHasher(),
		Throttle: auth.NewThrottle(
			auth.WithMaxAttempts(cfg.Login.MaxAttempts),
			auth.WithMaxRecords(cfg.Login.MaxTracked),
			auth.WithRetention(cfg.Login.Retention),
		),
		Tokens:   tokens,
		Families: familyRepo,
		Audit:    recorder,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		RateLimit: cfg.Login.RateLimit,
		Logger:    log,
		DB:        db,
		Auth:      authenticator,
		Lifecycle: lifecycle,
		TokenTTL:  tokens.TTL(),
		Families:  family.NewService(familyRepo, recorder, log),
		AuditLog:  auditRepo,
		Audit:     recorder,
		Version:   version,
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

	if hcErr := healthCheck(ctx, db, mqttClient, influxClient); hcErr != nil {
		log.Warn("startup health check failed", "error", hcErr)
	}

	log.Info("FamilyTree Core started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"idle_timeout", cfg.Session.IdleTimeout,
		"max_attempts", cfg.Login.MaxAttempts,
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FAMILYTREE_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("FAMILYTREE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients are skipped when nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
