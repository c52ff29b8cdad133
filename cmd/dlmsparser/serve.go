package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Terminal3D/DLMS-Parser/internal/api"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/database"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/influxdb"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/logging"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/mqtt"
	"github.com/Terminal3D/DLMS-Parser/internal/ingest"
	"github.com/Terminal3D/DLMS-Parser/internal/pipeline"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, WebSocket feed and MQTT ingest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.ResolvePath(opts.configPath))
		},
	}
}

// run contains the service logic and returns an error if startup fails.
// Separated from main() to enable testing and clean error handling.
//
// Startup order: config, logging, database, InfluxDB, pipeline, MQTT and
// ingest, then the API. Services are stopped in reverse on shutdown.
func run(ctx context.Context, configPath string) error {
	// Bootstrap logger until config is loaded
	log := logging.Default()
	log.Info("starting DLMS parser",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"site_id", cfg.Site.ID,
		"site_name", cfg.Site.Name,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	checks := []namedCheck{{name: "database", check: db}}

	// Parse history (if enabled)
	var recorder pipeline.Recorder
	var historyRepo history.Repository
	if cfg.History.Enabled {
		repo := history.NewSQLiteRepository(db.DB, cfg.History.MaxEntries)
		recorder = repo
		historyRepo = repo
		log.Info("parse history enabled", "max_entries", cfg.History.MaxEntries)
	} else {
		log.Info("parse history disabled")
	}

	// Connect to InfluxDB (if enabled)
	var metrics pipeline.MetricsWriter
	var influxStatus api.InfluxStatus
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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

		metrics = influxClient
		influxStatus = influxClient
		checks = append(checks, namedCheck{name: "influxdb", check: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	parser, err := newParser(cfg, log)
	if err != nil {
		return fmt.Errorf("creating parser: %w", err)
	}
	pipe := pipeline.New(parser, recorder, metrics, nil, log)

	// Connect to MQTT broker and start ingest (if enabled)
	var mqttStatus api.MQTTStatus
	var ingestStats api.IngestStats
	var bridge *ingest.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("closing MQTT connection")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		mqttStatus = mqttClient
		checks = append(checks, namedCheck{name: "mqtt", check: mqttClient})
		log.Info("MQTT connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))

		if cfg.MQTT.Ingest.Enabled {
			bridge = ingest.New(mqttClient, pipe, cfg.MQTT.Ingest, cfg.MQTT.QoS, log)
			if err := bridge.Start(ctx); err != nil {
				return fmt.Errorf("starting MQTT ingest: %w", err)
			}
			ingestStats = bridge
			log.Info("MQTT ingest started", "topic", cfg.MQTT.Ingest.Topic)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Pipeline: pipe,
		History:  historyRepo,
		MQTT:     mqttStatus,
		InfluxDB: influxStatus,
		Ingest:   ingestStats,
		DB:       db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// The API and the ingest bridge are independent front doors onto the
	// pipeline, so they drain concurrently. The deferred Close() calls then
	// run in reverse order: MQTT, InfluxDB, database.
	var g errgroup.Group
	g.Go(func() error {
		log.Info("stopping API server")
		return apiServer.Close()
	})
	if bridge != nil {
		g.Go(func() error {
			log.Info("stopping MQTT ingest")
			return bridge.Stop()
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("error during shutdown", "error", err)
	}

	log.Info("DLMS parser stopped")
	return nil
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// namedCheck pairs a connection with the name used in errors.
type namedCheck struct {
	name  string
	check healthChecker
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checks: Connections to verify, in startup order
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks []namedCheck) error {
	for _, c := range checks {
		if err := c.check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
