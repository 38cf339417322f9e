// Soundtrack Auto-Volume
//
// This is the main entry point for the auto-volume service. Sound-sensing
// devices stream ambient levels over a websocket; the service smooths them
// per zone and drives each zone's music volume through the Soundtrack API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/brightears/soundtrack-auto-volume/migrations"

	"github.com/brightears/soundtrack-auto-volume/internal/api"
	"github.com/brightears/soundtrack-auto-volume/internal/audit"
	"github.com/brightears/soundtrack-auto-volume/internal/connection"
	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/gateway"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/config"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/database"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/influxdb"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/logging"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/mqtt"
	"github.com/brightears/soundtrack-auto-volume/internal/notify"
	"github.com/brightears/soundtrack-auto-volume/internal/soundtrack"
	"github.com/brightears/soundtrack-auto-volume/internal/volume"
	"github.com/brightears/soundtrack-auto-volume/internal/zone"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds how long device sockets get to close.
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting auto-volume",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	devices := device.NewSQLiteRepository(db.DB)
	configs := zone.NewSQLiteRepository(db.DB)
	auditLog := audit.NewSQLiteRepository(db.DB)

	zoneService := soundtrack.New(cfg.Soundtrack)
	if !zoneService.Configured() {
		log.Warn("soundtrack credentials not configured, volume changes will fail")
	}

	mapper := volume.NewMapper(zoneService, cfg.MinActuationInterval())
	mapper.SetLogger(log.With("component", "volume"))

	registry := connection.NewRegistry()
	registry.SetLogger(log.With("component", "connection"))

	checks := map[string]api.HealthChecker{"database": db}

	mqttClient, err := connectMQTT(cfg, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
	}

	influxClient, err := connectInfluxDB(cfg, log)
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
		checks["influxdb"] = influxClient
	}

	volume.RegisterMetrics()
	gateway.RegisterMetrics()
	notify.RegisterMetrics()

	hub := api.NewHub(cfg.WebSocket, log.With("component", "events"))

	// The publisher outlives the signal context so the offline events
	// produced while device sockets close are still delivered.
	pubCtx, stopPublisher := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPublisher()

	opts := notify.Options{Events: hub, Logger: log}
	if mqttClient != nil {
		opts.MQTT = mqttClient
	}
	if influxClient != nil {
		opts.History = influxClient
	}
	publisher := notify.New(opts)
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		publisher.Run(pubCtx)
	}()

	gw, err := gateway.NewHandler(gateway.Deps{
		Config:   cfg.WebSocket,
		Registry: registry,
		Devices:  devices,
		Configs:  configs,
		Control:  mapper,
		Observer: publisher,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	if mqttClient != nil {
		if subErr := subscribeCommands(mqttClient, cfg.MQTT.QoS, gw, auditLog, log); subErr != nil {
			return subErr
		}
	}

	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		ZoneDefaults: cfg.ZoneDefaults,
		Logger:       log,
		Devices:      devices,
		Configs:      configs,
		Registry:     registry,
		Gateway:      gw,
		Control:      mapper,
		ZoneService:  zoneService,
		Audit:        auditLog,
		Checks:       checks,
		Hub:          hub,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	go hub.Run(ctx)

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("error closing device connections", "error", err)
	}
	if err := apiServer.Close(); err != nil {
		log.Error("error stopping API server", "error", err)
	}

	stopPublisher()
	select {
	case <-publisherDone:
	case <-shutdownCtx.Done():
		log.Warn("event publisher did not drain before shutdown timeout")
	}

	log.Info("auto-volume stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Priority: AUTOVOLUME_CONFIG env var > default path.
func getConfigPath() string {
	if path := os.Getenv("AUTOVOLUME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when MQTT is disabled.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// connectInfluxDB returns nil when InfluxDB is disabled.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
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

// subscribeCommands routes broker commands to the matching device socket.
func subscribeCommands(client *mqtt.Client, qos int, gw *gateway.Handler, auditLog audit.Repository, log *logging.Logger) error {
	topics := mqtt.Topics{}
	handler := func(topic string, payload []byte) error {
		identity, ok := topics.DeviceFromCommandTopic(topic)
		if !ok {
			return fmt.Errorf("unexpected command topic %q", topic)
		}
		if err := gw.HandleCommand(identity, payload); err != nil {
			log.Warn("device command rejected", "device_id", identity, "error", err)
			return err
		}
		log.Info("device command delivered", "device_id", identity)

		entry := &audit.Entry{
			Action:     audit.ActionCommand,
			EntityType: audit.EntityDevice,
			EntityID:   identity,
			Source:     audit.SourceMQTT,
			Details:    map[string]any{"topic": topic},
		}
		if err := auditLog.Record(context.Background(), entry); err != nil {
			log.Warn("recording audit entry", "device_id", identity, "error", err)
		}
		return nil
	}

	// #nosec G115 -- qos validated to 0..2 by config
	if err := client.Subscribe(topics.AllDeviceCommands(), byte(qos), handler); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}
	return nil
}

// healthCheck runs every registered component check once at startup.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
