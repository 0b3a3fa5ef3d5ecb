// dvbnode - DVB node topology registry
//
// This is the main entry point of a DVB node. The node loads the topology
// document of its data space, brings its home shards up to date by running
// their pending upgrade steps, and hands the resolved entries over to
// device control via MQTT. A read-only HTTP API exposes what it holds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-dvb/internal/api"
	"github.com/nerrad567/gray-logic-dvb/internal/handoff"
	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dvb/internal/node"
	"github.com/nerrad567/gray-logic-dvb/internal/topology"
	"github.com/nerrad567/gray-logic-dvb/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
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
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting dvbnode",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).ForInstance(cfg.Instance.Name, cfg.Instance.Space)
	log.Info("configuration loaded", "path", configPath)

	db, err := database.Open(ctx, cfg.Database)
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

	repo := topology.NewSQLiteRepository(db.DB)
	registry := topology.NewRegistry(node.Catalogue(cfg.Instance))
	registry.SetLogger(log)
	registry.SetRepository(repo)

	checks := map[string]api.HealthFunc{"database": db.HealthCheck}
	deps := node.Deps{Config: cfg, Registry: registry, Logger: log}

	// MQTT (optional): entry hand-off to device control
	if cfg.MQTT.Enabled {
		mqttClient, announcer, mqttErr := startHandoff(ctx, cfg, registry, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient.HealthCheck
		deps.Announcer = announcer
	} else {
		log.Info("MQTT disabled, entries will not be handed off")
	}

	// InfluxDB (optional): upgrade step telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient.HealthCheck
		deps.Metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// The API hub observes the registry before bootstrap so that clients
	// connected early see every upgrade step.
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Logger:     log,
			Registry:   registry,
			Repository: repo,
			Checks:     checks,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		registry.AddObserver(server.Hub())
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	n, err := node.New(deps)
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	if err := bootstrapTopology(ctx, n, cfg.Topology.ConfigFile, log, false); err != nil {
		return err
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// SIGHUP reloads the topology document. Entries dropped from it are
	// withdrawn from device control.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Info("initialisation complete, waiting for shutdown signal", "stats", registry.Stats())
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			log.Info("dvbnode stopped")
			return nil
		case <-hup:
			log.Info("reloading topology", "path", cfg.Topology.ConfigFile)
			if err := bootstrapTopology(ctx, n, cfg.Topology.ConfigFile, log, true); err != nil {
				log.Error("topology reload failed, keeping previous topology", "error", err)
				continue
			}
			log.Info("topology reloaded", "stats", registry.Stats())
		}
	}
}

// bootstrapTopology loads the topology document at path and brings the
// node up to date with it. With reload set the loaded space is replaced.
//
// A document that fails to load is returned as an error. Upgrade and
// hand-off failures are only logged: shards that failed keep their last
// committed state and the node still serves what it has.
func bootstrapTopology(ctx context.Context, n *node.Node, path string, log *logging.Logger, reload bool) error {
	doc, err := topology.LoadDocument(path)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}
	log.Info("topology document loaded", "path", path, "shards", len(doc.Shards))

	var reports []node.ShardReport
	if reload {
		reports, err = n.Reload(ctx, doc)
	} else {
		reports, err = n.Bootstrap(ctx, doc)
	}
	for _, r := range reports {
		log.Info("shard ready",
			"shard_id", r.ID,
			"shard_alias", r.Alias,
			"home", r.Home,
			"applied", r.Applied,
			"newly", r.Newly,
			"announced", r.Announced,
			"error", r.Error,
		)
	}
	if err != nil {
		log.Error("bootstrap incomplete", "error", err)
	}
	return nil
}

// startHandoff connects to the broker and answers resolve requests from
// device-control peers.
func startHandoff(ctx context.Context, cfg *config.Config, registry *topology.Registry, log *logging.Logger) (*mqtt.Client, *handoff.Announcer, error) {
	topics := mqtt.Topics{Space: cfg.Instance.Space, Instance: cfg.Instance.Name}

	client, err := mqtt.Connect(ctx, cfg.MQTT, topics)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"status_topic", topics.NodeStatus(),
	)

	announcer := handoff.NewAnnouncer(client, topics, registry)
	announcer.SetLogger(log)

	if err := client.Subscribe(topics.ResolveRequest(), 1, announcer.HandleResolve); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("subscribing to resolve requests: %w", err)
	}
	return client, announcer, nil
}

// getConfigPath returns the configuration file path.
// Uses DVBNODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DVBNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every component check and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthFunc) error {
	for name, check := range checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
