package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"telemetry-server/cache"
	"telemetry-server/clock"
	"telemetry-server/confs"
	"telemetry-server/db"
	"telemetry-server/handlers"
	"telemetry-server/mqttclient"
	"telemetry-server/server"
	"telemetry-server/services"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file (default $TELEMETRY_CONFIG)")
	addr := pflag.String("addr", "", "listen address, overrides config")
	pflag.Parse()

	// load config
	cfg, err := confs.LoadConfig(*configPath)
	if err != nil {
		slog.Error("error loading config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := confs.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *confs.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// connect to the database
	database, err := db.Connect(cfg, log)
	if err != nil {
		return err
	}

	c := clock.Real()
	store, closeCache, err := openCache(ctx, cfg, c, log)
	if err != nil {
		return err
	}
	defer closeCache()

	srv := server.NewServer(cfg, database, store, c, log)

	if cfg.MQTT.BrokerURL != "" {
		client, err := mqttclient.New(mqttclient.Options{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  mqttclient.ClientID(cfg.MQTT.ClientID),
		})
		if err != nil {
			return err
		}
		defer client.Close()

		if err := handlers.NewMQTTIngestor(client, cfg.MQTT.Topic, srv.Ingestor(), log).Start(); err != nil {
			return err
		}
	}

	return srv.Run(ctx)
}

// openCache uses redis when REDIS_URL is configured and an in-process store
// otherwise.
func openCache(ctx context.Context, cfg *confs.Config, c clock.Clock, log *slog.Logger) (cache.Store, func(), error) {
	if cfg.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis cache")
		return store, func() { _ = store.Close() }, nil
	}

	log.Info("using in-memory cache")
	store := cache.NewMemoryStore(c)
	services.NewCacheJanitor(store, 0, log).Start(ctx)
	return store, func() {}, nil
}
