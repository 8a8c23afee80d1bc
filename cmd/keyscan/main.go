package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"keyscan/internal/http"
	"keyscan/internal/service"
	"keyscan/pkg/config"
	"keyscan/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	if err := run(ctx, &cfg); err != nil {
		slog.Error("keyscan stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("keyscan stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	st, rs, closeStore, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	router, closeTopology, err := initRouter(ctx, cfg, rs)
	if err != nil {
		return err
	}
	defer closeTopology()

	prom := metrics.NewPrometheus()
	svc := service.New(service.NewContext(router, st, prom), service.Options{
		Namespace:  cfg.Keys.Namespace,
		Hint:       cfg.Scan.Hint,
		Concurrent: cfg.Scan.Concurrent,
		BatchSize:  cfg.Batch.Size,
	})

	server := http.NewServer(svc, http.Options{
		Port:              strconv.Itoa(cfg.Server.Port),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Metrics:           prom,
		MetricsHandler:    prom.Handler(),
	})
	if err := server.Start(); err != nil {
		return err
	}

	slog.Info("keyscan is running",
		"port", cfg.Server.Port,
		"store", cfg.Store.Kind,
		"topology", cfg.Topology.Source,
		"namespace", cfg.Keys.Namespace,
	)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Warn("Error stopping server", "error", err)
	}
	return nil
}
