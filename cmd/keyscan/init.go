package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"keyscan/pkg/cluster"
	"keyscan/pkg/config"
	"keyscan/pkg/store"
	"keyscan/pkg/store/memstore"
	"keyscan/pkg/store/redisstore"
)

// initLogger настраивает глобальный slog.Logger (JSON или текстовый).
func initLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Logger.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", "level", level.String(), "json", cfg.Logger.JSON)
}

// initStore поднимает хранилище. closeFn освобождает соединения или
// останавливает in-process ноды.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, *redisstore.Store, func(), error) {
	switch cfg.Store.Kind {
	case "memory":
		mem, err := memstore.NewCluster(ctx, memstore.Config{
			Addrs:     cfg.Store.NodeAddrs(),
			KeyCost:   cfg.Store.Memory.KeyCost,
			QueueSize: cfg.Store.Memory.QueueSize,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("memory store: %w", err)
		}
		return mem, nil, mem.Close, nil

	case "redis":
		rs := redisstore.New(redisstore.Options{
			DialTimeout: cfg.Store.DialTimeout,
			Password:    cfg.Store.Password,
		})
		closeFn := func() {
			if err := rs.Close(); err != nil {
				slog.Warn("close redis clients", "error", err)
			}
		}
		slog.Info("redis store configured", "addrs", cfg.Store.Addrs)
		return rs, rs, closeFn, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// initRouter собирает первый снимок топологии из выбранного источника и
// запускает фоновое обновление, если источник его поддерживает.
func initRouter(ctx context.Context, cfg *config.Config, rs *redisstore.Store) (*cluster.Router, func(), error) {
	noop := func() {}

	switch cfg.Topology.Source {
	case "static":
		router, err := cluster.Bootstrap(ctx, cluster.StaticSource{Addrs: cfg.Store.NodeAddrs()})
		return router, noop, err

	case "zookeeper":
		membership, err := cluster.NewZKMembership(cfg.Topology.ZKServers, cfg.Topology.ZKRoot, cfg.Topology.RingReplicas)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to ZooKeeper: %w", err)
		}
		// in-process ноды регистрируем сами, настоящие ноды делают это на своей стороне
		if cfg.Store.Kind == "memory" {
			for _, addr := range cfg.Store.NodeAddrs() {
				if err := membership.Register(addr); err != nil {
					membership.Close()
					return nil, nil, fmt.Errorf("failed to register node in ZooKeeper: %w", err)
				}
			}
		}
		router, err := cluster.Bootstrap(ctx, membership)
		if err != nil {
			membership.Close()
			return nil, nil, err
		}
		membership.RunWatch(ctx, router)
		return router, func() { membership.Close() }, nil

	case "cluster":
		src := redisstore.NewClusterSlots(rs, cfg.Store.Addrs)
		router, err := cluster.Bootstrap(ctx, src)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Topology.Refresh > 0 {
			go refreshLoop(ctx, src, router, cfg.Topology.Refresh)
		}
		return router, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown topology source %q", cfg.Topology.Source)
	}
}

func refreshLoop(ctx context.Context, src cluster.Source, router *cluster.Router, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			topo, err := src.Topology(ctx)
			if err != nil {
				slog.Warn("topology refresh failed, keeping previous snapshot", "error", err)
				continue
			}
			router.UpdateTopology(topo)
		}
	}
}
