// Command aggregatord runs the crypto order-book aggregation service:
//
//	main.go                 — entry point: loads config, starts servers, waits for SIGINT/SIGTERM
//	internal/exchange       — Exchange Adapters, one per supported venue (Binance, Bitstamp)
//	internal/aggregator     — per-pair Aggregator state machine: connect, merge, publish
//	internal/registry       — Subscription Registry: one Aggregator per TradedPair, shared
//	internal/rpc            — gRPC BookSummary streaming RPC, the service's primary interface
//	internal/dashboard      — ambient HTTP/WebSocket surface: health, snapshot, live feed, metrics
//	internal/config         — YAML + AGG_* env var configuration
//
// Startup order: load config, construct the long-lived components, start
// servers in the background, block on a shutdown signal, then stop the
// dashboard before gracefully stopping the gRPC server.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/xm-labs/orderbook-aggregator/internal/aggregator"
	"github.com/xm-labs/orderbook-aggregator/internal/config"
	"github.com/xm-labs/orderbook-aggregator/internal/dashboard"
	"github.com/xm-labs/orderbook-aggregator/internal/exchange"
	"github.com/xm-labs/orderbook-aggregator/internal/registry"
	"github.com/xm-labs/orderbook-aggregator/internal/rpc"
	"github.com/xm-labs/orderbook-aggregator/internal/rpc/pb"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("AGG_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	var adapters []exchange.Adapter
	if cfg.Exchanges.Binance.Enabled {
		adapters = append(adapters, exchange.NewBinance(logger, cfg.Exchanges.Binance.SnapshotBootstrap))
	}
	if cfg.Exchanges.Bitstamp.Enabled {
		adapters = append(adapters, exchange.NewBitstamp(logger))
	}
	catalog := exchange.NewCatalog(adapters...)

	aggCfg := aggregator.Config{
		Depth:            cfg.Aggregator.Depth,
		MaxAttempts:      cfg.Aggregator.MaxAttempts,
		MinSources:       cfg.Aggregator.MinSources,
		DiagInterval:     cfg.Aggregator.DiagLogInterval,
		ReceiveTolerance: cfg.Aggregator.ReceiveTolerance,
	}

	// Metrics are constructed once here, not inside dashboard.NewServer,
	// so the same collectors can be wired into the Aggregator's
	// OnConnectAttempt hook below. This is the composition-time hookup
	// for the seam aggregator.Config.OnConnectAttempt exposes, keeping
	// the aggregator package itself free of a prometheus/client_golang
	// dependency.
	metrics := dashboard.NewMetrics()
	aggCfg.OnConnectAttempt = func(exchangeName string) {
		metrics.AdapterReconnects.WithLabelValues(exchangeName).Inc()
	}

	reg := registry.New(catalog, aggCfg, logger)

	var dashServer *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashServer = dashboard.NewServer(cfg.Dashboard, cfg.Metrics, reg, metrics, logger)
		go func() {
			if err := dashServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	grpcServer := grpc.NewServer()
	rpcServer := rpc.NewServer(reg, logger)
	pb.RegisterOrderbookAggregatorServer(grpcServer, rpcServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("gRPC server starting", "addr", addr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server failed", "error", err)
		}
	}()

	logger.Info("orderbook aggregator started",
		"exchanges", catalog.Names(),
		"depth", cfg.Aggregator.Depth,
		"min_sources", cfg.Aggregator.MinSources,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if dashServer != nil {
		if err := dashServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	grpcServer.GracefulStop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
