package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xm-labs/orderbook-aggregator/internal/config"
	"github.com/xm-labs/orderbook-aggregator/internal/registry"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Server runs the ambient dashboard's HTTP/WebSocket surface: a
// NewServeMux-routed http.Server with fixed timeouts and a Start/Stop
// lifecycle backed by a graceful shutdown, fed by the Subscription
// Registry.
type Server struct {
	cfg     config.DashboardConfig
	hub     *Hub
	store   *snapshotStore
	metrics *Metrics
	reg     *registry.Registry
	server  *http.Server
	logger  *slog.Logger

	stopGauge chan struct{}
}

// NewServer constructs a dashboard Server backed by reg. metrics is
// constructed by the caller (main.go) so the same collectors can also be
// wired into the Aggregator's OnConnectAttempt hook; NewServer never
// registers its own Metrics, since promauto panics on duplicate
// registration against the default registry.
func NewServer(cfg config.DashboardConfig, metricsCfg config.MetricsConfig, reg *registry.Registry, metrics *Metrics, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	store := newSnapshotStore(reg, func(pair types.TradedPair, summary types.Summary) {
		metrics.SummariesPublished.WithLabelValues(pair.String()).Inc()
		hub.BroadcastSummary(pair.String(), summary)
	})

	mux := http.NewServeMux()
	handlers := NewHandlers(cfg, store, hub, logger)
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	if metricsCfg.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:       cfg,
		hub:       hub,
		store:     store,
		metrics:   metrics,
		reg:       reg,
		server:    server,
		logger:    logger.With("component", "dashboard-server"),
		stopGauge: make(chan struct{}),
	}
}

// Metrics returns the Server's Prometheus collectors, for callers that
// need to wire other components (e.g. the Aggregator's connect-attempt
// hook) into the same registered series.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Start runs the hub loop, the active-aggregator gauge poller, and serves
// HTTP until Stop is called.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.pollActiveAggregators()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server error: %w", err)
	}
	return nil
}

// pollActiveAggregators keeps the active_aggregators gauge in sync with
// the Subscription Registry's live entry count.
func (s *Server) pollActiveAggregators() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metrics.ActiveAggregators.Set(float64(s.reg.Len()))
		case <-s.stopGauge:
			return
		}
	}
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")
	close(s.stopGauge)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
