// Package registry implements the process-wide Subscription Registry
// (spec.md §4.4): one Aggregator per TradedPair, shared by every
// subscriber, created at most once per pair even under concurrent
// subscribe calls.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xm-labs/orderbook-aggregator/internal/aggregator"
	"github.com/xm-labs/orderbook-aggregator/internal/exchange"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Registry maps TradedPair to the single live Aggregator serving it. The
// mutex is held only across map lookup/insert, never across I/O or the
// Aggregator's Run loop, per spec.md §4.4.
type Registry struct {
	mu      sync.Mutex
	entries map[types.TradedPair]*aggregator.Aggregator

	catalog *exchange.Catalog
	cfg     aggregator.Config
	logger  *slog.Logger
}

// New constructs a Registry backed by the given adapter catalog. cfg
// supplies the depth/MaxAttempts/MinSources/DiagInterval defaults shared
// by every Aggregator it spawns; cfg.Pair is overwritten per pair.
func New(catalog *exchange.Catalog, cfg aggregator.Config, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[types.TradedPair]*aggregator.Aggregator),
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.With("component", "registry"),
	}
}

// Subscribe returns a fresh Subscriber attached to the Aggregator for
// pair, creating and starting that Aggregator on first use. Concurrent
// calls for the same pair are guaranteed to produce exactly one
// Aggregator: the second caller observes the Aggregator started by the
// first. The Aggregator inherits ctx's values but not its cancellation,
// so it keeps running after the subscriber that created it goes away.
func (r *Registry) Subscribe(ctx context.Context, pair types.TradedPair) *aggregator.Subscriber {
	r.mu.Lock()
	agg, ok := r.entries[pair]
	var sub *aggregator.Subscriber
	if !ok {
		cfg := r.cfg
		cfg.Pair = pair
		agg = aggregator.New(cfg, r.catalog, r.logger)
		r.entries[pair] = agg

		// Attach the creating subscriber before the Aggregator starts
		// running: a fast-terminating Aggregator (e.g. insufficient
		// sources) can otherwise close its bus before anyone is
		// listening, turning the terminal error into a closed channel.
		sub = agg.Bus().Subscribe()

		r.logger.Info("starting aggregator for new pair", "pair", pair)
		go r.run(context.WithoutCancel(ctx), pair, agg)
	}
	r.mu.Unlock()

	if sub != nil {
		return sub
	}
	return agg.Bus().Subscribe()
}

// run drives the Aggregator to completion and evicts it from the
// Registry once it terminates, so the next Subscribe call for the same
// pair starts a fresh Aggregator (spec.md §4.4 "Eviction").
func (r *Registry) run(ctx context.Context, pair types.TradedPair, agg *aggregator.Aggregator) {
	agg.Run(ctx)

	r.mu.Lock()
	if r.entries[pair] == agg {
		delete(r.entries, pair)
	}
	r.mu.Unlock()

	r.logger.Info("evicted terminated aggregator", "pair", pair)
}

// Len reports the number of pairs currently being served, for
// diagnostics and tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
