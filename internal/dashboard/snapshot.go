package dashboard

import (
	"context"
	"sync"

	"github.com/xm-labs/orderbook-aggregator/internal/registry"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// snapshotStore caches the most recently published Summary per pair,
// fed by a background subscriber the dashboard keeps attached to the
// Registry for every pair a browser client has asked about. It never
// creates an Aggregator on its own behalf beyond what Registry.Subscribe
// already does for the gRPC plane — the dashboard rides the same
// Subscription Registry, it does not duplicate it.
type snapshotStore struct {
	reg      *registry.Registry
	onUpdate func(types.TradedPair, types.Summary)

	mu      sync.RWMutex
	latest  map[types.TradedPair]types.Summary
	watched map[types.TradedPair]bool
}

func newSnapshotStore(reg *registry.Registry, onUpdate func(types.TradedPair, types.Summary)) *snapshotStore {
	return &snapshotStore{
		reg:      reg,
		onUpdate: onUpdate,
		latest:   make(map[types.TradedPair]types.Summary),
		watched:  make(map[types.TradedPair]bool),
	}
}

// watch ensures a background subscriber is attached to pair, caching
// every Summary it observes. Safe to call repeatedly; only the first
// call per pair starts a subscriber.
func (s *snapshotStore) watch(ctx context.Context, pair types.TradedPair) {
	s.mu.Lock()
	if s.watched[pair] {
		s.mu.Unlock()
		return
	}
	s.watched[pair] = true
	s.mu.Unlock()

	go func() {
		sub := s.reg.Subscribe(ctx, pair)
		defer sub.Unsubscribe()

		for update := range sub.C {
			if update.Err != nil {
				continue
			}
			s.mu.Lock()
			s.latest[pair] = update.Summary
			s.mu.Unlock()

			if s.onUpdate != nil {
				s.onUpdate(pair, update.Summary)
			}
		}

		s.mu.Lock()
		delete(s.watched, pair)
		s.mu.Unlock()
	}()
}

func (s *snapshotStore) get(pair types.TradedPair) (types.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.latest[pair]
	return summary, ok
}
