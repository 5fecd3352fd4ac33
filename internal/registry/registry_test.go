package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xm-labs/orderbook-aggregator/internal/aggregator"
	"github.com/xm-labs/orderbook-aggregator/internal/exchange"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAdapter struct {
	name       string
	failAlways bool
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) Clone() exchange.Adapter { return f }
func (f *fakeAdapter) StreamOrderBookForPair(ctx context.Context, pair types.TradedPair) (<-chan exchange.Tick, error) {
	if f.failAlways {
		return nil, exchange.ErrConnectFailed
	}
	ticks := make(chan exchange.Tick)
	return ticks, nil
}

func TestSubscribeSharesOneAggregatorPerPair(t *testing.T) {
	t.Parallel()

	catalog := exchange.NewCatalog(&fakeAdapter{name: "A"}, &fakeAdapter{name: "B"})
	reg := New(catalog, aggregator.Config{MaxAttempts: 1, MinSources: 2}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pair := types.NewTradedPair("ETH", "BTC")
	subA := reg.Subscribe(ctx, pair)
	subB := reg.Subscribe(ctx, pair)

	if subA == nil || subB == nil {
		t.Fatal("expected non-nil subscribers")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (single shared aggregator)", reg.Len())
	}
}

func TestSubscribeConcurrentCallsProduceOneAggregator(t *testing.T) {
	t.Parallel()

	catalog := exchange.NewCatalog(&fakeAdapter{name: "A"}, &fakeAdapter{name: "B"})
	reg := New(catalog, aggregator.Config{MaxAttempts: 1, MinSources: 2}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pair := types.NewTradedPair("ETH", "BTC")

	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			reg.Subscribe(ctx, pair)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after %d concurrent subscribes", reg.Len(), n)
	}
}

func TestSubscribeEvictsOnTermination(t *testing.T) {
	t.Parallel()

	catalog := exchange.NewCatalog(&fakeAdapter{name: "A", failAlways: true}, &fakeAdapter{name: "B", failAlways: true})
	reg := New(catalog, aggregator.Config{MaxAttempts: 1, MinSources: 2}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := types.NewTradedPair("ETH", "BTC")
	sub := reg.Subscribe(ctx, pair)

	select {
	case <-sub.C:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for terminal update")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reg.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Len() = %d, want 0 after aggregator terminated", reg.Len())
}
