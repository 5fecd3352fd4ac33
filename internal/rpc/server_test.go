package rpc

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xm-labs/orderbook-aggregator/internal/aggregator"
	"github.com/xm-labs/orderbook-aggregator/internal/exchange"
	"github.com/xm-labs/orderbook-aggregator/internal/registry"
	"github.com/xm-labs/orderbook-aggregator/internal/rpc/pb"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream is a minimal pb.OrderbookAggregator_BookSummaryServer stub
// for exercising Server.BookSummary without a real gRPC transport.
type fakeStream struct {
	ctx  context.Context
	sent chan *pb.Summary
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{ctx: ctx, sent: make(chan *pb.Summary, 10)}
}

func (f *fakeStream) Send(m *pb.Summary) error {
	f.sent <- m
	return nil
}

func (f *fakeStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeStream) SetTrailer(metadata.MD)       {}
func (f *fakeStream) Context() context.Context     { return f.ctx }
func (f *fakeStream) SendMsg(m any) error          { return nil }
func (f *fakeStream) RecvMsg(m any) error          { return nil }

var _ grpc.ServerStream = (*fakeStream)(nil)

type fakeAdapter struct {
	name  string
	ticks chan exchange.Tick
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, ticks: make(chan exchange.Tick, 10)}
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) Clone() exchange.Adapter { return f }
func (f *fakeAdapter) StreamOrderBookForPair(ctx context.Context, pair types.TradedPair) (<-chan exchange.Tick, error) {
	return f.ticks, nil
}

type fakeLevelBook struct {
	source string
	asks   []types.Level
	bids   []types.Level
}

func (b *fakeLevelBook) Source() string { return b.source }
func (b *fakeLevelBook) Spread() float64 {
	if len(b.asks) == 0 || len(b.bids) == 0 {
		return 0
	}
	return b.asks[0].Price - b.bids[0].Price
}
func (b *fakeLevelBook) BestAsks(depth int) []types.Level { return b.asks }
func (b *fakeLevelBook) BestBids(depth int) []types.Level { return b.bids }

func TestBookSummaryRejectsEmptyPair(t *testing.T) {
	t.Parallel()

	catalog := exchange.NewCatalog(newFakeAdapter("A"), newFakeAdapter("B"))
	reg := registry.New(catalog, aggregator.Config{MaxAttempts: 1, MinSources: 2}, discardLogger())
	srv := NewServer(reg, discardLogger())

	stream := newFakeStream(context.Background())
	err := srv.BookSummary(&pb.TradedPair{First: "", Second: ""}, stream)

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("BookSummary() error = %v, want InvalidArgument", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (no aggregator created for invalid request)", reg.Len())
	}
}

func TestBookSummaryForwardsSummaries(t *testing.T) {
	t.Parallel()

	a := newFakeAdapter("A")
	b := newFakeAdapter("B")
	catalog := exchange.NewCatalog(a, b)
	reg := registry.New(catalog, aggregator.Config{MaxAttempts: 1, MinSources: 2}, discardLogger())
	srv := NewServer(reg, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := newFakeStream(ctx)

	done := make(chan error, 1)
	go func() {
		done <- srv.BookSummary(&pb.TradedPair{First: "ETH", Second: "BTC"}, stream)
	}()

	a.ticks <- exchange.Tick{Book: &fakeLevelBook{
		source: "A",
		asks:   []types.Level{types.NewLevel("A", 101, 1)},
		bids:   []types.Level{types.NewLevel("A", 99, 1)},
	}}
	b.ticks <- exchange.Tick{Book: &fakeLevelBook{
		source: "B",
		asks:   []types.Level{types.NewLevel("B", 100, 1)},
		bids:   []types.Level{types.NewLevel("B", 98, 1)},
	}}

	select {
	case summary := <-stream.sent:
		if len(summary.Asks) == 0 || len(summary.Bids) == 0 {
			t.Fatalf("got empty summary: %+v", summary)
		}
	case err := <-done:
		t.Fatalf("BookSummary() returned early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for forwarded summary")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("BookSummary() error after client cancel = %v, want nil", err)
	}
}

func TestBookSummaryReportsInternalOnAggregatorError(t *testing.T) {
	t.Parallel()

	failing := newFakeAdapter("A")
	close(failing.ticks)
	other := newFakeAdapter("B")
	close(other.ticks)
	catalog := exchange.NewCatalog(failing, other)
	reg := registry.New(catalog, aggregator.Config{MaxAttempts: 1, MinSources: 2}, discardLogger())
	srv := NewServer(reg, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := newFakeStream(ctx)

	err := srv.BookSummary(&pb.TradedPair{First: "ETH", Second: "BTC"}, stream)
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("BookSummary() error = %v, want a status error", err)
	}
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}
}
