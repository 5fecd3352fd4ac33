// Package rpc implements the gRPC Server Front-End (spec.md §4.5, §6):
// one streaming RPC, BookSummary, backed by the Subscription Registry.
package rpc

import (
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xm-labs/orderbook-aggregator/internal/registry"
	"github.com/xm-labs/orderbook-aggregator/internal/rpc/pb"
	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Server implements pb.OrderbookAggregatorServer over a Registry.
type Server struct {
	pb.UnimplementedOrderbookAggregatorServer

	registry *registry.Registry
	logger   *slog.Logger
}

// NewServer constructs a Server backed by reg.
func NewServer(reg *registry.Registry, logger *slog.Logger) *Server {
	return &Server{registry: reg, logger: logger.With("component", "rpc")}
}

// BookSummary implements the BookSummary(TradedPair) -> stream<Summary>
// RPC exactly per spec.md §4.5/§6: validates the request synchronously,
// subscribes through the Registry, and forwards Updates until the
// subscriber's bus closes or the client disconnects.
func (s *Server) BookSummary(req *pb.TradedPair, stream pb.OrderbookAggregator_BookSummaryServer) error {
	pair := types.NewTradedPair(req.GetFirst(), req.GetSecond())
	if err := pair.Validate(); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid traded pair: %v", err)
	}

	ctx := stream.Context()
	sub := s.registry.Subscribe(ctx, pair)
	defer sub.Unsubscribe()

	s.logger.Info("subscriber attached", "pair", pair)

	for {
		select {
		case <-ctx.Done():
			// Downstream client disconnected: exit silently and drop
			// the subscriber handle, per spec.md §4.5.
			return nil

		case update, ok := <-sub.C:
			if !ok {
				return status.Errorf(codes.Unavailable, "aggregator for %s is no longer available", pair)
			}
			if update.Err != nil {
				return status.Errorf(codes.Internal, "aggregator error for %s: %v", pair, update.Err)
			}

			if err := stream.Send(toProtoSummary(update.Summary)); err != nil {
				return err
			}
		}
	}
}

func toProtoSummary(summary types.Summary) *pb.Summary {
	out := &pb.Summary{
		Spread: summary.Spread,
		Bids:   make([]*pb.Level, len(summary.Bids)),
		Asks:   make([]*pb.Level, len(summary.Asks)),
	}
	for i, l := range summary.Bids {
		out.Bids[i] = &pb.Level{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	for i, l := range summary.Asks {
		out.Asks[i] = &pb.Level{Exchange: l.Exchange, Price: l.Price, Amount: l.Amount}
	}
	return out
}
