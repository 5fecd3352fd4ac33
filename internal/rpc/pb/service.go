package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully-qualified gRPC service name, matching
// orderbook.proto's "package orderbook; service OrderbookAggregator".
const ServiceName = "orderbook.OrderbookAggregator"

// OrderbookAggregatorClient is the client API for the OrderbookAggregator
// service.
type OrderbookAggregatorClient interface {
	BookSummary(ctx context.Context, in *TradedPair, opts ...grpc.CallOption) (OrderbookAggregator_BookSummaryClient, error)
}

type orderbookAggregatorClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderbookAggregatorClient constructs a client bound to cc.
func NewOrderbookAggregatorClient(cc grpc.ClientConnInterface) OrderbookAggregatorClient {
	return &orderbookAggregatorClient{cc}
}

func (c *orderbookAggregatorClient) BookSummary(ctx context.Context, in *TradedPair, opts ...grpc.CallOption) (OrderbookAggregator_BookSummaryClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/BookSummary", opts...)
	if err != nil {
		return nil, err
	}
	x := &orderbookAggregatorBookSummaryClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// OrderbookAggregator_BookSummaryClient is the client-side handle on the
// BookSummary response stream.
type OrderbookAggregator_BookSummaryClient interface {
	Recv() (*Summary, error)
	grpc.ClientStream
}

type orderbookAggregatorBookSummaryClient struct {
	grpc.ClientStream
}

func (x *orderbookAggregatorBookSummaryClient) Recv() (*Summary, error) {
	m := new(Summary)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// OrderbookAggregatorServer is the server API for the OrderbookAggregator
// service.
type OrderbookAggregatorServer interface {
	BookSummary(*TradedPair, OrderbookAggregator_BookSummaryServer) error
}

// UnimplementedOrderbookAggregatorServer can be embedded in an
// implementation to satisfy forward compatibility, matching the pattern
// protoc-gen-go-grpc generates.
type UnimplementedOrderbookAggregatorServer struct{}

func (UnimplementedOrderbookAggregatorServer) BookSummary(*TradedPair, OrderbookAggregator_BookSummaryServer) error {
	return status.Errorf(codes.Unimplemented, "method BookSummary not implemented")
}

// OrderbookAggregator_BookSummaryServer is the server-side handle on the
// BookSummary response stream.
type OrderbookAggregator_BookSummaryServer interface {
	Send(*Summary) error
	grpc.ServerStream
}

type orderbookAggregatorBookSummaryServer struct {
	grpc.ServerStream
}

func (x *orderbookAggregatorBookSummaryServer) Send(m *Summary) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterOrderbookAggregatorServer registers srv with s.
func RegisterOrderbookAggregatorServer(s grpc.ServiceRegistrar, srv OrderbookAggregatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func _OrderbookAggregator_BookSummary_Handler(srv any, stream grpc.ServerStream) error {
	m := new(TradedPair)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(OrderbookAggregatorServer).BookSummary(m, &orderbookAggregatorBookSummaryServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc for OrderbookAggregator, in the
// shape protoc-gen-go-grpc would emit.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderbookAggregatorServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BookSummary",
			Handler:       _OrderbookAggregator_BookSummary_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "orderbook.proto",
}
