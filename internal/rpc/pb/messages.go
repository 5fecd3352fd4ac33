// Package pb holds the message and service definitions for the
// OrderbookAggregator gRPC service. A .proto toolchain is not available
// in this build environment, so this package is hand-authored in the
// shape protoc-gen-go / protoc-gen-go-grpc would produce, with a JSON
// wire codec (codec.go) standing in for the canonical protobuf codec.
// orderbook.proto remains the source of truth for the message and
// service shapes.
package pb

// TradedPair is the BookSummary request: the two symbols of the market
// being subscribed to.
type TradedPair struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// GetFirst is a nil-safe accessor, matching the style protoc-gen-go
// generates for message fields.
func (p *TradedPair) GetFirst() string {
	if p == nil {
		return ""
	}
	return p.First
}

// GetSecond is a nil-safe accessor, matching the style protoc-gen-go
// generates for message fields.
func (p *TradedPair) GetSecond() string {
	if p == nil {
		return ""
	}
	return p.Second
}

// Level is one (exchange, price, amount) point on a Summary's bid or ask
// side.
type Level struct {
	Exchange string  `json:"exchange"`
	Price    float64 `json:"price"`
	Amount   float64 `json:"amount"`
}

// Summary is one message in the BookSummary response stream.
type Summary struct {
	Spread float64  `json:"spread"`
	Bids   []*Level `json:"bids"`
	Asks   []*Level `json:"asks"`
}
