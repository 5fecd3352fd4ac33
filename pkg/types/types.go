// Package types defines the shared value types used across every layer of
// the aggregation service: traded pairs, exchange orders, aggregator-facing
// levels, and the merged summary handed to subscribers. It has no
// dependencies on internal packages so it can be imported by adapters,
// the aggregator, the registry, and the RPC layer alike.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// DefaultDepth is the service-wide display depth N: the number of price
// levels kept on each side of a Summary and requested from each OrderBook.
const DefaultDepth = 10

// TradedPair is an ordered pair of asset symbols identifying a market, e.g.
// ("ETH", "BTC"). Equality is structural and case-sensitive on both fields.
type TradedPair struct {
	First  string
	Second string
}

// NewTradedPair constructs a TradedPair. Both symbols must be non-empty;
// callers that need to validate user input should use Validate.
func NewTradedPair(first, second string) TradedPair {
	return TradedPair{First: first, Second: second}
}

// Validate reports whether the pair has both components populated.
func (p TradedPair) Validate() error {
	if p.First == "" || p.Second == "" {
		return errors.New("traded pair requires both first and second symbols")
	}
	return nil
}

// String renders the pair in its human display form, "FIRST-SECOND".
func (p TradedPair) String() string {
	return fmt.Sprintf("%s-%s", p.First, p.Second)
}

// SymbolLower returns the canonical exchange symbol: the lowercase
// concatenation of both components, e.g. "ethbtc".
func (p TradedPair) SymbolLower() string {
	return toLower(p.First) + toLower(p.Second)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Order is a single price/quantity pair as it appears in an exchange
// payload, before it is tagged with a source exchange. Exchanges encode
// price and quantity as decimal strings; ParseOrder accepts that form.
type Order struct {
	Price    float64
	Quantity float64
}

// ParseOrder parses the numeric-string [price, quantity] pair an exchange
// sends on the wire into an Order. Both the Binance and Bitstamp payloads
// represent book levels this way.
func ParseOrder(priceStr, quantityStr string) (Order, error) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return Order{}, fmt.Errorf("parse order price %q: %w", priceStr, err)
	}
	quantity, err := strconv.ParseFloat(quantityStr, 64)
	if err != nil {
		return Order{}, fmt.Errorf("parse order quantity %q: %w", quantityStr, err)
	}
	return Order{Price: price, Quantity: quantity}, nil
}

// Level is an Order annotated with the exchange it was sourced from. It is
// the aggregator-facing unit that survives the merge into a Summary.
type Level struct {
	Exchange string
	Price    float64
	Amount   float64
}

// NewLevel constructs a Level.
func NewLevel(exchange string, price, amount float64) Level {
	return Level{Exchange: exchange, Price: price, Amount: amount}
}

// LessAsAsk reports whether l sorts before other when ordering asks:
// ascending by price, ties broken by descending amount.
func (l Level) LessAsAsk(other Level) bool {
	if l.Price != other.Price {
		return l.Price < other.Price
	}
	return l.Amount > other.Amount
}

// LessAsBid reports whether l sorts before other when ordering bids:
// descending by price, ties broken by descending amount.
func (l Level) LessAsBid(other Level) bool {
	if l.Price != other.Price {
		return l.Price > other.Price
	}
	return l.Amount > other.Amount
}

// OrderBook is the normalized view every Exchange Adapter produces. A given
// implementation's source() must remain stable for the book's lifetime, and
// both BestAsks and BestBids must report Levels tagged with that same
// source string.
type OrderBook interface {
	// Source returns the stable exchange name this book came from.
	Source() string
	// Spread returns best_ask.price - best_bid.price.
	Spread() float64
	// BestAsks returns up to depth Levels sorted ascending by price, ties
	// broken by descending amount.
	BestAsks(depth int) []Level
	// BestBids returns up to depth Levels sorted descending by price, ties
	// broken by descending amount.
	BestBids(depth int) []Level
}

// Summary is the aggregated top-of-book view merged across multiple
// exchange sources: a spread plus up to the configured display depth
// (DefaultDepth unless configured otherwise) of asks and bids.
type Summary struct {
	Spread float64
	Asks   []Level
	Bids   []Level
}

// ErrInsufficientDepth is returned by the merge when either side of the
// combined book is empty after truncation, meaning no spread can be
// computed. Callers must treat this as a skipped tick, not a fatal error.
var ErrInsufficientDepth = errors.New("insufficient depth to compute summary")
