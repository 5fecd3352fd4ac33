// Package exchange implements the Exchange Adapter abstraction: one adapter
// per supported venue, each normalising that venue's order-book stream into
// the shared types.OrderBook interface.
//
// Concrete adapters (binance.go, bitstamp.go) own exactly one websocket per
// call to StreamOrderBookForPair, perform their venue's subscription
// handshake, and deliver parsed order books on a bounded channel. Adapter
// values are cheap, cloneable config structs so the Subscription Registry
// can hand each Aggregator its own independent stream without resharing
// connections.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Recommended bound for an adapter's output channel (spec.md §4.1).
const streamBufferSize = 100

// Tick is a single order book update as delivered by an adapter, paired
// with the instant it was received off the wire.
type Tick struct {
	Book     types.OrderBook
	Received time.Time
}

// Adapter is the Exchange Adapter contract (spec.md §4.1). Implementations
// must be cheap to construct and must not perform I/O until
// StreamOrderBookForPair is called.
type Adapter interface {
	// Name returns the adapter's stable, human-readable exchange name.
	Name() string
	// StreamOrderBookForPair opens one websocket and returns a channel of
	// Ticks delivered in arrival order. The channel is closed when the
	// upstream connection ends, terminally fails, or ctx is cancelled.
	StreamOrderBookForPair(ctx context.Context, pair types.TradedPair) (<-chan Tick, error)
	// Clone returns an independent copy of the adapter's configuration.
	// It never shares the underlying websocket of an adapter that has
	// already started streaming.
	Clone() Adapter
}

// Sentinel adapter errors, per spec.md §4.1 / §7.
var (
	// ErrPairNotSupported is returned synchronously, before any I/O, when
	// an adapter's local allowlist rejects the requested pair.
	ErrPairNotSupported = errors.New("traded pair not supported by this adapter")
	// ErrConnectFailed indicates the initial websocket handshake failed.
	ErrConnectFailed = errors.New("exchange connection failed")
	// ErrSubscribeFailed indicates the handshake succeeded but the
	// exchange rejected the subscription request.
	ErrSubscribeFailed = errors.New("exchange subscription rejected")
)

// Ordering selects which direction SortLevelsToDepth truncates from.
type Ordering int

const (
	// Ascending sorts ascending by price (used for asks).
	Ascending Ordering = iota
	// Descending sorts descending by price (used for bids).
	Descending
)

// SortLevelsToDepth tags each order with source, sorts it per the ordering
// rules in spec.md §3 (primary by price, ties broken by descending amount),
// and truncates to depth. depth <= 0 yields an empty slice; depth greater
// than the number of available orders yields all of them.
func SortLevelsToDepth(orders []types.Order, ordering Ordering, depth int, source string) []types.Level {
	if depth <= 0 {
		return nil
	}

	levels := make([]types.Level, len(orders))
	for i, o := range orders {
		levels[i] = types.NewLevel(source, o.Price, o.Quantity)
	}

	switch ordering {
	case Ascending:
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].LessAsAsk(levels[j]) })
	case Descending:
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].LessAsBid(levels[j]) })
	}

	if depth < len(levels) {
		levels = levels[:depth]
	}
	return levels
}

// Catalog is a cloneable collection of configured adapters, shared by the
// Subscription Registry across every Aggregator it spawns. Handing out
// Catalog.Clone() ensures each Aggregator works with its own adapter
// instances, per the Cloneability rule in spec.md §4.1.
type Catalog struct {
	adapters []Adapter
}

// NewCatalog builds a Catalog from the given adapters.
func NewCatalog(adapters ...Adapter) *Catalog {
	return &Catalog{adapters: adapters}
}

// Clone returns independent copies of every adapter in the catalog, in the
// same order.
func (c *Catalog) Clone() []Adapter {
	cloned := make([]Adapter, len(c.adapters))
	for i, a := range c.adapters {
		cloned[i] = a.Clone()
	}
	return cloned
}

// Names returns the stable names of every adapter in the catalog, useful
// for logging and metrics labels.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.adapters))
	for i, a := range c.adapters {
		names[i] = a.Name()
	}
	return names
}

func wrapConnectErr(name string, err error) error {
	return fmt.Errorf("%s: %w: %v", name, ErrConnectFailed, err)
}

func wrapSubscribeErr(name string, err error) error {
	return fmt.Errorf("%s: %w: %v", name, ErrSubscribeFailed, err)
}
