package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

const (
	bitstampName   = "Bitstamp"
	bitstampWSURL  = "wss://ws.bitstamp.net"
	bitstampDepth  = 10
	bitstampBuffer = streamBufferSize
)

// bitstampValidPairs is the allowlist Bitstamp publishes for its order_book
// channel. Unlike Binance, Bitstamp rejects unsupported pairs by simply
// never acking the subscription, so the adapter checks this list itself
// before dialing, returning ErrPairNotSupported synchronously rather than
// waiting on a subscription that will never succeed.
var bitstampValidPairs = map[string]struct{}{
	"btcusd": {}, "btceur": {}, "btcgbp": {}, "btcpax": {},
	"ethusd": {}, "etheur": {}, "ethbtc": {}, "ethgbp": {},
	"xrpusd": {}, "xrpeur": {}, "xrpbtc": {}, "xrpgbp": {},
	"ltcusd": {}, "ltceur": {}, "ltcbtc": {}, "ltcgbp": {},
	"linkusd": {}, "linketh": {}, "linkbtc": {}, "linkeur": {},
	"uniusd": {}, "unieur": {}, "unibtc": {},
	"adausd": {}, "adaeur": {}, "adabtc": {},
	"solusd": {}, "soleur": {}, "solbtc": {},
	"usdcusd": {}, "usdceur": {}, "usdtusd": {}, "usdteur": {},
	"maticusd": {}, "maticeur": {}, "maticbtc": {},
	"eurusd": {}, "gbpusd": {}, "gbpeur": {},
}

// Bitstamp streams full order-book snapshots over Bitstamp's public
// websocket API using its bts:subscribe channel handshake.
type Bitstamp struct {
	wsURL  string
	logger *slog.Logger
}

// NewBitstamp constructs a Bitstamp adapter.
func NewBitstamp(logger *slog.Logger) *Bitstamp {
	return &Bitstamp{
		wsURL:  bitstampWSURL,
		logger: logger.With("component", "exchange", "exchange_name", bitstampName),
	}
}

// Name implements Adapter.
func (b *Bitstamp) Name() string { return bitstampName }

// Clone implements Adapter.
func (b *Bitstamp) Clone() Adapter {
	clone := *b
	return &clone
}

// StreamOrderBookForPair implements Adapter.
func (b *Bitstamp) StreamOrderBookForPair(ctx context.Context, pair types.TradedPair) (<-chan Tick, error) {
	if err := pair.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", bitstampName, ErrPairNotSupported)
	}

	symbol := pair.SymbolLower()
	if _, ok := bitstampValidPairs[symbol]; !ok {
		return nil, fmt.Errorf("%s: %w: %s", bitstampName, ErrPairNotSupported, pair)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, nil)
	if err != nil {
		return nil, wrapConnectErr(bitstampName, err)
	}

	channel := "order_book_" + symbol
	sub := bitstampSubscribe{Event: "bts:subscribe"}
	sub.Data.Channel = channel
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, wrapSubscribeErr(bitstampName, err)
	}

	ticks := make(chan Tick, bitstampBuffer)
	go b.readLoop(ctx, conn, channel, ticks)

	return ticks, nil
}

func (b *Bitstamp) readLoop(ctx context.Context, conn *websocket.Conn, channel string, ticks chan<- Tick) {
	defer close(ticks)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Warn("websocket read failed, ending stream", "error", err)
			}
			return
		}

		var envelope bitstampEnvelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			b.logger.Debug("dropping unparseable frame", "error", err)
			continue
		}

		switch envelope.Event {
		case "bts:subscription_succeeded":
			continue
		case "bts:error":
			b.logger.Warn("subscription rejected by venue", "channel", channel)
			return
		case "data":
			// fall through to parse below
		default:
			continue
		}

		var payload bitstampOrderBookData
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			b.logger.Debug("dropping frame with invalid payload", "error", err)
			continue
		}

		book, err := newBitstampOrderBook(payload)
		if err != nil {
			b.logger.Debug("dropping frame with invalid levels", "error", err)
			continue
		}

		select {
		case ticks <- Tick{Book: book, Received: time.Now()}:
		case <-ctx.Done():
			return
		default:
			b.logger.Warn("stream buffer full, dropping tick")
		}
	}
}

// bitstampSubscribe is the bts:subscribe handshake message Bitstamp
// requires before it will stream a channel.
type bitstampSubscribe struct {
	Event string `json:"event"`
	Data  struct {
		Channel string `json:"channel"`
	} `json:"data"`
}

// bitstampEnvelope is the outer shape of every Bitstamp websocket frame;
// Data is left raw until Event identifies it as an order book payload.
type bitstampEnvelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// bitstampOrderBookData is the order_book_<pair> channel's data payload.
type bitstampOrderBookData struct {
	Timestamp string     `json:"timestamp"`
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
}

func (p bitstampOrderBookData) parseSide(side [][]string) ([]types.Order, error) {
	orders := make([]types.Order, 0, len(side))
	for _, level := range side {
		if len(level) != 2 {
			return nil, fmt.Errorf("malformed level %v", level)
		}
		order, err := types.ParseOrder(level[0], level[1])
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// bitstampOrderBook adapts a parsed bitstampOrderBookData payload to the
// shared types.OrderBook interface.
type bitstampOrderBook struct {
	bids []types.Order
	asks []types.Order
}

func newBitstampOrderBook(payload bitstampOrderBookData) (types.OrderBook, error) {
	bids, err := payload.parseSide(payload.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := payload.parseSide(payload.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}
	return &bitstampOrderBook{bids: bids, asks: asks}, nil
}

func (b *bitstampOrderBook) Source() string { return bitstampName }

func (b *bitstampOrderBook) Spread() float64 {
	asks := b.BestAsks(1)
	bids := b.BestBids(1)
	if len(asks) == 0 || len(bids) == 0 {
		return 0
	}
	return asks[0].Price - bids[0].Price
}

func (b *bitstampOrderBook) BestAsks(depth int) []types.Level {
	return SortLevelsToDepth(b.asks, Ascending, depth, bitstampName)
}

func (b *bitstampOrderBook) BestBids(depth int) []types.Level {
	return SortLevelsToDepth(b.bids, Descending, depth, bitstampName)
}
