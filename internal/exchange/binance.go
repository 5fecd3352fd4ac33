package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

const (
	binanceName       = "Binance"
	binanceWSBase     = "wss://stream.binance.com:9443/ws"
	binanceRESTBase   = "https://api.binance.com"
	binanceDepth      = 10
	binanceUpdateMs   = 100
	binanceReadBuffer = streamBufferSize
)

// Binance streams partial order-book depth updates from Binance's public
// websocket API. It is a cheap, cloneable config value — no connection
// state is held on the struct itself, matching the Cloneability rule in
// spec.md §4.1.
type Binance struct {
	wsBase          string
	restBase        string
	snapshotEnabled bool
	logger          *slog.Logger
}

// NewBinance constructs a Binance adapter. snapshotBootstrap enables the
// optional REST depth-snapshot fetch on connect (spec.md §4.1's domain
// stack enrichment); it is controlled by configs/config.yaml's
// exchanges.binance.snapshot_bootstrap field.
func NewBinance(logger *slog.Logger, snapshotBootstrap bool) *Binance {
	return &Binance{
		wsBase:          binanceWSBase,
		restBase:        binanceRESTBase,
		snapshotEnabled: snapshotBootstrap,
		logger:          logger.With("component", "exchange", "exchange_name", binanceName),
	}
}

// Name implements Adapter.
func (b *Binance) Name() string { return binanceName }

// Clone implements Adapter.
func (b *Binance) Clone() Adapter {
	clone := *b
	return &clone
}

// StreamOrderBookForPair implements Adapter.
func (b *Binance) StreamOrderBookForPair(ctx context.Context, pair types.TradedPair) (<-chan Tick, error) {
	if err := pair.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", binanceName, ErrPairNotSupported)
	}

	url := fmt.Sprintf("%s/%s@depth%d@%dms", b.wsBase, pair.SymbolLower(), binanceDepth, binanceUpdateMs)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, wrapConnectErr(binanceName, err)
	}

	ticks := make(chan Tick, binanceReadBuffer)

	// Best-effort REST snapshot so the very first tick is not only a thin
	// partial-depth delta. Failure here is not fatal — the websocket
	// stream alone satisfies the adapter contract.
	if b.snapshotEnabled {
		if snap, err := b.fetchSnapshot(ctx, pair); err != nil {
			b.logger.Debug("snapshot bootstrap skipped", "pair", pair, "error", err)
		} else {
			select {
			case ticks <- Tick{Book: snap, Received: time.Now()}:
			default:
				b.logger.Warn("stream buffer full, dropping bootstrap snapshot", "pair", pair)
			}
		}
	}

	go b.readLoop(ctx, conn, ticks)

	return ticks, nil
}

func (b *Binance) readLoop(ctx context.Context, conn *websocket.Conn, ticks chan<- Tick) {
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

		var payload partialBookDepth
		if err := json.Unmarshal(msg, &payload); err != nil {
			if websocket.IsCloseError(err) {
				return
			}
			b.logger.Debug("dropping unparseable frame", "error", err)
			continue
		}

		book, err := newBinanceOrderBook(payload)
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

// fetchSnapshot pulls a REST depth snapshot, rate-limited so a burst of
// Aggregator (re)connects cannot hammer the exchange's REST endpoint.
func (b *Binance) fetchSnapshot(ctx context.Context, pair types.TradedPair) (types.OrderBook, error) {
	bucket := snapshotBucket()
	if err := bucket.Wait(ctx); err != nil {
		return nil, err
	}

	client := resty.New().SetBaseURL(b.restBase).SetTimeout(5 * time.Second)

	var payload partialBookDepth
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": upperSymbol(pair),
			"limit":  fmt.Sprintf("%d", binanceDepth),
		}).
		SetResult(&payload).
		Get("/api/v3/depth")
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("snapshot request: status %d", resp.StatusCode())
	}

	return newBinanceOrderBook(payload)
}

func upperSymbol(pair types.TradedPair) string {
	b := []byte(pair.SymbolLower())
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// partialBookDepth is Binance's partial book depth payload: an array of
// [price, quantity] string pairs per side.
type partialBookDepth struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (p partialBookDepth) parseSide(side [][]string) ([]types.Order, error) {
	orders := make([]types.Order, 0, len(side))
	for _, pair := range side {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed level %v", pair)
		}
		order, err := types.ParseOrder(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// binanceOrderBook adapts a parsed partialBookDepth payload to the shared
// types.OrderBook interface.
type binanceOrderBook struct {
	bids []types.Order
	asks []types.Order
}

func newBinanceOrderBook(payload partialBookDepth) (types.OrderBook, error) {
	bids, err := payload.parseSide(payload.Bids)
	if err != nil {
		return nil, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := payload.parseSide(payload.Asks)
	if err != nil {
		return nil, fmt.Errorf("parse asks: %w", err)
	}
	return &binanceOrderBook{bids: bids, asks: asks}, nil
}

func (b *binanceOrderBook) Source() string { return binanceName }

func (b *binanceOrderBook) Spread() float64 {
	asks := b.BestAsks(1)
	bids := b.BestBids(1)
	if len(asks) == 0 || len(bids) == 0 {
		return 0
	}
	return asks[0].Price - bids[0].Price
}

func (b *binanceOrderBook) BestAsks(depth int) []types.Level {
	return SortLevelsToDepth(b.asks, Ascending, depth, binanceName)
}

func (b *binanceOrderBook) BestBids(depth int) []types.Level {
	return SortLevelsToDepth(b.bids, Descending, depth, binanceName)
}
