package exchange

import (
	"io"
	"log/slog"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPair(first, second string) types.TradedPair {
	return types.NewTradedPair(first, second)
}
