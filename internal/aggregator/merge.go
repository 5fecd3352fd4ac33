// Package aggregator implements the Order-Book Merge, the per-pair
// Aggregator state machine, and the bounded lossy broadcast bus used to
// fan published Summaries out to subscribers.
package aggregator

import (
	"sort"

	"github.com/xm-labs/orderbook-aggregator/pkg/types"
)

// Merge combines best_asks(depth)/best_bids(depth) from every distinct
// source book into a single top-of-book Summary, exactly per spec.md
// §4.2: concatenate, sort with the shared tie-break rules, truncate to
// depth, and compute spread. It returns types.ErrInsufficientDepth
// instead of panicking when either side is empty after truncation, so
// the Aggregator can treat the tick as skipped rather than fatal.
func Merge(books []types.OrderBook, depth int) (types.Summary, error) {
	var asks, bids []types.Level
	for _, book := range books {
		asks = append(asks, book.BestAsks(depth)...)
		bids = append(bids, book.BestBids(depth)...)
	}

	sort.SliceStable(asks, func(i, j int) bool { return asks[i].LessAsAsk(asks[j]) })
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].LessAsBid(bids[j]) })

	if depth < len(asks) {
		asks = asks[:depth]
	}
	if depth < len(bids) {
		bids = bids[:depth]
	}

	if len(asks) == 0 || len(bids) == 0 {
		return types.Summary{}, types.ErrInsufficientDepth
	}

	return types.Summary{
		Spread: asks[0].Price - bids[0].Price,
		Asks:   asks,
		Bids:   bids,
	}, nil
}
