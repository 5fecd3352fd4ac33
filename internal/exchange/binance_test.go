package exchange

import (
	"testing"
)

func TestNewBinanceOrderBook(t *testing.T) {
	t.Parallel()

	payload := partialBookDepth{
		Bids: [][]string{{"100.5", "2.0"}, {"100.0", "1.0"}},
		Asks: [][]string{{"101.0", "1.5"}, {"101.5", "3.0"}},
	}

	book, err := newBinanceOrderBook(payload)
	if err != nil {
		t.Fatalf("newBinanceOrderBook() error = %v", err)
	}
	if got := book.Source(); got != binanceName {
		t.Errorf("Source() = %q, want %q", got, binanceName)
	}

	asks := book.BestAsks(10)
	if len(asks) != 2 || asks[0].Price != 101.0 {
		t.Errorf("BestAsks() = %+v, want ascending starting at 101.0", asks)
	}

	bids := book.BestBids(10)
	if len(bids) != 2 || bids[0].Price != 100.5 {
		t.Errorf("BestBids() = %+v, want descending starting at 100.5", bids)
	}

	if got, want := book.Spread(), 0.5; got != want {
		t.Errorf("Spread() = %v, want %v", got, want)
	}
}

func TestNewBinanceOrderBookMalformedLevel(t *testing.T) {
	t.Parallel()

	payload := partialBookDepth{
		Bids: [][]string{{"100.5"}},
	}
	if _, err := newBinanceOrderBook(payload); err == nil {
		t.Error("expected error for malformed bid level")
	}
}

func TestNewBinanceOrderBookInvalidPrice(t *testing.T) {
	t.Parallel()

	payload := partialBookDepth{
		Asks: [][]string{{"not-a-number", "1.0"}},
	}
	if _, err := newBinanceOrderBook(payload); err == nil {
		t.Error("expected error for unparseable price")
	}
}

func TestBinanceNameAndClone(t *testing.T) {
	t.Parallel()

	b := NewBinance(discardLogger(), true)
	if got := b.Name(); got != "Binance" {
		t.Errorf("Name() = %q, want %q", got, "Binance")
	}

	clone := b.Clone()
	if clone == Adapter(b) {
		t.Error("Clone() returned the same instance")
	}
	if clone.Name() != b.Name() {
		t.Errorf("clone Name() = %q, want %q", clone.Name(), b.Name())
	}
}

func TestUpperSymbol(t *testing.T) {
	t.Parallel()

	pair := newTestPair("eth", "BTC")
	if got, want := upperSymbol(pair), "ETHBTC"; got != want {
		t.Errorf("upperSymbol() = %q, want %q", got, want)
	}
}
