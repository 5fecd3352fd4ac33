package exchange

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewBitstampOrderBook(t *testing.T) {
	t.Parallel()

	payload := bitstampOrderBookData{
		Bids: [][]string{{"50.0", "1.0"}, {"49.5", "2.0"}},
		Asks: [][]string{{"50.5", "1.0"}, {"51.0", "2.0"}},
	}

	book, err := newBitstampOrderBook(payload)
	if err != nil {
		t.Fatalf("newBitstampOrderBook() error = %v", err)
	}
	if got := book.Source(); got != bitstampName {
		t.Errorf("Source() = %q, want %q", got, bitstampName)
	}

	bids := book.BestBids(10)
	if len(bids) != 2 || bids[0].Price != 50.0 {
		t.Errorf("BestBids() = %+v, want descending starting at 50.0", bids)
	}
}

func TestBitstampOrderBookDataMalformedLevel(t *testing.T) {
	t.Parallel()

	payload := bitstampOrderBookData{
		Asks: [][]string{{"50.5", "1.0", "extra"}},
	}
	if _, err := newBitstampOrderBook(payload); err == nil {
		t.Error("expected error for malformed ask level")
	}
}

func TestBitstampEnvelopeParsesDataPayload(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"event":"data","channel":"order_book_btcusd","data":{"bids":[["50.0","1.0"]],"asks":[["50.5","1.0"]]}}`)

	var envelope bitstampEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if envelope.Event != "data" {
		t.Fatalf("Event = %q, want %q", envelope.Event, "data")
	}

	var payload bitstampOrderBookData
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		t.Fatalf("Unmarshal data: %v", err)
	}
	if len(payload.Bids) != 1 || payload.Bids[0][0] != "50.0" {
		t.Errorf("Bids = %+v, want one level at 50.0", payload.Bids)
	}
}

func TestBitstampStreamRejectsUnsupportedPair(t *testing.T) {
	t.Parallel()

	b := NewBitstamp(discardLogger())
	_, err := b.StreamOrderBookForPair(context.Background(), newTestPair("ZZZ", "QQQ"))
	if err == nil {
		t.Fatal("expected error for unsupported pair")
	}
}

func TestBitstampValidPairsContainsCommonMarkets(t *testing.T) {
	t.Parallel()

	for _, symbol := range []string{"btcusd", "ethbtc", "xrpeur"} {
		if _, ok := bitstampValidPairs[symbol]; !ok {
			t.Errorf("expected %q to be a valid Bitstamp pair", symbol)
		}
	}
}
