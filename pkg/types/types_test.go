package types

import "testing"

func TestTradedPairString(t *testing.T) {
	t.Parallel()

	p := NewTradedPair("ETH", "BTC")
	if got, want := p.String(), "ETH-BTC"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTradedPairSymbolLower(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pair TradedPair
		want string
	}{
		{NewTradedPair("ETH", "BTC"), "ethbtc"},
		{NewTradedPair("eth", "BTC"), "ethbtc"},
		{NewTradedPair("XRP", "usd"), "xrpusd"},
	}

	for _, tt := range tests {
		if got := tt.pair.SymbolLower(); got != tt.want {
			t.Errorf("SymbolLower(%+v) = %q, want %q", tt.pair, got, tt.want)
		}
	}
}

func TestTradedPairEquality(t *testing.T) {
	t.Parallel()

	one := NewTradedPair("One", "Two")
	also := NewTradedPair("One", "Two")
	other := NewTradedPair("Three", "Four")

	if one != also {
		t.Errorf("expected structurally equal pairs to compare equal: %+v != %+v", one, also)
	}
	if one == other {
		t.Errorf("expected different pairs to compare unequal: %+v == %+v", one, other)
	}
}

func TestTradedPairValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pair    TradedPair
		wantErr bool
	}{
		{"valid", NewTradedPair("ETH", "BTC"), false},
		{"empty first", NewTradedPair("", "BTC"), true},
		{"empty second", NewTradedPair("ETH", ""), true},
		{"both empty", NewTradedPair("", ""), true},
	}

	for _, tt := range tests {
		err := tt.pair.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestParseOrder(t *testing.T) {
	t.Parallel()

	order, err := ParseOrder("1234.56", "0.789")
	if err != nil {
		t.Fatalf("ParseOrder() error = %v", err)
	}
	if order.Price != 1234.56 {
		t.Errorf("Price = %v, want 1234.56", order.Price)
	}
	if order.Quantity != 0.789 {
		t.Errorf("Quantity = %v, want 0.789", order.Quantity)
	}
}

func TestParseOrderInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseOrder("not-a-number", "1.0"); err == nil {
		t.Error("expected error for invalid price string")
	}
	if _, err := ParseOrder("1.0", "not-a-number"); err == nil {
		t.Error("expected error for invalid quantity string")
	}
}

func TestLevelLessAsAsk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Level
		want bool
	}{
		{"lower price first", NewLevel("A", 9, 1), NewLevel("A", 10, 1), true},
		{"higher price not less", NewLevel("A", 10, 1), NewLevel("A", 9, 1), false},
		{"tie on price, higher amount first", NewLevel("A", 9, 5), NewLevel("A", 9, 4), true},
		{"tie on price, lower amount not first", NewLevel("A", 9, 4), NewLevel("A", 9, 5), false},
	}

	for _, tt := range tests {
		if got := tt.a.LessAsAsk(tt.b); got != tt.want {
			t.Errorf("%s: LessAsAsk() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLevelLessAsBid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Level
		want bool
	}{
		{"higher price first", NewLevel("A", 10, 1), NewLevel("A", 9, 1), true},
		{"lower price not first", NewLevel("A", 9, 1), NewLevel("A", 10, 1), false},
		{"tie on price, higher amount first", NewLevel("A", 9, 5), NewLevel("A", 9, 4), true},
	}

	for _, tt := range tests {
		if got := tt.a.LessAsBid(tt.b); got != tt.want {
			t.Errorf("%s: LessAsBid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
