package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/numerics"
)

func momentumChain(underlyingPrice decimal.Decimal) []models.OptionTick {
	return []models.OptionTick{
		{Symbol: "SPY_ATM_CALL", Underlying: "SPY", UnderlyingPrice: underlyingPrice,
			Strike: underlyingPrice, Right: models.Call,
			Bid: decimal.NewFromFloat(1.20), Ask: decimal.NewFromFloat(1.25)},
		{Symbol: "SPY_ITM_CALL", Underlying: "SPY", UnderlyingPrice: underlyingPrice,
			Strike: underlyingPrice.Sub(decimal.NewFromInt(1)), Right: models.Call,
			Bid: decimal.NewFromFloat(2.00), Ask: decimal.NewFromFloat(2.20)},
		{Symbol: "SPY_ATM_PUT", Underlying: "SPY", UnderlyingPrice: underlyingPrice,
			Strike: underlyingPrice, Right: models.Put,
			Bid: decimal.NewFromFloat(1.15), Ask: decimal.NewFromFloat(1.22)},
		{Symbol: "SPY_ITM_PUT", Underlying: "SPY", UnderlyingPrice: underlyingPrice,
			Strike: underlyingPrice.Add(decimal.NewFromInt(1)), Right: models.Put,
			Bid: decimal.NewFromFloat(2.05), Ask: decimal.NewFromFloat(2.25)},
	}
}

func bars(n int, rising bool) []numerics.Bar {
	b := make([]numerics.Bar, n)
	price := 450.0
	for i := 0; i < n; i++ {
		if rising {
			price += 0.05
		} else {
			price -= 0.05
		}
		b[i] = numerics.Bar{Close: price, Volume: 1000}
	}
	return b
}

func TestScan_BuySignal(t *testing.T) {
	now := time.Date(2025, time.December, 6, 10, 0, 0, 0, time.UTC)
	in := MomentumInputs{
		Bars:               bars(30, true),
		EMA9Prev:           449.9, EMA9: 450.2,
		EMA21Prev:          450.1, EMA21: 450.0,
		RSI14Prev:          29.0, RSI14: 35.0,
		RelativeVolume:     2.5,
		VWAP:               449.5,
		UnderlyingReturn30: 0.0030,
		BenchmarkReturn30:  0.0005,
		Now:                now,
	}
	chain := momentumChain(decimal.NewFromInt(450))

	sig, err := Scan("SPY", in, chain)
	if err != nil {
		t.Fatalf("unexpected no-signal: %v", err)
	}
	if sig.Action != models.ActionBuy {
		t.Fatalf("expected BUY, got %s", sig.Action)
	}
	if sig.Strategy != models.MomentumScalp {
		t.Fatalf("expected momentum strategy tag")
	}
	if sig.Symbol != "SPY_ATM_CALL" {
		t.Fatalf("expected tightest-spread ATM call selected, got %s", sig.Symbol)
	}
}

func TestScan_SellSignal(t *testing.T) {
	now := time.Date(2025, time.December, 6, 10, 0, 0, 0, time.UTC)
	in := MomentumInputs{
		Bars:               bars(30, false),
		EMA9Prev:           450.1, EMA9: 449.8,
		EMA21Prev:          449.9, EMA21: 450.0,
		RSI14Prev:          71.0, RSI14: 65.0,
		RelativeVolume:     2.2,
		VWAP:               450.5,
		UnderlyingReturn30: -0.0030,
		BenchmarkReturn30:  -0.0005,
		Now:                now,
	}
	chain := momentumChain(decimal.NewFromInt(450))

	sig, err := Scan("SPY", in, chain)
	if err != nil {
		t.Fatalf("unexpected no-signal: %v", err)
	}
	if sig.Action != models.ActionSell {
		t.Fatalf("expected SELL, got %s", sig.Action)
	}
	if sig.Symbol != "SPY_ATM_PUT" {
		t.Fatalf("expected tightest-spread ATM put selected, got %s", sig.Symbol)
	}
}

func TestScan_OutsideWindow(t *testing.T) {
	now := time.Date(2025, time.December, 6, 12, 0, 0, 0, time.UTC)
	in := MomentumInputs{Bars: bars(30, true), Now: now}
	_, err := Scan("SPY", in, momentumChain(decimal.NewFromInt(450)))
	if err == nil {
		t.Fatalf("expected precondition error outside 09:31-11:30 window")
	}
}

func TestScan_InsufficientBars(t *testing.T) {
	now := time.Date(2025, time.December, 6, 10, 0, 0, 0, time.UTC)
	in := MomentumInputs{Bars: bars(10, true), Now: now}
	_, err := Scan("SPY", in, momentumChain(decimal.NewFromInt(450)))
	if err == nil {
		t.Fatalf("expected precondition error for fewer than 30 bars")
	}
}

func TestScan_VolumeBelowThresholdSuppressesSignal(t *testing.T) {
	now := time.Date(2025, time.December, 6, 10, 0, 0, 0, time.UTC)
	in := MomentumInputs{
		Bars:               bars(30, true),
		EMA9Prev:           449.9, EMA9: 450.2,
		EMA21Prev:          450.1, EMA21: 450.0,
		RSI14Prev:          29.0, RSI14: 35.0,
		RelativeVolume:     1.2, // below 2.0 minimum
		VWAP:               449.5,
		UnderlyingReturn30: 0.0030,
		BenchmarkReturn30:  0.0005,
		Now:                now,
	}
	_, err := Scan("SPY", in, momentumChain(decimal.NewFromInt(450)))
	if err == nil {
		t.Fatalf("expected precondition error when relative volume fails the condition")
	}
}
