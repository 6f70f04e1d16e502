package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestOptionTick_Validate(t *testing.T) {
	base := OptionTick{
		Bid: d("4.40"), Ask: d("4.60"), IV: 0.4, Delta: 0.35, Right: Call,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid tick, got %v", err)
	}

	bad := base
	bad.Bid, bad.Ask = d("4.60"), d("4.40")
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for bid > ask")
	}

	badDelta := base
	badDelta.Right = Put
	if err := badDelta.Validate(); err == nil {
		t.Fatalf("expected error for put with positive delta")
	}
}

func TestOptionTick_Mid(t *testing.T) {
	tick := OptionTick{Bid: d("4.00"), Ask: d("5.00")}
	if !tick.Mid().Equal(d("4.50")) {
		t.Fatalf("expected mid 4.50, got %s", tick.Mid())
	}
}

func TestSignal_Validate(t *testing.T) {
	buy := Signal{Action: ActionBuy, StopLoss: d("2.25"), EntryPrice: d("4.50"), TakeProfit: d("9.00")}
	if err := buy.Validate(); err != nil {
		t.Fatalf("expected valid BUY signal: %v", err)
	}
	sell := Signal{Action: ActionSell, StopLoss: d("9.00"), EntryPrice: d("4.50"), TakeProfit: d("2.25")}
	if err := sell.Validate(); err != nil {
		t.Fatalf("expected valid SELL signal: %v", err)
	}
	badSell := sell
	badSell.EntryPrice, badSell.TakeProfit = badSell.TakeProfit, badSell.EntryPrice
	if err := badSell.Validate(); err == nil {
		t.Fatalf("expected error for malformed SELL ordering")
	}
}

func TestNewSpreadPosition_RequiresBalancedLegs(t *testing.T) {
	legs := []Leg{
		{Symbol: "A", Side: SideSell, Right: Call, Strike: d("455")},
		{Symbol: "B", Side: SideBuy, Right: Call, Strike: d("460")},
		{Symbol: "C", Side: SideSell, Right: Put, Strike: d("445")},
		{Symbol: "D", Side: SideBuy, Right: Put, Strike: d("440")},
	}
	p, err := NewSpreadPosition("p1", "SPY", 1, legs, d("1.10"), d("3.90"), d("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.RepresentativeSymbol != "iron_condor_SPY" {
		t.Fatalf("unexpected representative symbol: %s", p.RepresentativeSymbol)
	}

	_, err = NewSpreadPosition("p2", "SPY", 1, legs[:3], d("1.10"), d("3.90"), d("5"))
	if err == nil {
		t.Fatalf("expected error for a 3-leg spread")
	}
}

func TestPosition_CloseSetsInvariants(t *testing.T) {
	p := NewPosition("p1", "SPY260117C00450000", IVMeanReversion, PositionShort, 4, d("4.50"))
	if p.IsClosed() {
		t.Fatalf("freshly opened position must not be closed")
	}
	p.Close(ExitProfitTarget, time.Now().UTC())
	if !p.IsClosed() {
		t.Fatalf("expected position to be closed")
	}
}
