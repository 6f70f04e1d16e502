package numerics

import (
	"testing"
	"time"
)

func TestRSI_ConvergesToZeroOnSteadyDecline(t *testing.T) {
	r := NewRSI(14)
	price := 100.0
	var last float64
	var ready bool
	for i := 0; i < 60; i++ {
		price -= 1.0
		last, ready = r.Update(price)
	}
	if !ready {
		t.Fatalf("expected RSI to be ready after 60 samples")
	}
	if last > 5.0 {
		t.Fatalf("expected RSI near 0 on a steady decline, got %f", last)
	}
}

func TestRSI_ConvergesToHundredOnSteadyRise(t *testing.T) {
	r := NewRSI(14)
	price := 100.0
	var last float64
	var ready bool
	for i := 0; i < 60; i++ {
		price += 1.0
		last, ready = r.Update(price)
	}
	if !ready {
		t.Fatalf("expected RSI to be ready after 60 samples")
	}
	if last < 95.0 {
		t.Fatalf("expected RSI near 100 on a steady rise, got %f", last)
	}
}

func TestRSI_NotReadyBeforeSeeded(t *testing.T) {
	r := NewRSI(14)
	if _, ready := r.Update(100); ready {
		t.Fatalf("expected not ready on first sample")
	}
	if _, ready := r.Update(101); ready {
		t.Fatalf("expected not ready on second sample (gain/loss seed only)")
	}
}

func TestRSI_FlatInputReturnsHundred(t *testing.T) {
	r := NewRSI(14)
	var last float64
	var ready bool
	for i := 0; i < 20; i++ {
		last, ready = r.Update(100)
	}
	if !ready {
		t.Fatalf("expected RSI to be ready")
	}
	// avgGain == avgLoss == 0 on flat input: rs is undefined, but avgLoss==0
	// takes the ceiling branch, matching Wilder's convention that no losses
	// means maximum strength.
	if last != 100 {
		t.Fatalf("expected RSI 100 on zero avgLoss, got %f", last)
	}
}

func TestVWAP_TypicalPriceWeightedByVolume(t *testing.T) {
	v := &VWAP{}
	loc := time.UTC
	day := time.Date(2026, 7, 30, 9, 30, 0, 0, loc)

	first := v.Update(Bar{Timestamp: day, High: 101, Low: 99, Close: 100, Volume: 100}, loc)
	if !almostEqual(first, 100, 1e-9) {
		t.Fatalf("expected first bar VWAP to equal its own typical price, got %f", first)
	}

	second := v.Update(Bar{Timestamp: day.Add(time.Minute), High: 111, Low: 109, Close: 110, Volume: 300}, loc)
	// typical prices 100 (vol 100) and 110 (vol 300): vwap = (100*100+110*300)/400 = 107.5
	if !almostEqual(second, 107.5, 1e-9) {
		t.Fatalf("expected volume-weighted VWAP 107.5, got %f", second)
	}
}

func TestVWAP_ResetsOnNewSessionDay(t *testing.T) {
	v := &VWAP{}
	loc := time.UTC
	dayOne := time.Date(2026, 7, 30, 9, 30, 0, 0, loc)
	dayTwo := time.Date(2026, 7, 31, 9, 30, 0, 0, loc)

	v.Update(Bar{Timestamp: dayOne, High: 201, Low: 199, Close: 200, Volume: 500}, loc)
	v.Update(Bar{Timestamp: dayOne.Add(time.Hour), High: 151, Low: 149, Close: 150, Volume: 500}, loc)

	// A new calendar day (exchange-local) must reset the accumulators, so the
	// session VWAP reflects only the new day's bars, not yesterday's.
	reset := v.Update(Bar{Timestamp: dayTwo, High: 51, Low: 49, Close: 50, Volume: 10}, loc)
	if !almostEqual(reset, 50, 1e-9) {
		t.Fatalf("expected VWAP to reset to the new session's first typical price 50, got %f", reset)
	}
}

func TestVWAP_ZeroVolumeBarReturnsTypicalPrice(t *testing.T) {
	v := &VWAP{}
	loc := time.UTC
	day := time.Date(2026, 7, 30, 9, 30, 0, 0, loc)
	got := v.Update(Bar{Timestamp: day, High: 21, Low: 19, Close: 20, Volume: 0}, loc)
	if !almostEqual(got, 20, 1e-9) {
		t.Fatalf("expected zero-volume bar to return its typical price 20, got %f", got)
	}
}
