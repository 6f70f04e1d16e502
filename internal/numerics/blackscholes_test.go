package numerics

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPrice_CallPutParity(t *testing.T) {
	S, K, T, r, sigma := 100.0, 100.0, 0.5, 0.05, 0.2
	call := Price(S, K, T, r, sigma, CallRight)
	put := Price(S, K, T, r, sigma, PutRight)
	// put-call parity: C - P = S - K*e^(-rT)
	lhs := call - put
	rhs := S - K*math.Exp(-r*T)
	if !almostEqual(lhs, rhs, 1e-6) {
		t.Fatalf("put-call parity violated: %.6f vs %.6f", lhs, rhs)
	}
}

func TestGreeks_CallDeltaInUnitRange(t *testing.T) {
	g := ComputeGreeks(100, 100, 0.5, 0.05, 0.2, CallRight)
	if g.Delta < 0 || g.Delta > 1 {
		t.Fatalf("call delta out of [0,1]: %f", g.Delta)
	}
	gp := ComputeGreeks(100, 100, 0.5, 0.05, 0.2, PutRight)
	if gp.Delta > 0 || gp.Delta < -1 {
		t.Fatalf("put delta out of [-1,0]: %f", gp.Delta)
	}
}

func TestPrice_ExpiredIsIntrinsic(t *testing.T) {
	got := Price(110, 100, 0, 0.05, 0.2, CallRight)
	if !almostEqual(got, 10, 1e-9) {
		t.Fatalf("expected intrinsic 10, got %f", got)
	}
}

func TestImpliedVolatility_RoundTrips(t *testing.T) {
	S, K, T, r, sigma := 450.0, 455.0, 42.0 / 365.0, 0.05, 0.30
	price := Price(S, K, T, r, sigma, CallRight)
	got, err := ImpliedVolatility(price, S, K, T, r, CallRight)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, sigma, 1e-4) {
		t.Fatalf("expected sigma ~%.4f, got %.4f", sigma, got)
	}
}

func TestImpliedVolatility_RejectsSubIntrinsicQuote(t *testing.T) {
	_, err := ImpliedVolatility(0.01, 460, 450, 30.0/365.0, 0.05, CallRight)
	if err == nil {
		t.Fatalf("expected error for sub-intrinsic quote")
	}
}

func TestIVRank(t *testing.T) {
	history := make([]float64, 30)
	for i := range history {
		history[i] = float64(i+1) / 100.0 // 0.01 .. 0.30
	}
	rank, err := IVRank(0.225, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rank < 0.70 || rank > 0.80 {
		t.Fatalf("expected rank around 0.75, got %f", rank)
	}
}

func TestIVRank_InsufficientHistory(t *testing.T) {
	_, err := IVRank(0.5, make([]float64, 5))
	if err == nil {
		t.Fatalf("expected insufficient-history error")
	}
}

func TestEMA_ConvergesTowardConstantInput(t *testing.T) {
	e := NewEMA(9)
	var last float64
	for i := 0; i < 50; i++ {
		last = e.Update(10.0)
	}
	if !almostEqual(last, 10.0, 1e-6) {
		t.Fatalf("expected EMA to converge to 10, got %f", last)
	}
}

func TestRelativeVolumeWindow(t *testing.T) {
	w := NewRelativeVolumeWindow(3)
	for _, v := range []float64{100, 100, 100} {
		if _, ready := w.Update(v); ready {
			t.Fatalf("expected not ready before window fills")
		}
	}
	rv, ready := w.Update(300)
	if !ready {
		t.Fatalf("expected ready after window fills")
	}
	if !almostEqual(rv, 3.0, 1e-9) {
		t.Fatalf("expected relative volume 3.0, got %f", rv)
	}
}
