package numerics

import (
	"math"

	"github.com/tradeoracle/engine/internal/models"
)

const (
	ivSeed          = 0.5
	ivLowerBound    = 1e-4
	ivUpperBound    = 5.0
	ivTolerance     = 1e-6
	ivMaxIterations = 50
)

// ImpliedVolatility solves for sigma given an observed option price, using
// Newton-Raphson seeded at 0.5 with a bisection fallback on [1e-4, 5.0].
// Converges when |ΔV| <= 1e-6 or after 50 iterations; returns
// models.ErrIVNotConverged when the quote brackets an intrinsic-inconsistent
// price (ask below intrinsic) or the solver otherwise fails to bracket a
// root.
func ImpliedVolatility(marketPrice, S, K, T, r float64, right Right) (float64, error) {
	if T <= 0 {
		return 0, models.ErrIVNotConverged
	}
	intr := intrinsic(S, K, right)
	if marketPrice < intr-1e-9 {
		return 0, models.ErrIVNotConverged
	}

	sigma, err := newtonRaphson(marketPrice, S, K, T, r, right)
	if err == nil {
		return sigma, nil
	}
	return bisection(marketPrice, S, K, T, r, right)
}

func newtonRaphson(marketPrice, S, K, T, r float64, right Right) (float64, error) {
	sigma := ivSeed
	for i := 0; i < ivMaxIterations; i++ {
		price := Price(S, K, T, r, sigma, right)
		diff := price - marketPrice
		if math.Abs(diff) <= ivTolerance {
			return sigma, nil
		}
		g := ComputeGreeks(S, K, T, r, sigma, right)
		vegaPerUnit := g.Vega * 100 // undo the per-1-vol-point scaling for the Newton step
		if vegaPerUnit == 0 || math.IsNaN(vegaPerUnit) {
			return 0, models.ErrIVNotConverged
		}
		sigma -= diff / vegaPerUnit
		if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			return 0, models.ErrIVNotConverged
		}
	}
	return 0, models.ErrIVNotConverged
}

func bisection(marketPrice, S, K, T, r float64, right Right) (float64, error) {
	lo, hi := ivLowerBound, ivUpperBound
	fLo := Price(S, K, T, r, lo, right) - marketPrice
	fHi := Price(S, K, T, r, hi, right) - marketPrice
	if fLo*fHi > 0 {
		return 0, models.ErrIVNotConverged
	}
	for i := 0; i < ivMaxIterations; i++ {
		mid := (lo + hi) / 2
		fMid := Price(S, K, T, r, mid, right) - marketPrice
		if math.Abs(fMid) <= ivTolerance {
			return mid, nil
		}
		if fLo*fMid < 0 {
			hi = mid
			fHi = fMid
		} else {
			lo = mid
			fLo = fMid
		}
		_ = fHi
	}
	return 0, models.ErrIVNotConverged
}
