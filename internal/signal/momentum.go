package signal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/numerics"
)

const (
	momentumWindowStart = 9*60 + 31  // 09:31
	momentumWindowEnd   = 11*60 + 30 // 11:30
	momentumMinBars     = 30
	rsiBuyCross         = 30.0
	rsiSellCross        = 70.0
	relativeVolumeMin   = 2.0
	benchmarkEdgePct    = 0.001 // 0.10%
)

// MomentumInputs bundles the pre-computed indicator series the caller
// derives from the raw bar history, keeping this function itself a pure
// decision over already-computed state with no global clock dependency.
type MomentumInputs struct {
	Bars               []numerics.Bar // >= 30 bars, most recent last
	EMA9, EMA9Prev     float64
	EMA21, EMA21Prev   float64
	RSI14, RSI14Prev   float64
	RelativeVolume     float64
	VWAP               float64
	UnderlyingReturn30 float64
	BenchmarkReturn30  float64
	Now                time.Time
}

// Scan is a six-condition momentum scalping generator. chain must
// contain today's 0DTE chain for the underlying so the caller
// can pick the tightest-spread ATM-to-ITM contract on the signal side.
func Scan(underlying string, in MomentumInputs, chain []models.OptionTick) (*models.Signal, error) {
	if len(in.Bars) < momentumMinBars {
		return nil, models.NewPreconditionError(fmt.Sprintf("need >= %d bars, have %d", momentumMinBars, len(in.Bars)))
	}
	minutes := in.Now.Hour()*60 + in.Now.Minute()
	if minutes < momentumWindowStart || minutes > momentumWindowEnd {
		return nil, models.NewPreconditionError("outside 09:31-11:30 entry window")
	}

	last := in.Bars[len(in.Bars)-1]

	buyCrossEMA := in.EMA9Prev <= in.EMA21Prev && in.EMA9 > in.EMA21
	sellCrossEMA := in.EMA9Prev >= in.EMA21Prev && in.EMA9 < in.EMA21
	buyCrossRSI := in.RSI14Prev <= rsiBuyCross && in.RSI14 > rsiBuyCross
	sellCrossRSI := in.RSI14Prev >= rsiSellCross && in.RSI14 < rsiSellCross
	volumeOK := in.RelativeVolume >= relativeVolumeMin

	var side models.Action
	switch {
	case buyCrossEMA && buyCrossRSI && volumeOK && last.Close > in.VWAP &&
		in.UnderlyingReturn30-in.BenchmarkReturn30 >= benchmarkEdgePct:
		side = models.ActionBuy
	case sellCrossEMA && sellCrossRSI && volumeOK && last.Close < in.VWAP &&
		in.BenchmarkReturn30-in.UnderlyingReturn30 >= benchmarkEdgePct:
		side = models.ActionSell
	default:
		return nil, models.NewPreconditionError("fewer than six momentum conditions met")
	}

	right := models.Call
	if side == models.ActionSell {
		right = models.Put
	}
	candidate := tightestSpreadATM(chain, right)
	if candidate == nil {
		return nil, models.NewPreconditionError("no 0DTE contract available on the signal side")
	}

	var entry decimal.Decimal
	if side == models.ActionBuy {
		entry = candidate.Ask
	} else {
		entry = candidate.Bid
	}

	t1 := entry.Mul(decimal.NewFromFloat(1.25))
	stop := entry.Mul(half)

	confidence := in.RelativeVolume / 3.0
	if confidence > 1 {
		confidence = 1
	}

	return &models.Signal{
		Symbol: candidate.Symbol, Strategy: models.MomentumScalp, Action: side,
		EntryPrice: entry, TakeProfit: t1, StopLoss: stop,
		Reasoning:  fmt.Sprintf("EMA9/21 cross + RSI cross + rel_vol=%.2f vs session VWAP", in.RelativeVolume),
		Confidence: confidence, Timestamp: in.Now,
	}, nil
}

// tightestSpreadATM picks the 0DTE contract of the given right with the
// narrowest bid-ask spread among ATM-to-ITM strikes.
func tightestSpreadATM(chain []models.OptionTick, right models.OptionRight) *models.OptionTick {
	var best *models.OptionTick
	bestSpread := decimal.NewFromInt(1 << 30)
	for i := range chain {
		t := &chain[i]
		if t.Right != right {
			continue
		}
		isITMOrATM := (right == models.Call && t.Strike.LessThanOrEqual(t.UnderlyingPrice)) ||
			(right == models.Put && t.Strike.GreaterThanOrEqual(t.UnderlyingPrice))
		if !isITMOrATM {
			continue
		}
		spread := t.Ask.Sub(t.Bid)
		if spread.LessThan(bestSpread) {
			bestSpread = spread
			best = t
		}
	}
	return best
}
