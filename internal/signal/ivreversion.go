// Package signal implements the three pure signal generators. None of
// these touch the broker, the store, or the clock beyond what is passed in;
// each returns a *models.Signal (BuildIronCondor also returns its
// *IronCondorSetup) and an error, and "no signal" is reported as a nil
// signal with a *models.PreconditionError saying why.
package signal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/numerics"
)

const (
	ivReversionMinDTE = 30
	ivReversionMaxDTE = 45
	ivSellThreshold   = 0.70
	ivBuyThreshold    = 0.30
)

var (
	two       = decimal.NewFromInt(2)
	half      = decimal.NewFromFloat(0.5)
)

// IVMeanReversion sells overpriced options (iv_rank >= 0.70), buys
// underpriced ones (iv_rank <= 0.30), within a 30-45 DTE window.
func IVMeanReversion(tick models.OptionTick, ivHistory []float64, now time.Time) (*models.Signal, error) {
	dte := daysToExpiration(tick.Expiration, now)
	if dte < ivReversionMinDTE || dte > ivReversionMaxDTE {
		return nil, models.NewPreconditionError(fmt.Sprintf("DTE %d outside [%d,%d] window", dte, ivReversionMinDTE, ivReversionMaxDTE))
	}

	rank, err := numerics.IVRank(tick.IV, ivHistory)
	if err != nil {
		return nil, models.NewPreconditionError(err.Error())
	}

	mid := tick.Mid()
	confidence := absFloat(rank-0.5) * 2

	switch {
	case rank >= ivSellThreshold:
		return &models.Signal{
			Symbol: tick.Symbol, Strategy: models.IVMeanReversion, Action: models.ActionSell,
			EntryPrice: mid, TakeProfit: mid.Mul(half), StopLoss: mid.Mul(two),
			Reasoning:  fmt.Sprintf("iv_rank=%.2f >= %.2f sell threshold, DTE=%d", rank, ivSellThreshold, dte),
			Confidence: confidence, Timestamp: now,
		}, nil
	case rank <= ivBuyThreshold:
		return &models.Signal{
			Symbol: tick.Symbol, Strategy: models.IVMeanReversion, Action: models.ActionBuy,
			EntryPrice: mid, TakeProfit: mid.Mul(two), StopLoss: mid.Mul(half),
			Reasoning:  fmt.Sprintf("iv_rank=%.2f <= %.2f buy threshold, DTE=%d", rank, ivBuyThreshold, dte),
			Confidence: confidence, Timestamp: now,
		}, nil
	default:
		return nil, models.NewPreconditionError(fmt.Sprintf("iv_rank=%.2f inside neutral band", rank))
	}
}

func daysToExpiration(expiration, now time.Time) int {
	return int(expiration.Sub(now).Hours() / 24)
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
