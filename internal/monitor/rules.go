package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/occ"
)

var (
	twoPercent  = decimal.NewFromFloat(0.02)
	momTier1Mul = decimal.NewFromFloat(1.25)
	momTier2Mul = decimal.NewFromFloat(1.50)
	momStopMul  = decimal.NewFromFloat(0.50)
)

// marks bundles the per-cycle computed state evaluateExit needs: the
// updated mark price/P&L already written to the store, plus the
// strategy-specific inputs (spread value, underlying spot, days-to-expiry)
// that only some rules consume.
type marks struct {
	CurrentPrice    decimal.Decimal // mid for single-leg; current_spread_value for SPREAD
	UnrealizedPnL   decimal.Decimal
	UnderlyingPrice decimal.Decimal
	DTE             int
}

// evaluation is the fixed-order exit-rule verdict for one position.
type evaluation struct {
	Fires         bool
	Reason        models.ExitReason
	CloseQuantity int // 0 means close the position in full
	MarkTier1     bool
}

// evaluateExit applies the strategy-specific exit rules in a fixed order,
// first match wins. It is a pure function over already computed marks so
// it can be unit tested without a broker or store.
func evaluateExit(p *models.Position, m marks, now time.Time, loc *time.Location) evaluation {
	switch p.Strategy {
	case models.IVMeanReversion:
		return evaluateIVMeanReversion(p, m)
	case models.IronCondor:
		return evaluateIronCondor(p, m, now, loc)
	case models.MomentumScalp:
		return evaluateMomentumScalp(p, m, now, loc)
	default:
		return evaluation{}
	}
}

func evaluateIVMeanReversion(p *models.Position, m marks) evaluation {
	qty := decimal.NewFromInt(int64(p.Quantity))
	costBasis := p.EntryPrice.Mul(decimal.NewFromInt(100)).Mul(qty)
	if costBasis.IsZero() {
		return evaluation{}
	}
	ratio := m.UnrealizedPnL.Div(costBasis)

	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromFloat(0.50)):
		return evaluation{Fires: true, Reason: models.ExitProfitTarget}
	case ratio.LessThanOrEqual(decimal.NewFromFloat(-0.75)):
		return evaluation{Fires: true, Reason: models.ExitStopLoss}
	case m.DTE <= 21:
		return evaluation{Fires: true, Reason: models.ExitTimeDecay}
	default:
		return evaluation{}
	}
}

func evaluateIronCondor(p *models.Position, m marks, now time.Time, loc *time.Location) evaluation {
	qty := decimal.NewFromInt(int64(p.Quantity))
	hundred := decimal.NewFromInt(100)
	profitThreshold := decimal.NewFromFloat(0.50).Mul(p.NetCredit).Mul(hundred).Mul(qty)
	stopThreshold := decimal.NewFromFloat(2.0).Mul(p.NetCredit)

	switch {
	case m.UnrealizedPnL.GreaterThanOrEqual(profitThreshold):
		return evaluation{Fires: true, Reason: models.ExitProfitTarget}
	case m.CurrentPrice.GreaterThanOrEqual(stopThreshold):
		return evaluation{Fires: true, Reason: models.ExitStopLoss}
	case isAtOrAfter(now, loc, 15, 50):
		return evaluation{Fires: true, Reason: models.ExitForceClose}
	case ironCondorBreached(p, m.UnderlyingPrice):
		return evaluation{Fires: true, Reason: models.ExitBreach}
	default:
		return evaluation{}
	}
}

// ironCondorBreached reports whether the underlying has touched within 2%
// of either short strike.
func ironCondorBreached(p *models.Position, underlying decimal.Decimal) bool {
	if len(p.Legs) != 4 {
		return false
	}
	return nearShortStrike(p.Legs[0].Strike, underlying) || nearShortStrike(p.Legs[2].Strike, underlying)
}

// nearShortStrike reports whether the underlying has come within 2% of a
// short strike, triggering the iron condor's breach exit.
func nearShortStrike(strike, underlying decimal.Decimal) bool {
	if strike.IsZero() {
		return false
	}
	distance := underlying.Sub(strike).Abs().Div(strike)
	return distance.LessThanOrEqual(twoPercent)
}

func evaluateMomentumScalp(p *models.Position, m marks, now time.Time, loc *time.Location) evaluation {
	long := p.PositionType == models.PositionLong
	entry := p.EntryPrice
	t1, t2, stop := entry.Mul(momTier1Mul), entry.Mul(momTier2Mul), entry.Mul(momStopMul)
	if !long {
		t1, t2, stop = entry.Mul(decimal.NewFromFloat(0.75)), entry.Mul(momStopMul), entry.Mul(momTier2Mul)
	}
	mid := m.CurrentPrice

	switch {
	case isAtOrAfter(now, loc, 15, 50):
		return evaluation{Fires: true, Reason: models.ExitForceClose}
	case isAtOrAfter(now, loc, 11, 30):
		return evaluation{Fires: true, Reason: models.ExitForceClose}
	case (long && mid.LessThanOrEqual(stop)) || (!long && mid.GreaterThanOrEqual(stop)):
		return evaluation{Fires: true, Reason: models.ExitStopLoss}
	case !p.Tier1Closed && ((long && mid.GreaterThanOrEqual(t1)) || (!long && mid.LessThanOrEqual(t1))):
		half := p.Quantity / 2
		if half < 1 {
			half = 1
		}
		if half >= p.Quantity {
			return evaluation{Fires: true, Reason: models.ExitProfitTarget}
		}
		return evaluation{Fires: true, Reason: models.ExitProfitTarget, CloseQuantity: half, MarkTier1: true}
	case p.Tier1Closed && ((long && mid.GreaterThanOrEqual(t2)) || (!long && mid.LessThanOrEqual(t2))):
		return evaluation{Fires: true, Reason: models.ExitProfitTarget}
	default:
		return evaluation{}
	}
}

// isAtOrAfter reports whether now, converted to loc, falls at or after
// hour:minute on its own calendar day.
func isAtOrAfter(now time.Time, loc *time.Location, hour, minute int) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	threshold := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	return !local.Before(threshold)
}

// daysToExpiration decodes a single-leg representative symbol's OCC-21
// expiration and returns whole calendar days until it, floored.
func daysToExpiration(representativeSymbol string, now time.Time) int {
	c, err := occ.Decode(representativeSymbol)
	if err != nil {
		return 0
	}
	return int(c.Expiration.Sub(now).Hours() / 24)
}
