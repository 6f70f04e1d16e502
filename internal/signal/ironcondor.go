package signal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

const (
	icWindowStart       = 9*60 + 31 // 09:31 in minutes-of-day
	icWindowEnd         = 9*60 + 45 // 09:45
	icTargetDelta       = 0.15
	icDeltaTolerance    = 0.05
	icSpreadWidth       = 5
	icMinStrikesEachSide = 10
	icMinNetCredit      = 0.50
)

// IronCondorSetup is the fully-resolved four-leg candidate the executor
// submits, carrying the max-loss-per-unit the risk gate needs for sizing
// (Signal alone cannot carry it, since Signal is a flat, strategy-agnostic
// shape).
type IronCondorSetup struct {
	Underlying      string
	Expiration      time.Time
	ShortCallStrike decimal.Decimal
	LongCallStrike  decimal.Decimal
	ShortPutStrike  decimal.Decimal
	LongPutStrike   decimal.Decimal
	NetCredit       decimal.Decimal
	MaxLossPerUnit  decimal.Decimal
	Legs            []models.Leg
}

// BuildIronCondor builds a four-leg iron condor candidate. chain must
// contain today's 0DTE option ticks for underlying. now is the
// caller-supplied current exchange-local time; allowOutsideWindow lets
// tests override the entry-window precondition.
func BuildIronCondor(underlying string, chain []models.OptionTick, now time.Time, allowOutsideWindow bool) (*models.Signal, *IronCondorSetup, error) {
	if !allowOutsideWindow {
		minutes := now.Hour()*60 + now.Minute()
		if minutes < icWindowStart || minutes > icWindowEnd {
			return nil, nil, models.NewPreconditionError("outside the 09:31-09:45 entry window")
		}
	}

	calls, puts := splitByRight(chain)
	if len(calls) < icMinStrikesEachSide || len(puts) < icMinStrikesEachSide {
		return nil, nil, models.NewPreconditionError("chain does not span at least 10 strikes on each side")
	}

	shortCall := closestByDelta(calls, icTargetDelta, icDeltaTolerance)
	shortPut := closestByDelta(puts, -icTargetDelta, icDeltaTolerance)
	if shortCall == nil || shortPut == nil {
		return nil, nil, models.NewPreconditionError("no strike within delta tolerance for short legs")
	}

	longCallStrike := shortCall.Strike.Add(decimal.NewFromInt(icSpreadWidth))
	longPutStrike := shortPut.Strike.Sub(decimal.NewFromInt(icSpreadWidth))
	longCall := findByStrike(calls, longCallStrike)
	longPut := findByStrike(puts, longPutStrike)
	if longCall == nil || longPut == nil {
		return nil, nil, models.NewPreconditionError("chain missing the long-leg strikes 5 points out")
	}

	netCredit := shortCall.Mid().Sub(longCall.Mid()).Add(shortPut.Mid().Sub(longPut.Mid()))
	if netCredit.LessThan(decimal.NewFromFloat(icMinNetCredit)) {
		return nil, nil, models.NewPreconditionError(fmt.Sprintf("net_credit %s below minimum %.2f", netCredit, icMinNetCredit))
	}

	spreadWidth := decimal.NewFromInt(icSpreadWidth)
	maxLossPerUnit := spreadWidth.Sub(netCredit)

	setup := &IronCondorSetup{
		Underlying: underlying, Expiration: shortCall.Expiration,
		ShortCallStrike: shortCall.Strike, LongCallStrike: longCall.Strike,
		ShortPutStrike: shortPut.Strike, LongPutStrike: longPut.Strike,
		NetCredit: netCredit, MaxLossPerUnit: maxLossPerUnit,
		Legs: []models.Leg{
			{Symbol: shortCall.Symbol, Side: models.SideSell, Right: models.Call, Strike: shortCall.Strike, EntryPrice: shortCall.Mid()},
			{Symbol: longCall.Symbol, Side: models.SideBuy, Right: models.Call, Strike: longCall.Strike, EntryPrice: longCall.Mid()},
			{Symbol: shortPut.Symbol, Side: models.SideSell, Right: models.Put, Strike: shortPut.Strike, EntryPrice: shortPut.Mid()},
			{Symbol: longPut.Symbol, Side: models.SideBuy, Right: models.Put, Strike: longPut.Strike, EntryPrice: longPut.Mid()},
		},
	}

	sig := &models.Signal{
		Symbol: "iron_condor_" + underlying, Strategy: models.IronCondor, Action: models.ActionOpenSpread,
		EntryPrice: netCredit, TakeProfit: netCredit.Mul(half), StopLoss: netCredit.Mul(two),
		Reasoning:  fmt.Sprintf("short_call=%s short_put=%s net_credit=%s", shortCall.Strike, shortPut.Strike, netCredit),
		Confidence: 1.0, Timestamp: now,
	}
	return sig, setup, nil
}

func splitByRight(chain []models.OptionTick) (calls, puts []models.OptionTick) {
	for _, t := range chain {
		if t.Right == models.Call {
			calls = append(calls, t)
		} else {
			puts = append(puts, t)
		}
	}
	return calls, puts
}

func closestByDelta(ticks []models.OptionTick, target, tolerance float64) *models.OptionTick {
	var best *models.OptionTick
	bestDiff := tolerance + 1
	for i := range ticks {
		diff := absFloat(ticks[i].Delta - target)
		if diff <= tolerance && diff < bestDiff {
			bestDiff = diff
			best = &ticks[i]
		}
	}
	return best
}

func findByStrike(ticks []models.OptionTick, strike decimal.Decimal) *models.OptionTick {
	for i := range ticks {
		if ticks[i].Strike.Equal(strike) {
			return &ticks[i]
		}
	}
	return nil
}
