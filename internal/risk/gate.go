// Package risk implements the risk gate: a pure decision function that
// approves or denies a candidate Signal against the current Portfolio
// snapshot, applying hard-coded circuit breakers that MUST NOT be exposed to
// external configuration.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

// Hard-coded circuit-breaker constants. Deliberately unexported and
// unconfigurable — these must never be surfaced to config.
const (
	maxPerTradeRiskPct = 0.02
	maxDailyLossPct    = 0.03
	maxConsecutiveLoss = 3
)

var (
	perTradeRiskFactor = decimal.NewFromFloat(maxPerTradeRiskPct)
	dailyLossFactor    = decimal.NewFromFloat(maxDailyLossPct)
	hundred            = decimal.NewFromInt(100)
)

// PaperFlagChecker reports whether the broker endpoint currently in use is
// confirmed paper-trading. Injected so the gate stays a pure function over
// its explicit inputs with no implicit global state, while still
// rechecking the paper marker on every approval.
type PaperFlagChecker func() bool

// Approve evaluates every circuit breaker in order and returns the first
// failing reason, or a sized approval if all pass. isPaperTrading must
// reflect a freshly rechecked broker credential marker; the gate does not
// cache it. spreadMaxLossPerUnit is only consulted for ActionOpenSpread (it
// is the IronCondorSetup's per-unit max loss, since Signal alone does not
// carry it); callers pass decimal.Zero for single-leg signals.
//
// The returned error is nil on approval and wraps models.ErrRiskDenied
// otherwise, so callers can classify a denial with errors.Is without
// string-matching approval.Reason.
func Approve(signal models.Signal, portfolio models.Portfolio, isPaperTrading bool, spreadMaxLossPerUnit decimal.Decimal) (models.RiskApproval, error) {
	if !isPaperTrading {
		return deny("paper-trading assertion failed: broker endpoint is not paper")
	}

	maxLossThreshold := portfolio.Balance.Mul(dailyLossFactor).Neg()
	if portfolio.DailyPnL.LessThanOrEqual(maxLossThreshold) {
		return deny("daily loss limit reached")
	}

	if portfolio.ConsecutiveLosses >= maxConsecutiveLoss {
		return deny("consecutive loss limit reached")
	}

	riskPerContract, err := riskPerContract(signal, spreadMaxLossPerUnit)
	if err != nil {
		return deny(err.Error())
	}

	maxRisk := portfolio.Balance.Mul(perTradeRiskFactor)
	if riskPerContract.GreaterThan(maxRisk) {
		return deny("position too large")
	}
	if riskPerContract.LessThanOrEqual(decimal.Zero) {
		return deny("non-positive risk per contract")
	}

	quantity := maxRisk.Div(riskPerContract).Floor()
	qty := int(quantity.IntPart())
	if qty < 1 {
		return deny("position too large")
	}

	maxLoss := riskPerContract.Mul(decimal.NewFromInt(int64(qty)))

	return models.RiskApproval{
		Approved:      true,
		SizedQuantity: qty,
		RiskAmount:    maxLoss,
		MaxLoss:       maxLoss,
		Reason:        "approved",
	}, nil
}

func deny(reason string) (models.RiskApproval, error) {
	return models.RiskApproval{Approved: false, SizedQuantity: 0, Reason: reason},
		fmt.Errorf("%w: %s", models.ErrRiskDenied, reason)
}

// riskPerContract implements the half-Kelly-with-hard-cap sizing formula:
// 100*(entry-stop) for buys, 100*(stop-entry) for sells, or
// 100*max_loss_per_spread for OPEN_SPREAD.
func riskPerContract(s models.Signal, spreadMaxLossPerUnit decimal.Decimal) (decimal.Decimal, error) {
	switch s.Action {
	case models.ActionBuy:
		return s.EntryPrice.Sub(s.StopLoss).Mul(hundred), nil
	case models.ActionSell:
		return s.StopLoss.Sub(s.EntryPrice).Mul(hundred), nil
	case models.ActionOpenSpread:
		return spreadMaxLossPerUnit.Mul(hundred), nil
	default:
		return decimal.Zero, models.NewInvariantError("signal", "unsupported action for sizing")
	}
}
