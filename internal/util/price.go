// Package util provides common decimal helpers shared across the engine,
// chiefly tick-size rounding for broker limit prices.
package util

import "github.com/shopspring/decimal"

// RoundToTick rounds x to the nearest tick increment, ties rounding away
// from zero, on whatever grid tick gives (0.05 nickel, 0.01 penny); the
// executor takes tick from Broker.GetTickSize — see DESIGN.md.
func RoundToTick(x, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return x
	}
	t := tick.Abs()
	return x.Div(t).Round(0).Mul(t)
}

// FloorToTick rounds down to the nearest tick, the direction in the house's
// favor when quoting a credit (sell side). The executor rounds every limit
// price with RoundToTick and calls neither this nor CeilToTick.
func FloorToTick(x, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return x
	}
	t := tick.Abs()
	return x.Div(t).Floor().Mul(t)
}

// CeilToTick rounds up to the nearest tick, the matching direction for a
// debit (buy side).
func CeilToTick(x, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return x
	}
	t := tick.Abs()
	return x.Div(t).Ceil().Mul(t)
}
