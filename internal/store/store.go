// Package store defines the persistence adapter: a narrow interface over
// ticks, trades, positions and the portfolio snapshot, plus a JSON-file
// implementation using an atomic write-temp-fsync-rename pattern.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

// Store is the persistence adapter consumed by every upper component.
type Store interface {
	// AppendTick records an immutable OptionTick; ticks are never mutated.
	AppendTick(ctx context.Context, tick models.OptionTick) error
	// RecentTicks returns the last n ticks for symbol, most recent last.
	RecentTicks(ctx context.Context, symbol string, n int) ([]models.OptionTick, error)
	// DailyIVs returns every IV sample recorded for symbol with a timestamp
	// within [from, to], in recording order; samples are not collapsed to
	// one per day.
	DailyIVs(ctx context.Context, symbol string, from, to time.Time) ([]float64, error)
	// RecordIV appends today's IV sample for symbol, used to build the
	// 90-day history DailyIVs later serves.
	RecordIV(ctx context.Context, symbol string, at time.Time, iv float64) error

	// AppendTrade inserts an immutable Trade record (the executor writes one
	// on entry, one per unwound spread and one per exit); it must not be
	// mutated afterward.
	AppendTrade(ctx context.Context, trade models.Trade) error
	// AllTrades returns every recorded trade, oldest first; consumed by the
	// dashboard's statistics view.
	AllTrades(ctx context.Context) ([]models.Trade, error)

	// InsertPosition creates a new Position row.
	InsertPosition(ctx context.Context, position *models.Position) error
	// UpdatePositionMarks updates current_price/unrealized_pnl for an open
	// position; this must not touch status/closed_at/exit_reason.
	UpdatePositionMarks(ctx context.Context, positionID string, currentPrice, unrealizedPnL decimal.Decimal) error
	// ClosePosition atomically sets status=CLOSED, closed_at and
	// exit_reason for positionID.
	ClosePosition(ctx context.Context, positionID string, reason models.ExitReason, closedAt time.Time, finalPnL decimal.Decimal) error
	// ReducePositionQuantity records a partial close of closedQty contracts,
	// decrementing Quantity and crediting realizedPnL to the portfolio's
	// daily P&L while leaving the position OPEN; used by the momentum
	// strategy's two-tier profit take.
	ReducePositionQuantity(ctx context.Context, positionID string, closedQty int, realizedPnL decimal.Decimal) error
	// MarkMomentumTierOneClosed flags that a momentum position's first
	// profit tier has already been taken.
	MarkMomentumTierOneClosed(ctx context.Context, positionID string) error
	// GetPosition returns a deep copy of the position, so callers can never
	// mutate stored state through the returned pointer.
	GetPosition(ctx context.Context, positionID string) (*models.Position, error)
	// OpenPositions returns deep copies of every OPEN position, ordered by
	// ascending ID for a deterministic processing order.
	OpenPositions(ctx context.Context) ([]*models.Position, error)

	// GetPortfolio returns the current account snapshot.
	GetPortfolio(ctx context.Context) (models.Portfolio, error)
	// UpdatePortfolio atomically applies a single mutation to the stored
	// Portfolio and returns the resulting snapshot, so a concurrent reader
	// never observes a partially-applied update.
	UpdatePortfolio(ctx context.Context, mutate func(models.Portfolio) models.Portfolio) (models.Portfolio, error)
}
