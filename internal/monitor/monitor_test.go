package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tradeoracle/engine/internal/broker"
	"github.com/tradeoracle/engine/internal/executor"
	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/store"
)

// farExpirySymbol is an OCC-21 symbol expiring 2026-09-18, well outside the
// 21-day time-decay window relative to the fixed "now" these tests use, so
// the IV mean-reversion DTE rule never fires as a side effect of an
// unrelated assertion.
const farExpirySymbol = "SPY   260918C00450000"

func newTestMonitor(t *testing.T, b *broker.MockBroker) (*Monitor, store.Store) {
	t.Helper()
	st, err := store.NewJSONStore(t.TempDir() + "/state.json")
	require.NoError(t, err)
	execCfg := executor.DefaultConfig
	execCfg.PollInterval = time.Millisecond
	exec := executor.New(b, st, nil, execCfg)
	cfg := Config{Interval: time.Hour, QuoteTimeout: time.Second, Location: ny}
	mon := New(b, st, exec, nil, cfg)
	mon.now = func() time.Time { return time.Date(2026, 6, 21, 10, 0, 0, 0, ny) }
	return mon, st
}

func TestEvaluatePosition_ClosesOnProfitTarget(t *testing.T) {
	b := broker.NewMockBroker()
	b.Quotes[farExpirySymbol] = models.OptionTick{Symbol: farExpirySymbol, Bid: decimal.NewFromFloat(2.95), Ask: decimal.NewFromFloat(3.05)}
	b.PollBySymbol[farExpirySymbol] = broker.OrderStatus{State: broker.OrderFilled, FillPrice: decimal.NewFromFloat(3.00)}

	mon, st := newTestMonitor(t, b)

	position := models.NewPosition("pos-1", farExpirySymbol, models.IVMeanReversion, models.PositionLong, 1, decimal.NewFromFloat(2.00))
	require.NoError(t, st.InsertPosition(context.Background(), position))

	mon.evaluatePosition(context.Background(), position)

	reloaded, err := st.GetPosition(context.Background(), "pos-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, reloaded.Status)
	require.Equal(t, models.ExitProfitTarget, reloaded.ExitReason)
}

func TestEvaluatePosition_NoFireLeavesPositionOpen(t *testing.T) {
	b := broker.NewMockBroker()
	b.Quotes[farExpirySymbol] = models.OptionTick{Symbol: farExpirySymbol, Bid: decimal.NewFromFloat(2.00), Ask: decimal.NewFromFloat(2.10)}

	mon, st := newTestMonitor(t, b)

	position := models.NewPosition("pos-2", farExpirySymbol, models.IVMeanReversion, models.PositionLong, 1, decimal.NewFromFloat(2.00))
	require.NoError(t, st.InsertPosition(context.Background(), position))

	mon.evaluatePosition(context.Background(), position)

	reloaded, err := st.GetPosition(context.Background(), "pos-2")
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, reloaded.Status)
	require.True(t, reloaded.CurrentPrice.Equal(decimal.NewFromFloat(2.05)))
}

func TestEvaluatePosition_CloseOrderErrorLeavesPositionOpen(t *testing.T) {
	b := broker.NewMockBroker()
	// a profit-target-triggering quote whose close order the broker then
	// rejects must leave the position OPEN for a retry next cycle.
	b.Quotes[farExpirySymbol] = models.OptionTick{Symbol: farExpirySymbol, Bid: decimal.NewFromFloat(2.95), Ask: decimal.NewFromFloat(3.05)}
	b.PlaceErrBySymbol[farExpirySymbol] = models.ErrBrokerRejected

	mon, st := newTestMonitor(t, b)
	position := models.NewPosition("pos-3", farExpirySymbol, models.IVMeanReversion, models.PositionLong, 1, decimal.NewFromFloat(2.00))
	require.NoError(t, st.InsertPosition(context.Background(), position))

	mon.evaluatePosition(context.Background(), position)

	reloaded, err := st.GetPosition(context.Background(), "pos-3")
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, reloaded.Status)
	// marks were still written even though the close attempt failed.
	require.True(t, reloaded.CurrentPrice.Equal(decimal.NewFromFloat(3.00)))
}
