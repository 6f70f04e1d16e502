// Package executor places single-leg and four-leg orders, polls until each
// reaches a terminal state, and persists the resulting trades and
// positions, computing realized P&L on close.
package executor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/broker"
	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/retry"
	"github.com/tradeoracle/engine/internal/signal"
	"github.com/tradeoracle/engine/internal/store"
	"github.com/tradeoracle/engine/internal/util"
)

const (
	defaultFillTimeout  = 30 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Config controls fill-detection timing and the retry budget applied to
// transient broker errors (0.5s/1s/2s backoff, 3 retries).
type Config struct {
	FillTimeout  time.Duration
	PollInterval time.Duration
	Retry        retry.Config
}

// DefaultConfig uses a 30s per-leg fill timeout.
var DefaultConfig = Config{
	FillTimeout:  defaultFillTimeout,
	PollInterval: defaultPollInterval,
	Retry:        retry.DefaultConfig,
}

// Executor places orders, waits for terminal fills, and writes the
// resulting Trade/Position records.
type Executor struct {
	broker broker.Broker
	store  store.Store
	logger *log.Logger
	cfg    Config
	now    func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds an Executor. A nil logger falls back to a stderr-backed default.
func New(b broker.Broker, st store.Store, logger *log.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = log.New(os.Stderr, "executor: ", log.LstdFlags)
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = DefaultConfig.FillTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &Executor{
		broker: b, store: st, logger: logger, cfg: cfg, now: time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-position logical lock guaranteeing at most one
// closing attempt is in flight at a time.
func (e *Executor) lockFor(positionID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[positionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[positionID] = l
	}
	return l
}

func sideForAction(a models.Action) models.Side {
	if a == models.ActionBuy {
		return models.SideBuy
	}
	return models.SideSell
}

func positionTypeForAction(a models.Action) models.PositionType {
	if a == models.ActionBuy {
		return models.PositionLong
	}
	return models.PositionShort
}

// legFill is a single completed leg of a multi-leg order, used both to build
// the resulting Position and, on failure, to drive the unwind.
type legFill struct {
	leg       models.Leg
	fillPrice decimal.Decimal
	slippage  decimal.Decimal
}

// placeAndAwaitFill submits req and polls until the order reaches a terminal
// state or cfg.FillTimeout elapses. PlaceOrder itself is retried under the
// configured backoff for transient errors; poll timeouts/rejections are not.
func (e *Executor) placeAndAwaitFill(ctx context.Context, req broker.OrderRequest) (broker.OrderStatus, error) {
	fillCtx, cancel := context.WithTimeout(ctx, e.cfg.FillTimeout)
	defer cancel()

	var ack broker.OrderAck
	err := retry.Do(fillCtx, e.cfg.Retry, e.logger, func(ctx context.Context) error {
		a, err := e.broker.PlaceOrder(ctx, req)
		if err != nil {
			return err
		}
		ack = a
		return nil
	})
	if err != nil {
		return broker.OrderStatus{}, fmt.Errorf("placing order for %s: %w", req.Symbol, err)
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		status, err := e.broker.PollOrder(fillCtx, ack.ID)
		if err == nil && status.State.IsTerminal() {
			if status.State != broker.OrderFilled {
				return status, fmt.Errorf("%w: order %s ended in state %s", models.ErrExecutionRejected, ack.ID, status.State)
			}
			return status, nil
		}
		if err != nil {
			e.logger.Printf("poll error for order %s: %v", ack.ID, err)
		}
		select {
		case <-fillCtx.Done():
			return broker.OrderStatus{}, fmt.Errorf("%w: order %s did not reach a terminal state within %s", models.ErrExecutionRejected, ack.ID, e.cfg.FillTimeout)
		case <-ticker.C:
		}
	}
}

// resolveLimitPrice rounds price to the broker-reported tick size for
// symbol; the executor never hardcodes nickel-vs-penny grid, deferring that
// convention to the broker adapter per the tick-size-rounding ruling.
func (e *Executor) resolveLimitPrice(ctx context.Context, symbol string, price decimal.Decimal) decimal.Decimal {
	tick, err := e.broker.GetTickSize(ctx, symbol)
	if err != nil {
		e.logger.Printf("tick size lookup failed for %s, using raw price: %v", symbol, err)
		return price
	}
	return util.RoundToTick(price, tick)
}

// PlaceSingle places a single limit order, waits it out to a
// terminal broker status, and yields one Trade and one OPEN Position.
func (e *Executor) PlaceSingle(ctx context.Context, sig models.Signal, approval models.RiskApproval) (models.Trade, error) {
	if !approval.Approved || approval.SizedQuantity <= 0 {
		return models.Trade{}, fmt.Errorf("%w: signal was not approved", models.ErrExecutionRejected)
	}

	limitPrice := e.resolveLimitPrice(ctx, sig.Symbol, sig.EntryPrice)
	req := broker.OrderRequest{
		ClientOrderID: uuid.NewString(), Symbol: sig.Symbol, Side: sideForAction(sig.Action),
		Quantity: approval.SizedQuantity, Type: broker.Limit, LimitPrice: limitPrice,
	}

	status, err := e.placeAndAwaitFill(ctx, req)
	if err != nil {
		return models.Trade{}, err
	}

	commission := models.CommissionForLeg(approval.SizedQuantity)
	slippage := status.FillPrice.Sub(sig.EntryPrice).Abs()

	position := models.NewPosition(uuid.NewString(), sig.Symbol, sig.Strategy, positionTypeForAction(sig.Action), approval.SizedQuantity, status.FillPrice)
	position.CommissionPaid = commission

	trade := models.Trade{
		ID: uuid.NewString(), Timestamp: e.now(), Symbol: sig.Symbol, Strategy: sig.Strategy,
		Action: sig.Action, EntryPrice: status.FillPrice, Quantity: approval.SizedQuantity,
		Commission: commission, Slippage: slippage, Reasoning: sig.Reasoning, PositionID: position.ID,
	}
	position.EntryTradeID = trade.ID

	if err := e.store.InsertPosition(ctx, position); err != nil {
		return models.Trade{}, fmt.Errorf("persisting position: %w", err)
	}
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return models.Trade{}, fmt.Errorf("persisting trade: %w", err)
	}
	return trade, nil
}

// PlaceIronCondor places four sequential single-leg orders in the fixed
// order setup.Legs already carries (short call, long call, short put, long
// put). Any leg failing to fill within its
// timeout triggers an opposite-side market unwind of every leg filled so
// far; only a 4/4 fill creates a SPREAD Position.
func (e *Executor) PlaceIronCondor(ctx context.Context, setup *signal.IronCondorSetup, approval models.RiskApproval) (models.Trade, error) {
	if !approval.Approved || approval.SizedQuantity <= 0 {
		return models.Trade{}, fmt.Errorf("%w: iron condor was not approved", models.ErrExecutionRejected)
	}

	var filled []legFill
	totalCommission := decimal.Zero
	totalSlippage := decimal.Zero

	for _, leg := range setup.Legs {
		limitPrice := e.resolveLimitPrice(ctx, leg.Symbol, leg.EntryPrice)
		req := broker.OrderRequest{
			ClientOrderID: uuid.NewString(), Symbol: leg.Symbol, Side: leg.Side,
			Quantity: approval.SizedQuantity, Type: broker.Limit, LimitPrice: limitPrice,
		}
		status, err := e.placeAndAwaitFill(ctx, req)
		if err != nil {
			e.logger.Printf("iron condor leg %s failed to fill: %v; unwinding %d filled leg(s)", leg.Symbol, err, len(filled))
			unwindCommission, unwindSlippage := e.unwind(ctx, filled, approval.SizedQuantity)
			totalCommission = totalCommission.Add(unwindCommission)
			totalSlippage = totalSlippage.Add(unwindSlippage)
			return e.recordFailedSpread(ctx, setup, approval, totalCommission, totalSlippage, err)
		}
		legSlippage := status.FillPrice.Sub(leg.EntryPrice).Abs()
		totalCommission = totalCommission.Add(models.CommissionForLeg(approval.SizedQuantity))
		totalSlippage = totalSlippage.Add(legSlippage)
		filled = append(filled, legFill{leg: leg, fillPrice: status.FillPrice, slippage: legSlippage})
	}

	maxLossTotal := setup.MaxLossPerUnit.Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(int64(approval.SizedQuantity)))
	position, err := models.NewSpreadPosition(uuid.NewString(), setup.Underlying, approval.SizedQuantity, setup.Legs, setup.NetCredit, maxLossTotal, decimal.NewFromInt(5))
	if err != nil {
		return models.Trade{}, fmt.Errorf("building spread position: %w", err)
	}

	position.CommissionPaid = totalCommission

	trade := models.Trade{
		ID: uuid.NewString(), Timestamp: e.now(), Symbol: position.RepresentativeSymbol,
		Strategy: models.IronCondor, Action: models.ActionOpenSpread, EntryPrice: setup.NetCredit,
		Quantity: approval.SizedQuantity, Commission: totalCommission, Slippage: totalSlippage,
		PositionID: position.ID,
	}
	position.EntryTradeID = trade.ID

	if err := e.store.InsertPosition(ctx, position); err != nil {
		return models.Trade{}, fmt.Errorf("persisting spread position: %w", err)
	}
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return models.Trade{}, fmt.Errorf("persisting spread trade: %w", err)
	}
	return trade, nil
}

// unwind reverses every filled leg with an opposite-side market order,
// returning the accumulated commission and slippage of the reversing
// trades. Per the slippage-attribution ruling, each unwind leg's slippage is
// computed independently against its own original expected price.
func (e *Executor) unwind(ctx context.Context, filled []legFill, quantity int) (commission, slippage decimal.Decimal) {
	commission, slippage = decimal.Zero, decimal.Zero
	for _, f := range filled {
		opposite := models.SideSell
		if f.leg.Side == models.SideSell {
			opposite = models.SideBuy
		}
		req := broker.OrderRequest{ClientOrderID: uuid.NewString(), Symbol: f.leg.Symbol, Side: opposite, Quantity: quantity, Type: broker.Market}
		status, err := e.placeAndAwaitFill(ctx, req)
		commission = commission.Add(models.CommissionForLeg(quantity))
		if err != nil {
			e.logger.Printf("unwind order for %s failed: %v (position left without this leg's protection; requires operator attention)", f.leg.Symbol, err)
			continue
		}
		slippage = slippage.Add(status.FillPrice.Sub(f.leg.EntryPrice).Abs())
	}
	return commission, slippage
}

func (e *Executor) recordFailedSpread(ctx context.Context, setup *signal.IronCondorSetup, approval models.RiskApproval, commission, slippage decimal.Decimal, cause error) (models.Trade, error) {
	trade := models.Trade{
		ID: uuid.NewString(), Timestamp: e.now(), Symbol: "iron_condor_" + setup.Underlying,
		Strategy: models.IronCondor, Action: models.ActionOpenSpread, EntryPrice: setup.NetCredit,
		Quantity: approval.SizedQuantity, Commission: commission, Slippage: slippage,
		Reasoning: fmt.Sprintf("partial fill unwound: %v", cause), Failed: true,
	}
	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return models.Trade{}, fmt.Errorf("persisting failed spread trade: %w", err)
	}
	return trade, fmt.Errorf("%w: %v", models.ErrExecutionRejected, cause)
}

// ClosePosition closes out an open position. closeQty of 0 (or >=
// position.Quantity) closes the position fully; a smaller closeQty performs
// the partial close the momentum strategy's two-tier profit take requires
// for single-leg positions (spreads always close in full).
func (e *Executor) ClosePosition(ctx context.Context, position *models.Position, reason models.ExitReason, closeQty int) (models.Trade, error) {
	lock := e.lockFor(position.ID)
	lock.Lock()
	defer lock.Unlock()

	if closeQty <= 0 || closeQty > position.Quantity || position.PositionType == models.PositionSpread {
		closeQty = position.Quantity
	}
	full := closeQty == position.Quantity

	var trade models.Trade
	var realizedPnL decimal.Decimal
	var err error

	switch position.PositionType {
	case models.PositionSpread:
		trade, realizedPnL, err = e.closeSpreadLegs(ctx, position, closeQty)
	default:
		trade, realizedPnL, err = e.closeSingleLeg(ctx, position, closeQty)
	}
	if err != nil {
		return models.Trade{}, err
	}
	trade.Reasoning = string(reason)

	if full {
		if err := e.store.ClosePosition(ctx, position.ID, reason, e.now(), realizedPnL); err != nil {
			return models.Trade{}, fmt.Errorf("closing position: %w", err)
		}
		trade.HasExit = true
		trade.ExitPrice = trade.EntryPrice
		trade.PnL = realizedPnL
		position.ExitTradeID = trade.ID
	} else {
		if err := e.store.ReducePositionQuantity(ctx, position.ID, closeQty, realizedPnL); err != nil {
			return models.Trade{}, fmt.Errorf("reducing position quantity: %w", err)
		}
		trade.PnL = realizedPnL
	}

	if err := e.updateConsecutiveLosses(ctx, realizedPnL, full); err != nil {
		e.logger.Printf("failed to update portfolio counters after close: %v", err)
	}

	if err := e.store.AppendTrade(ctx, trade); err != nil {
		return models.Trade{}, fmt.Errorf("persisting exit trade: %w", err)
	}
	return trade, nil
}

func (e *Executor) closeSingleLeg(ctx context.Context, position *models.Position, closeQty int) (models.Trade, decimal.Decimal, error) {
	side := models.SideSell
	if position.PositionType == models.PositionShort {
		side = models.SideBuy
	}
	limitPrice := e.resolveLimitPrice(ctx, position.RepresentativeSymbol, position.CurrentPrice)
	req := broker.OrderRequest{ClientOrderID: uuid.NewString(), Symbol: position.RepresentativeSymbol, Side: side, Quantity: closeQty, Type: broker.Market, LimitPrice: limitPrice}
	status, err := e.placeAndAwaitFill(ctx, req)
	if err != nil {
		return models.Trade{}, decimal.Zero, fmt.Errorf("closing single-leg position %s: %w", position.ID, err)
	}

	commission := models.CommissionForLeg(closeQty)
	hundred := decimal.NewFromInt(100)
	qty := decimal.NewFromInt(int64(closeQty))
	var pnl decimal.Decimal
	if position.PositionType == models.PositionShort {
		pnl = position.EntryPrice.Sub(status.FillPrice).Mul(hundred).Mul(qty).Sub(commission)
	} else {
		pnl = status.FillPrice.Sub(position.EntryPrice).Mul(hundred).Mul(qty).Sub(commission)
	}

	trade := models.Trade{
		ID: uuid.NewString(), Timestamp: e.now(), Symbol: position.RepresentativeSymbol,
		Strategy: position.Strategy, Action: models.ActionClose, EntryPrice: position.EntryPrice,
		Quantity: closeQty, Commission: commission,
		Slippage: status.FillPrice.Sub(position.CurrentPrice).Abs(), PositionID: position.ID,
	}
	return trade, pnl, nil
}

func (e *Executor) closeSpreadLegs(ctx context.Context, position *models.Position, closeQty int) (models.Trade, decimal.Decimal, error) {
	totalCommission := decimal.Zero
	totalSlippage := decimal.Zero
	currentSpreadValue := decimal.Zero

	for _, leg := range position.Legs {
		opposite := models.SideSell
		if leg.Side == models.SideSell {
			opposite = models.SideBuy
		}
		req := broker.OrderRequest{ClientOrderID: uuid.NewString(), Symbol: leg.Symbol, Side: opposite, Quantity: closeQty, Type: broker.Market}
		status, err := e.placeAndAwaitFill(ctx, req)
		if err != nil {
			e.logger.Printf("spread leg close failed for %s: %v; unwinding legs closed so far is not possible (position left in an inconsistent state requiring operator attention)", leg.Symbol, err)
			return models.Trade{}, decimal.Zero, fmt.Errorf("closing spread position %s: %w", position.ID, err)
		}
		legSlippage := status.FillPrice.Sub(leg.EntryPrice).Abs()
		totalCommission = totalCommission.Add(models.CommissionForLeg(closeQty))
		totalSlippage = totalSlippage.Add(legSlippage)

		// Cost to close mirrors the entry side: a leg originally sold for
		// credit is bought back for a cost, a leg originally bought is sold
		// back for a credit, regardless of call/put.
		if leg.Side == models.SideSell {
			currentSpreadValue = currentSpreadValue.Add(status.FillPrice)
		} else {
			currentSpreadValue = currentSpreadValue.Sub(status.FillPrice)
		}
	}

	hundred := decimal.NewFromInt(100)
	qty := decimal.NewFromInt(int64(closeQty))
	pnl := position.NetCredit.Sub(currentSpreadValue).Mul(hundred).Mul(qty).Sub(totalCommission)

	trade := models.Trade{
		ID: uuid.NewString(), Timestamp: e.now(), Symbol: position.RepresentativeSymbol,
		Strategy: models.IronCondor, Action: models.ActionClose, EntryPrice: position.NetCredit,
		Quantity: closeQty, Commission: totalCommission, Slippage: totalSlippage, PositionID: position.ID,
	}
	return trade, pnl, nil
}

// updateConsecutiveLosses applies the atomic portfolio counter update:
// consecutive_losses increments on a loss, resets on a win, and daily_pnl
// is adjusted, in a single store write.
func (e *Executor) updateConsecutiveLosses(ctx context.Context, realizedPnL decimal.Decimal, full bool) error {
	if !full {
		return nil
	}
	_, err := e.store.UpdatePortfolio(ctx, func(p models.Portfolio) models.Portfolio {
		p.DailyPnL = p.DailyPnL.Add(realizedPnL)
		if realizedPnL.IsNegative() {
			p.ConsecutiveLosses++
		} else {
			p.ConsecutiveLosses = 0
		}
		return p
	})
	return err
}
