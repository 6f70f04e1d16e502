// Package monitor implements a single cooperative periodic task that
// fetches marks for every OPEN position, recomputes unrealized P&L, applies
// strategy-specific exit rules, and triggers closing execution via a
// ticker-driven loop, dispatching per-position and per-strategy.
package monitor

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tradeoracle/engine/internal/broker"
	"github.com/tradeoracle/engine/internal/executor"
	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/store"
)

const defaultInterval = 60 * time.Second
const defaultQuoteTimeout = 10 * time.Second

// Config controls the monitor's cycle period and per-cycle quote timeout,
// and names the exchange-local timezone the time-of-day exit rules (15:50
// backstop, 11:30 momentum force-close) are evaluated against.
type Config struct {
	Interval     time.Duration
	QuoteTimeout time.Duration
	Location     *time.Location
}

// DefaultConfig uses a fixed 60 s cycle.
var DefaultConfig = Config{Interval: defaultInterval, QuoteTimeout: defaultQuoteTimeout, Location: time.UTC}

// Monitor runs the periodic exit-rule evaluation loop.
type Monitor struct {
	broker broker.Broker
	store  store.Store
	exec   *executor.Executor
	logger *log.Logger
	cfg    Config
	now    func() time.Time
}

// New builds a Monitor. A nil logger falls back to a stderr-backed default.
func New(b broker.Broker, st store.Store, exec *executor.Executor, logger *log.Logger, cfg Config) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "monitor: ", log.LstdFlags)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig.Interval
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = DefaultConfig.QuoteTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Monitor{broker: b, store: st, exec: exec, logger: logger, cfg: cfg, now: time.Now}
}

// Run drives the ticker loop until ctx is canceled. Cycles never overlap: a
// cycle that runs long simply delays the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle evaluates every open position once, in ascending ID order, a
// deterministic ordering guarantee (store.OpenPositions already sorts).
func (m *Monitor) runCycle(ctx context.Context) {
	positions, err := m.store.OpenPositions(ctx)
	if err != nil {
		m.logger.Printf("skipping cycle: could not list open positions: %v", err)
		return
	}
	for _, p := range positions {
		m.evaluatePosition(ctx, p)
	}
}

func (m *Monitor) evaluatePosition(ctx context.Context, p *models.Position) {
	quoteCtx, cancel := context.WithTimeout(ctx, m.cfg.QuoteTimeout)
	defer cancel()

	quotes, err := m.fetchQuotes(quoteCtx, p)
	if err != nil {
		m.logger.Printf("position %s: missing quote, skipping this cycle: %v", p.ID, err)
		return
	}

	mk := m.computeMarks(p, quotes)
	if err := m.store.UpdatePositionMarks(ctx, p.ID, mk.CurrentPrice, mk.UnrealizedPnL); err != nil {
		m.logger.Printf("position %s: failed to write marks: %v", p.ID, err)
		return
	}
	p.CurrentPrice = mk.CurrentPrice
	p.UnrealizedPnL = mk.UnrealizedPnL

	eval := evaluateExit(p, mk, m.now(), m.cfg.Location)
	if !eval.Fires {
		return
	}

	if _, err := m.exec.ClosePosition(ctx, p, eval.Reason, eval.CloseQuantity); err != nil {
		m.logger.Printf("position %s: close attempt failed, retrying next cycle: %v", p.ID, err)
		return
	}
	if eval.MarkTier1 {
		if err := m.store.MarkMomentumTierOneClosed(ctx, p.ID); err != nil {
			m.logger.Printf("position %s: failed to record tier-1 close: %v", p.ID, err)
		}
	}
}

// fetchQuotes fans out one quote call per owned leg symbol via errgroup,
// per SPEC_FULL.md's domain-stack wiring. A single-leg position issues one
// call; a spread issues four concurrently.
func (m *Monitor) fetchQuotes(ctx context.Context, p *models.Position) (map[string]models.OptionTick, error) {
	symbols := []string{p.RepresentativeSymbol}
	if p.PositionType == models.PositionSpread {
		symbols = make([]string, len(p.Legs))
		for i, leg := range p.Legs {
			symbols[i] = leg.Symbol
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]models.OptionTick, len(symbols))
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			tick, err := m.broker.GetQuote(gctx, sym)
			if err != nil {
				return err
			}
			results[i] = tick
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]models.OptionTick, len(symbols))
	for i, sym := range symbols {
		out[sym] = results[i]
	}
	return out, nil
}

// computeMarks applies the single-leg and spread unrealized P&L formulas.
func (m *Monitor) computeMarks(p *models.Position, quotes map[string]models.OptionTick) marks {
	hundred := decimal.NewFromInt(100)
	qty := decimal.NewFromInt(int64(p.Quantity))

	if p.PositionType == models.PositionSpread {
		shortCall := quotes[p.Legs[0].Symbol].Mid()
		longCall := quotes[p.Legs[1].Symbol].Mid()
		shortPut := quotes[p.Legs[2].Symbol].Mid()
		longPut := quotes[p.Legs[3].Symbol].Mid()
		currentSpreadValue := shortCall.Sub(longCall).Add(shortPut.Sub(longPut))
		pnl := p.NetCredit.Sub(currentSpreadValue).Mul(hundred).Mul(qty).Sub(p.CommissionPaid)
		return marks{
			CurrentPrice:    currentSpreadValue,
			UnrealizedPnL:   pnl,
			UnderlyingPrice: quotes[p.Legs[0].Symbol].UnderlyingPrice,
		}
	}

	mid := quotes[p.RepresentativeSymbol].Mid()
	var pnl decimal.Decimal
	if p.PositionType == models.PositionShort {
		pnl = p.EntryPrice.Sub(mid).Mul(hundred).Mul(qty).Sub(p.CommissionPaid)
	} else {
		pnl = mid.Sub(p.EntryPrice).Mul(hundred).Mul(qty).Sub(p.CommissionPaid)
	}
	return marks{
		CurrentPrice:  mid,
		UnrealizedPnL: pnl,
		DTE:           daysToExpiration(p.RepresentativeSymbol, m.now()),
	}
}
