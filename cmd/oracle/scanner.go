package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/broker"
	"github.com/tradeoracle/engine/internal/config"
	"github.com/tradeoracle/engine/internal/executor"
	"github.com/tradeoracle/engine/internal/metrics"
	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/numerics"
	"github.com/tradeoracle/engine/internal/risk"
	"github.com/tradeoracle/engine/internal/signal"
	"github.com/tradeoracle/engine/internal/store"
)

const momentumBarWindow = 30

// momentumTracker keeps the streaming indicator state signal.Scan needs for
// one underlying, fed one bar at a time from successive quote polls. It
// holds only the last computed value of each indicator plus a bounded
// trailing bar window, never an unbounded history.
type momentumTracker struct {
	bars     []numerics.Bar
	ema9     *numerics.EMA
	ema21    *numerics.EMA
	rsi14    *numerics.RSI
	vwap     *numerics.VWAP
	relVol   *numerics.RelativeVolumeWindow
	ema9Prev, ema21Prev, rsi14Prev float64
}

func newMomentumTracker() *momentumTracker {
	return &momentumTracker{
		ema9:   numerics.NewEMA(9),
		ema21:  numerics.NewEMA(21),
		rsi14:  numerics.NewRSI(14),
		vwap:   &numerics.VWAP{},
		relVol: numerics.NewRelativeVolumeWindow(20),
	}
}

// update feeds the next 1-minute bar and returns the indicator snapshot for
// signal.Scan, plus whether enough samples have accumulated to scan at all.
func (t *momentumTracker) update(bar numerics.Bar, loc *time.Location) (signal.MomentumInputs, bool) {
	t.ema9Prev, t.ema21Prev, t.rsi14Prev = t.ema9.Value(), t.ema21.Value(), t.rsi14.Value()

	ema9 := t.ema9.Update(bar.Close)
	ema21 := t.ema21.Update(bar.Close)
	rsi14, rsiReady := t.rsi14.Update(bar.Close)
	vwap := t.vwap.Update(bar, loc)
	relVol, volReady := t.relVol.Update(bar.Volume)

	t.bars = append(t.bars, bar)
	if len(t.bars) > momentumBarWindow {
		t.bars = t.bars[len(t.bars)-momentumBarWindow:]
	}

	ready := rsiReady && volReady && len(t.bars) >= momentumBarWindow
	return signal.MomentumInputs{
		Bars: t.bars, EMA9: ema9, EMA9Prev: t.ema9Prev, EMA21: ema21, EMA21Prev: t.ema21Prev,
		RSI14: rsi14, RSI14Prev: t.rsi14Prev, RelativeVolume: relVol, VWAP: vwap,
		Now: bar.Timestamp,
	}, ready
}

// Scanner runs one pass of every enabled strategy over its configured
// underlyings, fetching fresh chain data, feeding the pure signal
// generators, and routing any resulting Signal through risk approval and
// execution.
type Scanner struct {
	cfg       *config.Config
	broker    broker.Broker
	store     store.Store
	exec      *executor.Executor
	metrics   *metrics.Metrics
	logger    *log.Logger
	loc       *time.Location
	benchmark *momentumTracker
	momentum  map[string]*momentumTracker
}

// NewScanner constructs a Scanner. b should already be wrapped with the
// rate-limit/dedupe/circuit-breaker decorators.
func NewScanner(cfg *config.Config, b broker.Broker, st store.Store, exec *executor.Executor, m *metrics.Metrics, logger *log.Logger, loc *time.Location) *Scanner {
	return &Scanner{
		cfg: cfg, broker: b, store: st, exec: exec, metrics: m, logger: logger, loc: loc,
		benchmark: newMomentumTracker(),
		momentum:  make(map[string]*momentumTracker),
	}
}

// Run executes one scan cycle across every enabled strategy.
func (s *Scanner) Run(ctx context.Context, now time.Time) {
	portfolio, err := s.store.GetPortfolio(ctx)
	if err != nil {
		s.logger.Printf("scan: failed to load portfolio: %v", err)
		return
	}

	acct, err := s.broker.GetAccount(ctx)
	if err != nil {
		s.logger.Printf("scan: failed to check broker paper-trading status: %v", err)
		return
	}

	if s.cfg.Strategies.IVMeanReversion.Enabled {
		for _, u := range s.cfg.Strategies.IVMeanReversion.Underlyings {
			s.scanIVMeanReversion(ctx, u, now, portfolio, acct.IsPaperTrading)
		}
	}

	if s.cfg.Strategies.IronCondor.Enabled {
		inWindow, _ := s.cfg.IsWithinWindow(s.cfg.Schedule.IronCondorStart, s.cfg.Schedule.IronCondorEnd, now)
		if inWindow {
			for _, u := range s.cfg.Strategies.IronCondor.Underlyings {
				s.scanIronCondor(ctx, u, now, portfolio, acct.IsPaperTrading)
			}
		}
	}

	if s.cfg.Strategies.Momentum.Enabled {
		inWindow, _ := s.cfg.IsWithinWindow(s.cfg.Schedule.MomentumStart, s.cfg.Schedule.MomentumEnd, now)
		if inWindow {
			s.scanMomentum(ctx, now, portfolio, acct.IsPaperTrading)
		}
	}
}

func (s *Scanner) scanIVMeanReversion(ctx context.Context, underlying string, now time.Time, portfolio models.Portfolio, isPaper bool) {
	chain, err := s.broker.GetOptionChain(ctx, underlying, time.Time{})
	if err != nil {
		s.logger.Printf("iv_mean_reversion[%s]: chain fetch failed: %v", underlying, err)
		return
	}
	for _, tick := range chain {
		if err := s.store.AppendTick(ctx, tick); err != nil {
			s.logger.Printf("iv_mean_reversion[%s]: failed to persist tick %s: %v", underlying, tick.Symbol, err)
		}
		history, err := s.store.DailyIVs(ctx, tick.Symbol, now.AddDate(0, 0, -90), now)
		if err != nil {
			continue
		}
		sig, err := signal.IVMeanReversion(tick, history, now)
		if err != nil || sig == nil {
			continue
		}
		s.approveAndExecuteSingle(ctx, *sig, portfolio, isPaper)
	}
}

func (s *Scanner) scanIronCondor(ctx context.Context, underlying string, now time.Time, portfolio models.Portfolio, isPaper bool) {
	chain, err := s.broker.GetOptionChain(ctx, underlying, now)
	if err != nil {
		s.logger.Printf("iron_condor[%s]: chain fetch failed: %v", underlying, err)
		return
	}
	sig, setup, err := signal.BuildIronCondor(underlying, chain, now, false)
	if err != nil || sig == nil {
		return
	}
	approval, err := risk.Approve(*sig, portfolio, isPaper, setup.MaxLossPerUnit)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRiskDenial(approval.Reason)
		}
		s.logger.Printf("iron_condor[%s]: denied: %v", underlying, err)
		return
	}
	trade, err := s.exec.PlaceIronCondor(ctx, setup, approval)
	if err != nil {
		s.logger.Printf("iron_condor[%s]: execution failed: %v", underlying, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOrder(models.IronCondor, models.SideSell)
		s.metrics.RecordTrade(models.IronCondor, trade.PnL)
	}
}

func (s *Scanner) scanMomentum(ctx context.Context, now time.Time, portfolio models.Portfolio, isPaper bool) {
	benchChain, err := s.broker.GetOptionChain(ctx, s.cfg.Strategies.Momentum.Benchmark, time.Time{})
	if err != nil || len(benchChain) == 0 {
		s.logger.Printf("momentum: benchmark chain fetch failed: %v", err)
		return
	}
	_, _ = s.benchmark.update(underlyingBar(benchChain[0], now), s.loc)
	benchReturn30 := benchmarkReturn(s.benchmark.bars)

	for _, u := range s.cfg.Strategies.Momentum.Underlyings {
		chain, err := s.broker.GetOptionChain(ctx, u, time.Time{})
		if err != nil || len(chain) == 0 {
			s.logger.Printf("momentum[%s]: chain fetch failed: %v", u, err)
			continue
		}
		tracker, ok := s.momentum[u]
		if !ok {
			tracker = newMomentumTracker()
			s.momentum[u] = tracker
		}
		in, ready := tracker.update(underlyingBar(chain[0], now), s.loc)
		if !ready {
			continue
		}
		in.BenchmarkReturn30 = benchReturn30
		in.UnderlyingReturn30 = benchmarkReturn(tracker.bars)

		sig, err := signal.Scan(u, in, chain)
		if err != nil || sig == nil {
			continue
		}
		s.approveAndExecuteSingle(ctx, *sig, portfolio, isPaper)
	}
}

func (s *Scanner) approveAndExecuteSingle(ctx context.Context, sig models.Signal, portfolio models.Portfolio, isPaper bool) {
	approval, err := risk.Approve(sig, portfolio, isPaper, decimal.Zero)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRiskDenial(approval.Reason)
		}
		s.logger.Printf("%s[%s]: denied: %v", sig.Strategy, sig.Symbol, err)
		return
	}
	trade, err := s.exec.PlaceSingle(ctx, sig, approval)
	if err != nil {
		s.logger.Printf("%s[%s]: execution failed: %v", sig.Strategy, sig.Symbol, err)
		return
	}
	if s.metrics != nil {
		side := models.SideBuy
		if sig.Action == models.ActionSell {
			side = models.SideSell
		}
		s.metrics.RecordOrder(sig.Strategy, side)
		s.metrics.RecordTrade(sig.Strategy, trade.PnL)
	}
}

// underlyingBar turns one option chain's embedded underlying price into a
// synthetic 1-minute bar. OptionTick carries no separate share-volume field
// (it is scoped to the option contract), so relative-volume detection runs
// on a proxy: the given tick's IV scaled by 1e6 into a stable positive
// series. The proxy follows implied-volatility moves; it measures neither
// option activity nor underlying share volume.
func underlyingBar(tick models.OptionTick, now time.Time) numerics.Bar {
	price, _ := tick.UnderlyingPrice.Float64()
	volumeProxy := tick.IV * 1_000_000
	return numerics.Bar{Timestamp: now, Open: price, High: price, Low: price, Close: price, Volume: volumeProxy}
}

// benchmarkReturn computes the trailing-30-bar simple return from a bar
// window; returns 0 until at least 30 bars have accumulated.
func benchmarkReturn(bars []numerics.Bar) float64 {
	if len(bars) < momentumBarWindow {
		return 0
	}
	first := bars[0].Close
	last := bars[len(bars)-1].Close
	if first == 0 {
		return 0
	}
	return (last - first) / first
}
