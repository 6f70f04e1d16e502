// Package main provides the entry point for the Trade Oracle paper-trading
// options execution engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tradeoracle/engine/internal/broker"
	"github.com/tradeoracle/engine/internal/config"
	"github.com/tradeoracle/engine/internal/dashboard"
	"github.com/tradeoracle/engine/internal/executor"
	"github.com/tradeoracle/engine/internal/metrics"
	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/monitor"
	"github.com/tradeoracle/engine/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[ORACLE] ", log.LstdFlags|log.Lshortfile)

	logger.Printf("Starting Trade Oracle in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - no real money at risk")
	} else {
		// The hard-coded paper-trading assertion in the risk gate runs on
		// every approval regardless of this check; this is a loud early
		// refusal so an operator never discovers a misconfigured mode only
		// after every signal silently gets denied.
		logger.Println("refusing to start: environment.mode must be \"paper\" — live trading is not supported")
		return 1
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		logger.Printf("WARNING: failed to load timezone %q (%v), falling back to UTC", cfg.Schedule.Timezone, err)
		loc = time.UTC
	}

	st, err := store.NewJSONStore(cfg.Storage.Path)
	if err != nil {
		logger.Printf("Failed to initialize storage: %v", err)
		return 1
	}

	brk, err := buildBroker(cfg, logger)
	if err != nil {
		logger.Printf("Failed to initialize broker: %v", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metricsServer := startMetricsServer(reg, metricsPort(cfg), logger)

	execCfg := executor.DefaultConfig
	execCfg.FillTimeout = cfg.Broker.FillTimeout
	exec := executor.New(brk, st, logger, execCfg)

	monCfg := monitor.DefaultConfig
	monCfg.Interval = cfg.Schedule.MonitorInterval
	monCfg.Location = loc
	mon := monitor.New(brk, st, exec, logger, monCfg)

	scanner := NewScanner(cfg, brk, st, exec, m, logger, loc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reconcileOnStartup(ctx, brk, st, logger); err != nil {
		logger.Printf("WARNING: startup reconciliation failed: %v (continuing with existing local data)", err)
	}

	var dashServer *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashLogger := logrus.New()
		dashLogger.SetOutput(os.Stdout)
		if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
			dashLogger.SetLevel(lvl)
		} else {
			dashLogger.SetLevel(logrus.InfoLevel)
		}
		dashServer = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, st, brk, dashLogger)
		logger.Printf("Dashboard enabled on port %d", cfg.Dashboard.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping")
		cancel()
	}()

	// The dashboard and metrics HTTP servers block in ListenAndServe until
	// their own Shutdown is called below, so they run as untracked
	// goroutines rather than joining the WaitGroup that gates that
	// Shutdown call — otherwise Wait() would never return.
	if dashServer != nil {
		go func() {
			if err := dashServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("dashboard server error: %v", err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil {
			logger.Printf("monitor loop exited with error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runScanLoop(ctx, scanner, cfg.Schedule.MonitorInterval, loc, logger)
	}()

	wg.Wait()

	if dashServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := dashServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("error shutting down dashboard: %v", err)
		}
		shutdownCancel()
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("error shutting down metrics server: %v", err)
		}
		shutdownCancel()
	}

	logger.Println("Trade Oracle stopped")
	return 0
}

// runScanLoop drives the three signal generators on the same cadence as
// the position monitor, running one pass immediately and then on every
// tick until ctx is canceled.
func runScanLoop(ctx context.Context, scanner *Scanner, interval time.Duration, loc *time.Location, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scanner.Run(ctx, time.Now().In(loc))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scanner.Run(ctx, time.Now().In(loc))
		}
	}
}

// buildBroker wires the decorator chain around the configured broker
// implementation: rate limiting outermost, then request de-duplication,
// then the circuit breaker innermost next to the base adapter. Every call
// therefore takes a rate-limit token before the breaker is consulted.
func buildBroker(cfg *config.Config, logger *log.Logger) (broker.Broker, error) {
	if !cfg.IsPaperTrading() {
		return nil, fmt.Errorf("live trading is not supported")
	}

	base := broker.NewMockBroker()
	logger.Println("broker: using an in-memory paper-trading adapter (no external provider configured)")

	withBreaker := broker.NewCircuitBreakerBroker(base)
	withDedup := broker.NewDedupingBroker(withBreaker)
	withRateLimit := broker.NewRateLimitedBroker(withDedup, broker.DefaultRateLimits)
	return withRateLimit, nil
}

// reconcileOnStartup confirms the broker account is paper-trading, loads the
// stored OPEN Positions and logs a warning for every SPREAD position that
// does not have four legs, so a crash mid multi-leg fill is not silently
// lost. Broker-reported positions are not fetched or compared. A flagged
// position is left for operator attention rather than auto-healed, since this engine
// runs multiple concurrent strategies at once and cannot safely infer which
// missing leg belongs to which position.
func reconcileOnStartup(ctx context.Context, brk broker.Broker, st store.Store, logger *log.Logger) error {
	logger.Println("reconciliation: checking broker account state...")
	acct, err := brk.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach broker: %w", err)
	}
	if !acct.IsPaperTrading {
		return fmt.Errorf("broker account is not marked paper-trading; refusing to proceed")
	}

	positions, err := st.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	logger.Printf("reconciliation: %d open position(s) in local storage", len(positions))

	for _, p := range positions {
		if p.PositionType == models.PositionSpread && len(p.Legs) != 4 {
			logger.Printf("reconciliation: WARNING position %s is SPREAD but has %d legs recorded (expected 4); needs manual review", p.ID, len(p.Legs))
		}
	}

	logger.Println("reconciliation: complete")
	return nil
}

// metricsPort places the Prometheus scrape endpoint one port above the
// dashboard (or 9100 if the dashboard is disabled), avoiding a second
// config knob for a fixed-purpose internal port.
func metricsPort(cfg *config.Config) int {
	if cfg.Dashboard.Enabled {
		return cfg.Dashboard.Port + 1
	}
	return 9100
}

// startMetricsServer exposes reg at /metrics via promhttp, running on its
// own goroutine with a graceful Shutdown, mirroring the dashboard server's
// lifecycle.
func startMetricsServer(reg *prometheus.Registry, port int, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		logger.Printf("metrics endpoint listening on :%d/metrics", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server error: %v", err)
		}
	}()
	return srv
}
