// Package dashboard renders a read-only HTTP view over the engine's open
// positions and trade statistics. It is an external collaborator that
// never drives execution, only observes the store and broker.
package dashboard

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tradeoracle/engine/internal/broker"
	"github.com/tradeoracle/engine/internal/models"
	"github.com/tradeoracle/engine/internal/store"
)

//go:embed web/templates/*
var templateFS embed.FS

//go:embed web/static/*
var staticFS embed.FS

// Server is the dashboard's HTTP surface: positions, stats, and a
// single-position detail view, all read-only.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     store.Store
	broker    broker.Broker
	logger    *logrus.Logger
	port      int
	authToken string

	allocationThreshold float64

	dashboardTemplate      *template.Template
	positionsTemplate      *template.Template
	statsTemplate          *template.Template
	positionDetailTemplate *template.Template
}

// Config configures the dashboard server.
type Config struct {
	Port                int
	AuthToken           string
	AllocationThreshold float64 // warn when allocated-capital % exceeds this
}

// DashboardData is the top-level template context for the index page.
type DashboardData struct {
	Positions      []PositionView
	Stats          Statistics
	LastUpdate     time.Time
	AccountBalance float64
	MarketStatus   string
}

// PositionView flattens a models.Position (and, for spreads, its legs) into
// template-friendly plain fields.
type PositionView struct {
	ID           string
	Symbol       string
	Strategy     string
	PositionType string
	State        string
	Quantity     int
	EntryPrice   float64
	CurrentPrice float64
	CurrentPnL   float64
	PnLPercent   float64
	NetCredit    float64
	MaxLoss      float64
	OpenedAt     time.Time
	Legs         []LegView
	IsProfit     bool
}

// LegView is one row of a spread position's leg table.
type LegView struct {
	Symbol     string
	Side       string
	Right      string
	Strike     float64
	EntryPrice float64
}

// Statistics summarizes closed-trade performance and current allocation.
type Statistics struct {
	TotalTrades         int
	WinningTrades       int
	LosingTrades        int
	WinRate             float64
	TotalPnL            float64
	AveragePnL          float64
	CurrentOpen         int
	TotalAllocated      float64
	AllocationPct       float64
	AllocationThreshold float64
	IsAllocationHigh    bool
	ConsecutiveLosses   int
	DailyPnL            float64
}

// NewServer builds a dashboard Server and pre-parses its templates.
func NewServer(cfg Config, st store.Store, brk broker.Broker, logger *logrus.Logger) *Server {
	s := &Server{
		router:              chi.NewRouter(),
		store:               st,
		broker:              brk,
		logger:              logger,
		port:                cfg.Port,
		authToken:           cfg.AuthToken,
		allocationThreshold: cfg.AllocationThreshold,
	}

	if err := s.parseTemplates(); err != nil {
		logger.WithError(err).Fatal("failed to parse dashboard templates")
	}

	s.setupRoutes()
	return s
}

func (s *Server) parseTemplates() error {
	funcMap := template.FuncMap{
		"mul": func(a, b float64) float64 { return a * b },
		"div": func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		},
	}

	var err error
	s.dashboardTemplate, err = template.New("dashboard.html").Funcs(funcMap).ParseFS(templateFS, "web/templates/*.html")
	if err != nil {
		return fmt.Errorf("parsing dashboard template: %w", err)
	}
	s.positionsTemplate, err = template.New("positions.html").Funcs(funcMap).ParseFS(templateFS, "web/templates/positions.html")
	if err != nil {
		return fmt.Errorf("parsing positions template: %w", err)
	}
	s.statsTemplate, err = template.New("stats.html").Funcs(funcMap).ParseFS(templateFS, "web/templates/stats.html")
	if err != nil {
		return fmt.Errorf("parsing stats template: %w", err)
	}
	s.positionDetailTemplate, err = template.New("position-detail.html").Funcs(funcMap).ParseFS(templateFS, "web/templates/position-detail.html")
	if err != nil {
		return fmt.Errorf("parsing position detail template: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(middleware.Compress(5))

	sub, err := fs.Sub(staticFS, "web/static")
	if err != nil {
		s.logger.WithError(err).Fatal("failed to create static filesystem")
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))

	register := func(r chi.Router) {
		r.Get("/", s.handleDashboard)
		r.Get("/api/positions", s.handleGetPositions)
		r.Get("/api/stats", s.handleGetStats)
		r.Get("/api/position/{id}", s.handleGetPosition)
		r.Get("/partials/positions", s.handlePositionsPartial)
		r.Get("/partials/stats", s.handleStatsPartial)
		r.Get("/partials/position/{id}", s.handlePositionDetailPartial)
	}

	if s.authToken != "" {
		s.router.Route("/", func(r chi.Router) {
			r.Use(s.authMiddleware)
			register(r)
		})
	} else {
		register(s.router)
	}

	s.router.Get("/health", s.handleHealth)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedURL := s.redactTokenFromURL(r.URL)
		logEntry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"url":        loggedURL.String(),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		})
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		logEntry.WithFields(logrus.Fields{
			"status":   wrapped.Status(),
			"bytes":    wrapped.BytesWritten(),
			"duration": time.Since(start),
		}).Info("http request")
	})
}

func (s *Server) redactTokenFromURL(originalURL *url.URL) *url.URL {
	loggedURL := &url.URL{
		Scheme:   originalURL.Scheme,
		Host:     originalURL.Host,
		Path:     originalURL.Path,
		RawQuery: originalURL.RawQuery,
		Fragment: originalURL.Fragment,
	}
	if originalURL.RawQuery != "" {
		values := originalURL.Query()
		for _, k := range []string{"token", "auth_token"} {
			if values.Has(k) {
				values.Set(k, "[REDACTED]")
			}
		}
		loggedURL.RawQuery = values.Encode()
	}
	return loggedURL
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			if cookie, err := r.Cookie("auth_token"); err == nil {
				token = cookie.Value
			}
		}

		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

// Start begins serving and blocks until Shutdown or a fatal listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("starting dashboard server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := s.getDashboardData(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to get dashboard data")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dashboardTemplate.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("failed to execute dashboard template")
	}
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	views, err := s.openPositionViews(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to load positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(views)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.calculateStatistics(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to calculate statistics")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, err := s.store.GetPosition(r.Context(), id)
	if err != nil {
		s.logger.WithField("position_id", id).Warn("position not found")
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(toPositionView(pos))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handlePositionsPartial(w http.ResponseWriter, r *http.Request) {
	views, err := s.openPositionViews(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to load positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.positionsTemplate.ExecuteTemplate(w, "positions-content", views); err != nil {
		s.logger.WithError(err).Error("failed to execute positions template")
	}
}

func (s *Server) handleStatsPartial(w http.ResponseWriter, r *http.Request) {
	stats, err := s.calculateStatistics(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("failed to calculate statistics")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.statsTemplate.ExecuteTemplate(w, "stats-content", stats); err != nil {
		s.logger.WithError(err).Error("failed to execute stats template")
	}
}

func (s *Server) handlePositionDetailPartial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, err := s.store.GetPosition(r.Context(), id)
	if err != nil {
		s.logger.WithField("position_id", id).Warn("position not found")
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.positionDetailTemplate.Execute(w, toPositionView(pos)); err != nil {
		s.logger.WithError(err).Error("failed to execute position detail template")
	}
}

func (s *Server) getDashboardData(ctx context.Context) (*DashboardData, error) {
	views, err := s.openPositionViews(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.calculateStatistics(ctx)
	if err != nil {
		return nil, err
	}

	balance := 0.0
	if acct, err := s.broker.GetAccount(ctx); err == nil {
		balance, _ = acct.Balance.Float64()
	} else {
		s.logger.WithError(err).Warn("failed to get account balance")
	}

	marketStatus := "Closed"
	if isMarketOpen() {
		marketStatus = "Open"
	}

	return &DashboardData{
		Positions:      views,
		Stats:          *stats,
		LastUpdate:     time.Now(),
		AccountBalance: balance,
		MarketStatus:   marketStatus,
	}, nil
}

func (s *Server) openPositionViews(ctx context.Context) ([]PositionView, error) {
	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	return views, nil
}

func toPositionView(pos *models.Position) PositionView {
	entry, _ := pos.EntryPrice.Float64()
	current, _ := pos.CurrentPrice.Float64()
	pnl, _ := pos.UnrealizedPnL.Float64()
	netCredit, _ := pos.NetCredit.Float64()
	maxLoss, _ := pos.MaxLoss.Float64()

	pnlPercent := 0.0
	if entry != 0 {
		pnlPercent = (pnl / (entry * 100 * float64(pos.Quantity))) * 100
	}

	legs := make([]LegView, 0, len(pos.Legs))
	for _, l := range pos.Legs {
		strike, _ := l.Strike.Float64()
		legEntry, _ := l.EntryPrice.Float64()
		legs = append(legs, LegView{
			Symbol: l.Symbol, Side: string(l.Side), Right: string(l.Right),
			Strike: strike, EntryPrice: legEntry,
		})
	}

	return PositionView{
		ID: pos.ID, Symbol: pos.RepresentativeSymbol, Strategy: string(pos.Strategy),
		PositionType: string(pos.PositionType), State: string(pos.Status),
		Quantity: pos.Quantity, EntryPrice: entry, CurrentPrice: current,
		CurrentPnL: pnl, PnLPercent: pnlPercent, NetCredit: netCredit, MaxLoss: maxLoss,
		OpenedAt: pos.OpenedAt, Legs: legs, IsProfit: pnl > 0,
	}
}

func (s *Server) calculateStatistics(ctx context.Context) (*Statistics, error) {
	openPositions, err := s.store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}
	trades, err := s.store.AllTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trades: %w", err)
	}
	portfolio, err := s.store.GetPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading portfolio: %w", err)
	}

	stats := &Statistics{
		CurrentOpen:       len(openPositions),
		ConsecutiveLosses: portfolio.ConsecutiveLosses,
	}
	dailyPnL, _ := portfolio.DailyPnL.Float64()
	stats.DailyPnL = dailyPnL

	var totalAllocated float64
	for _, p := range openPositions {
		entry, _ := p.EntryPrice.Float64()
		totalAllocated += entry * 100 * float64(p.Quantity)
	}

	for _, t := range trades {
		if !t.HasExit {
			continue
		}
		stats.TotalTrades++
		pnl, _ := t.PnL.Float64()
		stats.TotalPnL += pnl
		if pnl > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
		stats.AveragePnL = stats.TotalPnL / float64(stats.TotalTrades)
	}

	balance, _ := portfolio.Balance.Float64()
	stats.TotalAllocated = totalAllocated
	if balance > 0 {
		stats.AllocationPct = (totalAllocated / balance) * 100
	}
	stats.AllocationThreshold = s.allocationThreshold
	stats.IsAllocationHigh = stats.AllocationPct > s.allocationThreshold

	return stats, nil
}

func isMarketOpen() bool {
	now := time.Now()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	nyTime := now.In(loc)

	if nyTime.Weekday() == time.Saturday || nyTime.Weekday() == time.Sunday {
		return false
	}

	minutes := nyTime.Hour()*60 + nyTime.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
