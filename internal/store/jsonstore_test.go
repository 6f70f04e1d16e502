package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

func TestJSONStore_PositionLifecycle(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "oracle.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	ctx := context.Background()

	pos := models.NewPosition("p1", "SPY260117C00450000", models.IVMeanReversion, models.PositionShort, 4, decimal.NewFromFloat(4.50))
	if err := s.InsertPosition(ctx, pos); err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	open, err := s.OpenPositions(ctx)
	if err != nil || len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d, err=%v", len(open), err)
	}

	if err := s.UpdatePositionMarks(ctx, "p1", decimal.NewFromFloat(3.0), decimal.NewFromFloat(60)); err != nil {
		t.Fatalf("UpdatePositionMarks: %v", err)
	}

	if err := s.ClosePosition(ctx, "p1", models.ExitProfitTarget, time.Now().UTC(), decimal.NewFromFloat(60)); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	got, err := s.GetPosition(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if !got.IsClosed() {
		t.Fatalf("expected closed position")
	}

	// Reopen the store from disk to verify durability.
	s2, err := NewJSONStore(filepath.Join(dir, "oracle.json"))
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	reread, err := s2.GetPosition(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPosition after reopen: %v", err)
	}
	if !reread.IsClosed() {
		t.Fatalf("expected closed position to survive reload")
	}
}

func TestJSONStore_ClonedPositionsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "oracle.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	ctx := context.Background()
	pos := models.NewPosition("p1", "SPY", models.IVMeanReversion, models.PositionShort, 1, decimal.NewFromFloat(1))
	_ = s.InsertPosition(ctx, pos)

	a, _ := s.GetPosition(ctx, "p1")
	b, _ := s.GetPosition(ctx, "p1")
	a.CurrentPrice = decimal.NewFromFloat(999)
	if b.CurrentPrice.Equal(decimal.NewFromFloat(999)) {
		t.Fatalf("expected independent clones, mutation leaked")
	}
}

func TestJSONStore_IVHistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "oracle.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 25; i++ {
		if err := s.RecordIV(ctx, "SPY", now.AddDate(0, 0, -i), 0.3+float64(i)*0.001); err != nil {
			t.Fatalf("RecordIV: %v", err)
		}
	}
	ivs, err := s.DailyIVs(ctx, "SPY", now.AddDate(0, 0, -90), now)
	if err != nil {
		t.Fatalf("DailyIVs: %v", err)
	}
	if len(ivs) != 25 {
		t.Fatalf("expected 25 samples, got %d", len(ivs))
	}
}

func TestJSONStore_PortfolioAtomicUpdate(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "oracle.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	ctx := context.Background()
	got, err := s.UpdatePortfolio(ctx, func(p models.Portfolio) models.Portfolio {
		p.Balance = decimal.NewFromInt(100000)
		p.ConsecutiveLosses++
		return p
	})
	if err != nil {
		t.Fatalf("UpdatePortfolio: %v", err)
	}
	if got.ConsecutiveLosses != 1 {
		t.Fatalf("expected consecutive losses 1, got %d", got.ConsecutiveLosses)
	}
}
