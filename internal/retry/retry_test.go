package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradeoracle/engine/internal/models"
)

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialBackoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}
	attempts := 0
	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return models.ErrBrokerTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_DoesNotRetryRejected(t *testing.T) {
	cfg := DefaultConfig
	cfg.InitialBackoff = time.Millisecond
	attempts := 0
	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return models.ErrBrokerRejected
	})
	if !errors.Is(err, models.ErrBrokerRejected) {
		t.Fatalf("expected ErrBrokerRejected, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a rejected order, got %d", attempts)
	}
}

func TestDo_ExhaustsRetryBudget(t *testing.T) {
	cfg := Config{MaxRetries: 2, InitialBackoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}
	attempts := 0
	err := Do(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return models.ErrBrokerTransient
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 attempts, got %d", attempts)
	}
}
