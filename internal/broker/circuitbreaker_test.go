package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradeoracle/engine/internal/models"
)

type alwaysFailBroker struct{ MockBroker }

func (a *alwaysFailBroker) GetAccount(_ context.Context) (Account, error) {
	return Account{}, errors.New("boom")
}

func TestCircuitBreakerBroker_OpensAfterFailures(t *testing.T) {
	inner := &alwaysFailBroker{}
	settings := CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
	cb := NewCircuitBreakerBrokerWithSettings(inner, settings)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = cb.GetAccount(context.Background())
	}
	if lastErr == nil {
		t.Fatalf("expected an error after repeated failures")
	}
	if !errors.Is(lastErr, models.ErrBrokerTransient) && lastErr.Error() != "boom" {
		t.Fatalf("unexpected terminal error: %v", lastErr)
	}
}

func TestCircuitBreakerBroker_PassesThroughOnSuccess(t *testing.T) {
	inner := NewMockBroker()
	cb := NewCircuitBreakerBroker(inner)
	acct, err := cb.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acct.IsPaperTrading {
		t.Fatalf("expected paper trading account to pass through")
	}
}
