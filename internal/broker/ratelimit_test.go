package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateLimitedBroker_PassesThroughUnderLimit(t *testing.T) {
	inner := NewMockBroker()
	r := NewRateLimitedBroker(inner, RateLimits{MarketData: 100, Trading: 100})

	_, err := r.GetQuote(context.Background(), "SPY")
	require.NoError(t, err)

	_, err = r.PlaceOrder(context.Background(), OrderRequest{Symbol: "SPY", Quantity: 1})
	require.NoError(t, err)
}

func TestRateLimitedBroker_RejectsOnCanceledContext(t *testing.T) {
	inner := NewMockBroker()
	r := NewRateLimitedBroker(inner, RateLimits{MarketData: 1, Trading: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetQuote(ctx, "SPY")
	require.Error(t, err)
}
