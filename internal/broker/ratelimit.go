package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tradeoracle/engine/internal/models"
)

// RateLimits caps outbound broker calls per second, split by endpoint
// category since market-data polling and order placement are throttled
// independently by most brokers, enforced here with a token bucket rather
// than just recorded from response headers.
type RateLimits struct {
	MarketData int // GetQuote, GetOptionChain
	Trading    int // PlaceOrder, PollOrder
}

// DefaultRateLimits matches a typical default-tier brokerage allowance.
var DefaultRateLimits = RateLimits{MarketData: 120, Trading: 120}

// RateLimitedBroker decorates a Broker with a per-category token bucket so
// a burst of signal scans or monitor cycles cannot exceed the broker's
// published rate limits.
type RateLimitedBroker struct {
	broker       Broker
	marketData   *rate.Limiter
	trading      *rate.Limiter
}

// NewRateLimitedBroker wraps b with limits requests/second per category,
// each allowing a burst equal to its per-second rate.
func NewRateLimitedBroker(b Broker, limits RateLimits) *RateLimitedBroker {
	return &RateLimitedBroker{
		broker:     b,
		marketData: rate.NewLimiter(rate.Limit(limits.MarketData), limits.MarketData),
		trading:    rate.NewLimiter(rate.Limit(limits.Trading), limits.Trading),
	}
}

func (r *RateLimitedBroker) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]models.OptionTick, error) {
	if err := r.marketData.Wait(ctx); err != nil {
		return nil, err
	}
	return r.broker.GetOptionChain(ctx, underlying, expiration)
}

func (r *RateLimitedBroker) GetQuote(ctx context.Context, symbol string) (models.OptionTick, error) {
	if err := r.marketData.Wait(ctx); err != nil {
		return models.OptionTick{}, err
	}
	return r.broker.GetQuote(ctx, symbol)
}

func (r *RateLimitedBroker) GetAccount(ctx context.Context) (Account, error) {
	if err := r.trading.Wait(ctx); err != nil {
		return Account{}, err
	}
	return r.broker.GetAccount(ctx)
}

func (r *RateLimitedBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := r.trading.Wait(ctx); err != nil {
		return OrderAck{}, err
	}
	return r.broker.PlaceOrder(ctx, req)
}

func (r *RateLimitedBroker) PollOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	if err := r.trading.Wait(ctx); err != nil {
		return OrderStatus{}, err
	}
	return r.broker.PollOrder(ctx, orderID)
}

func (r *RateLimitedBroker) GetTickSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := r.trading.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return r.broker.GetTickSize(ctx, symbol)
}
