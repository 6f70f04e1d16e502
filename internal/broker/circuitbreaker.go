package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/tradeoracle/engine/internal/models"
)

// CircuitBreakerSettings configures the gobreaker.CircuitBreaker wrapping a
// Broker. MinRequests/FailureRatio gate when the breaker considers tripping;
// see github.com/sony/gobreaker's ReadyToTrip semantics.
type CircuitBreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings trips once at least 5 requests have been
// seen in the current 60-second counting window and at least 60% of them
// failed; after 30 seconds open it goes half-open and lets one probe through.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  1,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// CircuitBreakerBroker decorates a Broker so that a failing downstream
// broker opens the circuit rather than being hammered with further calls;
// while the breaker is open (or half-open with its probe in flight) every
// method returns an error matching models.ErrBrokerTransient.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBroker wraps b with DefaultCircuitBreakerSettings.
func NewCircuitBreakerBroker(b Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(b, DefaultCircuitBreakerSettings)
}

// NewCircuitBreakerBrokerWithSettings wraps b with custom settings.
func NewCircuitBreakerBrokerWithSettings(b Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	st := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
	}
	return &CircuitBreakerBroker{
		broker:  b,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// State returns the breaker's current state (Closed/Open/HalfOpen).
func (c *CircuitBreakerBroker) State() gobreaker.State {
	return c.breaker.State()
}

func (c *CircuitBreakerBroker) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]models.OptionTick, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.GetOptionChain(ctx, underlying, expiration)
	})
	if err != nil {
		return nil, wrapBreakerErr(err)
	}
	return result.([]models.OptionTick), nil
}

func (c *CircuitBreakerBroker) GetQuote(ctx context.Context, symbol string) (models.OptionTick, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.GetQuote(ctx, symbol)
	})
	if err != nil {
		return models.OptionTick{}, wrapBreakerErr(err)
	}
	return result.(models.OptionTick), nil
}

func (c *CircuitBreakerBroker) GetAccount(ctx context.Context) (Account, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.GetAccount(ctx)
	})
	if err != nil {
		return Account{}, wrapBreakerErr(err)
	}
	return result.(Account), nil
}

func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.PlaceOrder(ctx, req)
	})
	if err != nil {
		return OrderAck{}, wrapBreakerErr(err)
	}
	return result.(OrderAck), nil
}

func (c *CircuitBreakerBroker) PollOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.PollOrder(ctx, orderID)
	})
	if err != nil {
		return OrderStatus{}, wrapBreakerErr(err)
	}
	return result.(OrderStatus), nil
}

func (c *CircuitBreakerBroker) GetTickSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.GetTickSize(ctx, symbol)
	})
	if err != nil {
		return decimal.Zero, wrapBreakerErr(err)
	}
	return result.(decimal.Decimal), nil
}

// wrapBreakerErr maps gobreaker.ErrOpenState/ErrTooManyRequests to the
// engine's BrokerTransient error class, since an open breaker is by
// definition a retry-eligible condition rather than a terminal rejection.
func wrapBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return models.ErrBrokerTransient
	}
	return err
}
