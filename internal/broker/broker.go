// Package broker defines the external broker adapter interface consumed by
// the executor and position monitor, plus decorators (circuit breaker,
// request de-duplication, rate limiting) that wrap any Broker
// implementation.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// OrderRequest is the broker-agnostic single-leg order the executor submits.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          models.Side
	Quantity      int
	Type          OrderType
	LimitPrice    decimal.Decimal // ignored for Market orders
}

// OrderAck is the broker's immediate acknowledgement of a placed order.
type OrderAck struct {
	ID     string
	Status OrderState
}

// OrderState is the broker-reported lifecycle state of a single order.
type OrderState string

const (
	OrderNew      OrderState = "new"
	OrderPartial  OrderState = "partial"
	OrderFilled   OrderState = "filled"
	OrderCanceled OrderState = "canceled"
	OrderRejected OrderState = "rejected"
)

// IsTerminal reports whether this state ends polling.
func (s OrderState) IsTerminal() bool {
	return s == OrderFilled || s == OrderCanceled || s == OrderRejected
}

// OrderStatus is the result of polling an in-flight order.
type OrderStatus struct {
	State     OrderState
	FillPrice decimal.Decimal
	FillTime  time.Time
}

// Account is the broker's reported account state, including the
// paper-trading marker that must be rechecked before every order.
type Account struct {
	Balance        decimal.Decimal
	IsPaperTrading bool
}

// Broker is the external adapter consumed by the engine.
// Implementations MUST refuse to construct if the credentials do not carry
// the paper-trading marker, and MUST recheck it on every PlaceOrder call.
type Broker interface {
	GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]models.OptionTick, error)
	GetQuote(ctx context.Context, symbol string) (models.OptionTick, error)
	GetAccount(ctx context.Context) (Account, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	PollOrder(ctx context.Context, orderID string) (OrderStatus, error)
	GetTickSize(ctx context.Context, symbol string) (decimal.Decimal, error)
}
