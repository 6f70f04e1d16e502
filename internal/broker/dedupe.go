package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/tradeoracle/engine/internal/models"
)

// DedupingBroker decorates a Broker so that concurrent identical
// GetOptionChain/GetQuote calls collapse into a single downstream request:
// the three signal generators can all scan the same underlying in the same
// scan cycle, and each would otherwise re-fetch the same chain
// independently.
type DedupingBroker struct {
	broker Broker
	group  singleflight.Group
}

// NewDedupingBroker wraps b.
func NewDedupingBroker(b Broker) *DedupingBroker {
	return &DedupingBroker{broker: b}
}

func (d *DedupingBroker) GetOptionChain(ctx context.Context, underlying string, expiration time.Time) ([]models.OptionTick, error) {
	key := fmt.Sprintf("chain:%s:%s", underlying, expiration.Format(time.RFC3339))
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.broker.GetOptionChain(ctx, underlying, expiration)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.OptionTick), nil
}

func (d *DedupingBroker) GetQuote(ctx context.Context, symbol string) (models.OptionTick, error) {
	key := "quote:" + symbol
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.broker.GetQuote(ctx, symbol)
	})
	if err != nil {
		return models.OptionTick{}, err
	}
	return v.(models.OptionTick), nil
}

func (d *DedupingBroker) GetAccount(ctx context.Context) (Account, error) {
	return d.broker.GetAccount(ctx)
}

func (d *DedupingBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	return d.broker.PlaceOrder(ctx, req)
}

func (d *DedupingBroker) PollOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	return d.broker.PollOrder(ctx, orderID)
}

func (d *DedupingBroker) GetTickSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return d.broker.GetTickSize(ctx, symbol)
}
