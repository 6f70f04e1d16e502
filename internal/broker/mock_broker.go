package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

// MockBroker is a test double implementing Broker, keeping a scripted
// sequence of responses and a call log for assertions.
type MockBroker struct {
	Chain       []models.OptionTick
	Quotes      map[string]models.OptionTick
	Acct        Account
	PlaceErr    error
	PlaceAck    OrderAck
	PollResults map[string]OrderStatus
	TickSize    decimal.Decimal

	// PlaceErrBySymbol and PollBySymbol let multi-leg tests script a
	// distinct outcome per order symbol; when a symbol has no entry the
	// shared PlaceErr/PollResults/PlaceAck fields above apply instead. The
	// mock's order ID always equals the requested symbol, so PollOrder can
	// look a leg's scripted status up directly.
	PlaceErrBySymbol map[string]error
	PollBySymbol     map[string]OrderStatus

	Calls []string
}

// NewMockBroker constructs a MockBroker defaulting to paper-trading true and
// a penny tick size.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		Quotes:           make(map[string]models.OptionTick),
		Acct:             Account{Balance: decimal.NewFromInt(100000), IsPaperTrading: true},
		PollResults:      make(map[string]OrderStatus),
		PlaceErrBySymbol: make(map[string]error),
		PollBySymbol:     make(map[string]OrderStatus),
		TickSize:         decimal.NewFromFloat(0.01),
	}
}

func (m *MockBroker) GetOptionChain(_ context.Context, _ string, _ time.Time) ([]models.OptionTick, error) {
	m.Calls = append(m.Calls, "GetOptionChain")
	return m.Chain, nil
}

func (m *MockBroker) GetQuote(_ context.Context, symbol string) (models.OptionTick, error) {
	m.Calls = append(m.Calls, "GetQuote")
	return m.Quotes[symbol], nil
}

func (m *MockBroker) GetAccount(_ context.Context) (Account, error) {
	m.Calls = append(m.Calls, "GetAccount")
	return m.Acct, nil
}

func (m *MockBroker) PlaceOrder(_ context.Context, req OrderRequest) (OrderAck, error) {
	m.Calls = append(m.Calls, "PlaceOrder:"+req.Symbol)
	if err, ok := m.PlaceErrBySymbol[req.Symbol]; ok {
		return OrderAck{}, err
	}
	if m.PlaceErr != nil {
		return OrderAck{}, m.PlaceErr
	}
	if m.PlaceAck.ID != "" {
		return m.PlaceAck, nil
	}
	return OrderAck{ID: req.Symbol, Status: OrderNew}, nil
}

func (m *MockBroker) PollOrder(_ context.Context, orderID string) (OrderStatus, error) {
	m.Calls = append(m.Calls, "PollOrder:"+orderID)
	if st, ok := m.PollBySymbol[orderID]; ok {
		return st, nil
	}
	if st, ok := m.PollResults[orderID]; ok {
		return st, nil
	}
	return OrderStatus{State: OrderFilled}, nil
}

func (m *MockBroker) GetTickSize(_ context.Context, _ string) (decimal.Decimal, error) {
	return m.TickSize, nil
}
