// Package models defines the core data entities shared by every component of
// the engine: ticks, signals, approvals, positions, trades and the portfolio
// snapshot.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionRight identifies whether a contract is a call or a put.
type OptionRight string

const (
	Call OptionRight = "call"
	Put  OptionRight = "put"
)

// Strategy identifies which of the three signal generators produced or owns
// a Signal/Position.
type Strategy string

const (
	IVMeanReversion Strategy = "IV_MEAN_REVERSION"
	IronCondor      Strategy = "IRON_CONDOR"
	MomentumScalp   Strategy = "MOMENTUM_SCALPING"
)

// Action identifies what a Signal is asking the executor to do.
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionOpenSpread Action = "OPEN_SPREAD"
	ActionClose      Action = "CLOSE"
)

// Side identifies the direction of a single leg order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionType classifies how a Position's P&L is computed.
type PositionType string

const (
	PositionLong   PositionType = "LONG"
	PositionShort  PositionType = "SHORT"
	PositionSpread PositionType = "SPREAD"
)

// PositionStatus is the coarse open/closed status exposed externally; the
// richer internal lifecycle is tracked by StateMachine.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// ExitReason enumerates the closed reasons a Position may carry.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "PROFIT_TARGET"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTimeDecay    ExitReason = "TIME_DECAY"
	ExitBreach       ExitReason = "BREACH"
	ExitForceClose   ExitReason = "FORCE_CLOSE"
	ExitManual       ExitReason = "MANUAL"
)

// OptionTick is an immutable snapshot quote for one option contract.
type OptionTick struct {
	Symbol          string // OCC-21
	Underlying      string
	UnderlyingPrice decimal.Decimal
	Strike          decimal.Decimal
	Expiration      time.Time
	Right           OptionRight
	Bid             decimal.Decimal
	Ask             decimal.Decimal
	IV              float64
	Delta           float64
	Gamma           float64
	Theta           float64
	Vega            float64
	Timestamp       time.Time
}

// Mid returns (bid+ask)/2.
func (t OptionTick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Validate checks the data invariants for an OptionTick.
func (t OptionTick) Validate() error {
	if t.Bid.GreaterThan(t.Ask) {
		return NewInvariantError("option tick", "bid > ask")
	}
	if t.IV <= 0 || t.IV > 5.0 {
		return NewInvariantError("option tick", "iv out of (0,5] range")
	}
	if t.Delta < -1 || t.Delta > 1 {
		return NewInvariantError("option tick", "|delta| > 1")
	}
	if t.Right == Call && t.Delta < 0 {
		return NewInvariantError("option tick", "call with negative delta")
	}
	if t.Right == Put && t.Delta > 0 {
		return NewInvariantError("option tick", "put with positive delta")
	}
	return nil
}

// Signal is the output of a signal generator.
type Signal struct {
	Symbol     string
	Strategy   Strategy
	Action     Action
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Reasoning  string
	Confidence float64
	Timestamp  time.Time
}

// Validate checks the ordering invariants for the signal's action.
func (s Signal) Validate() error {
	switch s.Action {
	case ActionBuy:
		if !(s.StopLoss.LessThan(s.EntryPrice) && s.EntryPrice.LessThan(s.TakeProfit)) {
			return NewInvariantError("signal", "BUY requires stop_loss < entry_price < take_profit")
		}
	case ActionSell:
		if !(s.StopLoss.GreaterThan(s.EntryPrice) && s.EntryPrice.GreaterThan(s.TakeProfit)) {
			return NewInvariantError("signal", "SELL requires take_profit < entry_price < stop_loss")
		}
	case ActionOpenSpread:
		if !s.EntryPrice.IsPositive() {
			return NewInvariantError("signal", "OPEN_SPREAD requires a positive net credit entry_price")
		}
	}
	return nil
}

// RiskApproval is the risk gate's decision for a candidate Signal.
type RiskApproval struct {
	Approved      bool
	SizedQuantity int
	RiskAmount    decimal.Decimal
	MaxLoss       decimal.Decimal
	Reason        string
}

// Portfolio is the current account snapshot consumed by the risk gate.
type Portfolio struct {
	Balance           decimal.Decimal
	DailyPnL          decimal.Decimal
	ConsecutiveLosses int
	ActivePositions   int
	WinRate           float64
	Delta             float64
	Theta             float64
}

// Leg is one of the (up to) four legs owned by a spread Position.
type Leg struct {
	Symbol     string
	Side       Side
	Right      OptionRight
	Strike     decimal.Decimal
	Quantity   int
	EntryPrice decimal.Decimal
}

// Position is a live or historical holding.
type Position struct {
	ID                   string
	RepresentativeSymbol string
	Strategy             Strategy
	PositionType         PositionType
	Quantity             int
	EntryPrice           decimal.Decimal
	CurrentPrice         decimal.Decimal
	UnrealizedPnL        decimal.Decimal
	OpenedAt             time.Time
	ClosedAt             time.Time
	Status               PositionStatus
	ExitReason           ExitReason

	// Spread-only fields.
	Legs        []Leg
	NetCredit   decimal.Decimal
	MaxLoss     decimal.Decimal
	SpreadWidth decimal.Decimal

	EntryTradeID string
	ExitTradeID  string

	CommissionPaid decimal.Decimal

	// Tier1Closed records whether a momentum scalp's first profit tier
	// (T1) has already been taken, so the monitor does not re-trigger a
	// partial close on the remaining half every cycle.
	Tier1Closed bool

	sm *StateMachine
}

// NewPosition constructs a single-leg Position in the Idle lifecycle state.
func NewPosition(id, repSymbol string, strategy Strategy, posType PositionType, quantity int, entryPrice decimal.Decimal) *Position {
	return &Position{
		ID:                   id,
		RepresentativeSymbol: repSymbol,
		Strategy:             strategy,
		PositionType:         posType,
		Quantity:             quantity,
		EntryPrice:           entryPrice,
		CurrentPrice:         entryPrice,
		Status:               StatusOpen,
		sm:                   NewStateMachine(),
	}
}

// NewSpreadPosition constructs an iron-condor Position from its four legs.
func NewSpreadPosition(id, underlying string, quantity int, legs []Leg, netCredit, maxLoss, spreadWidth decimal.Decimal) (*Position, error) {
	if len(legs) != 4 {
		return nil, NewInvariantError("position", "spread requires exactly 4 legs")
	}
	var calls, puts, buys, sells int
	for _, l := range legs {
		if l.Right == Call {
			calls++
		} else {
			puts++
		}
		if l.Side == SideBuy {
			buys++
		} else {
			sells++
		}
	}
	if calls != 2 || puts != 2 {
		return nil, NewInvariantError("position", "spread requires two calls and two puts")
	}
	if !netCredit.IsPositive() {
		return nil, NewInvariantError("position", "spread net_credit must be positive")
	}
	p := &Position{
		ID:                   id,
		RepresentativeSymbol: "iron_condor_" + underlying,
		Strategy:             IronCondor,
		PositionType:         PositionSpread,
		Quantity:             quantity,
		EntryPrice:           netCredit,
		CurrentPrice:         netCredit,
		Status:               StatusOpen,
		Legs:                 legs,
		NetCredit:            netCredit,
		MaxLoss:              maxLoss,
		SpreadWidth:          spreadWidth,
		sm:                   NewStateMachine(),
	}
	return p, nil
}

// StateMachine returns the position's lifecycle state machine, lazily
// constructing one for Positions deserialized without it.
func (p *Position) StateMachine() *StateMachine {
	if p.sm == nil {
		p.sm = NewStateMachineFromState(StateOpen)
	}
	return p.sm
}

// SetStateMachine attaches a state machine to the position, used by store
// adapters rehydrating a Position from persistence.
func (p *Position) SetStateMachine(sm *StateMachine) {
	p.sm = sm
}

// Close transitions the position to CLOSED, recording the reason and time.
// It does not compute P&L; the caller (executor) must set CurrentPrice /
// UnrealizedPnL beforehand.
func (p *Position) Close(reason ExitReason, at time.Time) {
	p.Status = StatusClosed
	p.ExitReason = reason
	p.ClosedAt = at
}

// IsClosed satisfies invariant 3(a): status = CLOSED iff closed_at and
// exit_reason are both set.
func (p *Position) IsClosed() bool {
	return p.Status == StatusClosed && !p.ClosedAt.IsZero() && p.ExitReason != ""
}

// Trade is an execution record.
type Trade struct {
	ID         string
	Timestamp  time.Time
	Symbol     string
	Strategy   Strategy
	Action     Action
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal // zero value means "not yet closed"
	HasExit    bool
	Quantity   int
	PnL        decimal.Decimal
	Commission decimal.Decimal
	Slippage   decimal.Decimal
	Reasoning  string
	PositionID string
	Failed     bool
}

// CommissionForLeg returns 0.65 per contract, per leg, accumulated by the caller.
func CommissionForLeg(quantity int) decimal.Decimal {
	return decimal.NewFromFloat(0.65).Mul(decimal.NewFromInt(int64(quantity)))
}
