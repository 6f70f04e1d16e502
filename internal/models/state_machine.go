package models

import (
	"fmt"
	"time"
)

// PositionState is the internal lifecycle state of a Position, richer than
// the externally-exposed Status (OPEN/CLOSED) so that the executor's and
// monitor's ordering guarantees are mechanically checkable.
type PositionState string

const (
	// StateIdle is the pre-submission state; no order has been sent yet.
	StateIdle PositionState = "idle"
	// StateSubmitted means the order(s) were sent to the broker and the
	// executor is waiting for terminal fill status.
	StateSubmitted PositionState = "submitted"
	// StateOpen means every leg filled and the Position record exists.
	StateOpen PositionState = "open"
	// StateMonitoring means the position monitor owns this position and is
	// evaluating strategy-specific exit rules each cycle.
	StateMonitoring PositionState = "monitoring"
	// StateClosing means a closing order is in flight; the per-position
	// logical lock is held so at most one closing attempt runs at a time.
	StateClosing PositionState = "closing"
	// StateClosed is terminal: exit_reason and closed_at are both set.
	StateClosed PositionState = "closed"
	// StateError is a fatal state requiring operator intervention, e.g. an
	// iron condor that could not be fully unwound.
	StateError PositionState = "error"
)

// StateTransition defines one valid (from, to, condition) edge.
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions is the table of every legal lifecycle move.
var ValidTransitions = []StateTransition{
	{StateIdle, StateSubmitted, "order_placed", "order(s) submitted to broker"},
	{StateSubmitted, StateOpen, "all_legs_filled", "every leg reached terminal filled status"},
	{StateSubmitted, StateError, "unwind_failed", "partial fill could not be fully unwound"},
	{StateSubmitted, StateIdle, "unwind_complete", "partial fill was fully unwound, no position created"},
	{StateOpen, StateMonitoring, "monitor_attached", "position handed to the monitor loop"},
	{StateMonitoring, StateClosing, "exit_rule_fired", "a strategy exit rule matched"},
	{StateClosing, StateClosed, "close_confirmed", "closing order(s) confirmed filled"},
	{StateClosing, StateMonitoring, "close_retry", "closing order failed, retry next cycle"},
	{StateClosing, StateError, "close_failed_unrecoverable", "closing could not be completed or unwound"},
	{StateError, StateClosed, "operator_force_close", "operator forced a terminal close"},
}

var transitionLookup map[PositionState]map[PositionState]map[string]bool

func init() {
	transitionLookup = make(map[PositionState]map[PositionState]map[string]bool)
	for _, t := range ValidTransitions {
		if transitionLookup[t.From] == nil {
			transitionLookup[t.From] = make(map[PositionState]map[string]bool)
		}
		if transitionLookup[t.From][t.To] == nil {
			transitionLookup[t.From][t.To] = make(map[string]bool)
		}
		transitionLookup[t.From][t.To][t.Condition] = true
	}
}

// StateMachine manages a single Position's lifecycle transitions.
type StateMachine struct {
	currentState    PositionState
	previousState   PositionState
	transitionTime  time.Time
	transitionCount map[PositionState]int
	closeAttempts   int
	maxCloseRetries int
}

// NewStateMachine creates a state machine in the Idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateIdle,
		previousState:   StateIdle,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[PositionState]int),
		maxCloseRetries: 10,
	}
}

// NewStateMachineFromState creates a state machine already in the given
// state, for positions rehydrated from the store.
func NewStateMachineFromState(state PositionState) *StateMachine {
	sm := NewStateMachine()
	sm.currentState = state
	sm.previousState = state
	sm.transitionCount[state] = 1
	return sm
}

// GetCurrentState returns the current lifecycle state.
func (sm *StateMachine) GetCurrentState() PositionState { return sm.currentState }

// GetPreviousState returns the state before the last transition.
func (sm *StateMachine) GetPreviousState() PositionState { return sm.previousState }

// IsValidTransition reports whether (to, condition) is a legal move from the
// current state, subject to the close-retry limit.
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	if !sm.isTransitionDefined(to, condition) {
		return fmt.Errorf("invalid transition from %s to %s with condition %q", sm.currentState, to, condition)
	}
	if to == StateClosing && sm.transitionCount[StateClosing] >= sm.maxCloseRetries {
		return fmt.Errorf("maximum close attempts (%d) exceeded", sm.maxCloseRetries)
	}
	return nil
}

func (sm *StateMachine) isTransitionDefined(to PositionState, condition string) bool {
	if toMap, ok := transitionLookup[sm.currentState]; ok {
		if condMap, ok := toMap[to]; ok {
			_, ok := condMap[condition]
			return ok
		}
	}
	return false
}

// Transition moves to a new state, recording the time and bumping the
// per-state transition counter used for the monitor's "never overlap, never
// leave half-closed" guarantee.
func (sm *StateMachine) Transition(to PositionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	if to == StateClosing {
		sm.closeAttempts++
	}
	return nil
}

// GetTransitionCount returns how many times the machine has entered state.
func (sm *StateMachine) GetTransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}

// IsTerminal reports whether the current state is Closed or Error.
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState == StateClosed || sm.currentState == StateError
}

// Copy creates a deep copy, used by the store when cloning positions on
// read/write to prevent mutable state leakage across callers.
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}
	n := &StateMachine{
		currentState:    sm.currentState,
		previousState:   sm.previousState,
		transitionTime:  sm.transitionTime,
		closeAttempts:   sm.closeAttempts,
		maxCloseRetries: sm.maxCloseRetries,
	}
	n.transitionCount = make(map[PositionState]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		n.transitionCount[k] = v
	}
	return n
}
