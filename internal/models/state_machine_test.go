package models

import "testing"

func TestStateMachine_HappyPath(t *testing.T) {
	sm := NewStateMachine()
	if sm.GetCurrentState() != StateIdle {
		t.Fatalf("expected idle, got %s", sm.GetCurrentState())
	}
	steps := []struct {
		to   PositionState
		cond string
	}{
		{StateSubmitted, "order_placed"},
		{StateOpen, "all_legs_filled"},
		{StateMonitoring, "monitor_attached"},
		{StateClosing, "exit_rule_fired"},
		{StateClosed, "close_confirmed"},
	}
	for _, s := range steps {
		if err := sm.Transition(s.to, s.cond); err != nil {
			t.Fatalf("transition to %s failed: %v", s.to, err)
		}
	}
	if !sm.IsTerminal() {
		t.Fatalf("expected terminal state")
	}
}

func TestStateMachine_RejectsUndefinedTransition(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.Transition(StateClosed, "close_confirmed"); err == nil {
		t.Fatalf("expected error transitioning idle -> closed directly")
	}
}

func TestStateMachine_CloseRetryLoop(t *testing.T) {
	sm := NewStateMachineFromState(StateMonitoring)
	if err := sm.Transition(StateClosing, "exit_rule_fired"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sm.Transition(StateMonitoring, "close_retry"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sm.GetCurrentState() != StateMonitoring {
		t.Fatalf("expected retry to return to monitoring")
	}
}

func TestStateMachine_Copy_IsIndependent(t *testing.T) {
	sm := NewStateMachine()
	_ = sm.Transition(StateSubmitted, "order_placed")
	cp := sm.Copy()
	_ = cp.Transition(StateOpen, "all_legs_filled")
	if sm.GetCurrentState() == cp.GetCurrentState() {
		t.Fatalf("expected copy mutation to not affect original")
	}
}
