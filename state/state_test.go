package state

import (
	"testing"
)

func TestStateMachine_InitialState(t *testing.T) {
	sm := NewBaseStateMachine("initial")

	if sm.Current() != "initial" {
		t.Errorf("Expected current state to be initial, got %s", sm.Current())
	}
}

func TestStateMachine_UnregisteredTransitionIsRejected(t *testing.T) {
	sm := NewBaseStateMachine("A")

	if err := sm.ChangeState("B"); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.Current() != "A" {
		t.Errorf("Expected current state to remain A, got %s", sm.Current())
	}
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	sm := NewBaseStateMachine("A")

	if err := sm.AddTransition("A", "B", func() bool { return true }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}
	if err := sm.AddTransition("B", "C", func() bool { return false }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	var seen []Phase
	sm.OnTransition(func(from, to Phase) {
		seen = append(seen, from, to)
	})

	// --- Test valid transition ---
	if err := sm.ChangeState("B"); err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}
	if sm.Current() != "B" {
		t.Errorf("Expected current state to be B, but got %s", sm.Current())
	}

	// --- Test blocked transition ---
	if err := sm.ChangeState("C"); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.Current() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.Current())
	}

	if len(seen) != 2 || seen[0] != "A" || seen[1] != "B" {
		t.Errorf("Expected a single A->B notification, got %v", seen)
	}
}

func TestBattleLifecycle(t *testing.T) {
	sm := NewBattleLifecycle()
	if sm.Current() != PhasePendingAccept {
		t.Fatalf("Expected %s, got %s", PhasePendingAccept, sm.Current())
	}
	if err := sm.ChangeState(PhaseActive); err != nil {
		t.Fatalf("pending-accept -> active should be allowed: %v", err)
	}
	if err := sm.ChangeState(PhaseActive); err != ErrTransitionNotAllowed {
		t.Errorf("active -> active should be rejected, got %v", err)
	}
	if err := sm.ChangeState(PhaseEnded); err != nil {
		t.Fatalf("active -> ended should be allowed: %v", err)
	}
	if err := sm.ChangeState(PhaseActive); err != ErrTransitionNotAllowed {
		t.Errorf("ended is terminal, got %v", err)
	}
}

func TestBattleLifecycle_PendingCanEnd(t *testing.T) {
	sm := NewBattleLifecycle()
	if err := sm.ChangeState(PhaseEnded); err != nil {
		t.Fatalf("pending-accept -> ended should be allowed: %v", err)
	}
}
