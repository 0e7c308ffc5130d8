package state

import (
	"errors"
	"sync"
)

// Phase is one lifecycle state of a battle.
type Phase string

const (
	PhasePendingAccept Phase = "pending-accept"
	PhaseActive        Phase = "active"
	PhaseEnded         Phase = "ended"
)

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	Current() Phase
	AddTransition(from, to Phase, condition func() bool) error
	OnTransition(fn func(from, to Phase))
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only moves along registered transitions.
type BaseStateMachine struct {
	current     Phase
	transitions map[Phase]map[Phase]func() bool // from -> to -> condition
	listeners   []func(from, to Phase)
	mutex       sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		current:     initial,
		transitions: make(map[Phase]map[Phase]func() bool),
	}
}

// NewBattleLifecycle returns pending-accept -> active -> ended, where a
// pending battle may also end directly (declined, abandoned, expired).
func NewBattleLifecycle() *BaseStateMachine {
	sm := NewBaseStateMachine(PhasePendingAccept)
	_ = sm.AddTransition(PhasePendingAccept, PhaseActive, nil)
	_ = sm.AddTransition(PhasePendingAccept, PhaseEnded, nil)
	_ = sm.AddTransition(PhaseActive, PhaseEnded, nil)
	return sm
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()

	from := sm.current
	conditions, exists := sm.transitions[from]
	if !exists {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[to]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	sm.current = to
	listeners := append([]func(from, to Phase){}, sm.listeners...)
	sm.mutex.Unlock()

	for _, fn := range listeners {
		fn(from, to)
	}
	return nil
}

func (sm *BaseStateMachine) Current() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.current
}

func (sm *BaseStateMachine) AddTransition(from, to Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}

// OnTransition registers fn to run after every successful transition.
func (sm *BaseStateMachine) OnTransition(fn func(from, to Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.listeners = append(sm.listeners, fn)
}
