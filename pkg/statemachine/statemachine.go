package statemachine

import (
	"context"
	"sync"
)

// State identifies a state by name. Plain strings are the common case.
type State string

// Trigger identifies an event that may cause a transition.
type Trigger string

// Guard evaluates whether a transition should be allowed based on runtime data.
// All guards on a transition must pass.
type Guard func(ctx context.Context, from State, trigger Trigger, data any) bool

// Action runs when a transition fires, before the caller persists the new
// state. Returning an error aborts the transition.
type Action func(ctx context.Context, from, to State, trigger Trigger, data any) error

type transition struct {
	to      State
	guards  []Guard
	actions []Action
}

// Machine is a transition table keyed by (state, trigger). It carries no
// per-entity state and is safe for concurrent use after configuration.
type Machine struct {
	mu          sync.RWMutex
	transitions map[State]map[Trigger]transition
	terminal    map[State]struct{}
}

// New creates an empty machine.
func New() *Machine {
	return &Machine{
		transitions: make(map[State]map[Trigger]transition),
		terminal:    make(map[State]struct{}),
	}
}

// Permit registers a transition from one state to another on a trigger.
// Later registrations for the same (state, trigger) pair overwrite earlier ones.
func (m *Machine) Permit(from State, trigger Trigger, to State, opts ...TransitionOption) *Machine {
	t := transition{to: to}
	for _, opt := range opts {
		opt(&t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transitions[from] == nil {
		m.transitions[from] = make(map[Trigger]transition)
	}
	m.transitions[from][trigger] = t
	return m
}

// MarkTerminal marks a state as terminal. Fire from a terminal state always
// fails with ErrTerminalState, regardless of registered transitions.
func (m *Machine) MarkTerminal(s State) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminal[s] = struct{}{}
	return m
}

// TransitionOption configures a single transition.
type TransitionOption func(*transition)

// WithGuard adds a guard that must pass for the transition to fire.
func WithGuard(g Guard) TransitionOption {
	return func(t *transition) {
		if g != nil {
			t.guards = append(t.guards, g)
		}
	}
}

// WithAction adds an action executed when the transition fires.
func WithAction(a Action) TransitionOption {
	return func(t *transition) {
		if a != nil {
			t.actions = append(t.actions, a)
		}
	}
}

// Fire resolves the transition for (from, trigger), runs guards and actions,
// and returns the target state. The caller persists the result.
func (m *Machine) Fire(ctx context.Context, from State, trigger Trigger, data any) (State, error) {
	m.mu.RLock()
	_, isTerminal := m.terminal[from]
	t, ok := m.transitions[from][trigger]
	m.mu.RUnlock()

	if isTerminal {
		return from, &TransitionError{From: from, Trigger: trigger, Reason: ReasonTerminal}
	}
	if !ok {
		return from, &TransitionError{From: from, Trigger: trigger, Reason: ReasonNotPermitted}
	}

	for _, g := range t.guards {
		if !g(ctx, from, trigger, data) {
			return from, &TransitionError{From: from, Trigger: trigger, Reason: ReasonRejected}
		}
	}

	for _, a := range t.actions {
		if err := a(ctx, from, t.to, trigger, data); err != nil {
			return from, err
		}
	}

	return t.to, nil
}

// CanFire reports whether the trigger would be accepted from the given state.
// Guards are evaluated; actions are not run.
func (m *Machine) CanFire(ctx context.Context, from State, trigger Trigger, data any) bool {
	m.mu.RLock()
	_, isTerminal := m.terminal[from]
	t, ok := m.transitions[from][trigger]
	m.mu.RUnlock()

	if isTerminal || !ok {
		return false
	}
	for _, g := range t.guards {
		if !g(ctx, from, trigger, data) {
			return false
		}
	}
	return true
}
