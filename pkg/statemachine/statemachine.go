package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Guard decides whether a transition may proceed.
type Guard[S, E ~string] func(ctx context.Context, from S, event E) bool

// Action runs before the state changes. An error aborts the transition.
type Action[S, E ~string] func(ctx context.Context, from, to S, event E) error

type transition[S, E ~string] struct {
	to      S
	guards  []Guard[S, E]
	actions []Action[S, E]
}

// Definition is an immutable transition table. Build it once and create
// a Machine per tracked object with Start or Restore.
type Definition[S, E ~string] struct {
	initial     S
	transitions map[S]map[E][]transition[S, E]
	terminal    map[S]bool
}

// TransitionOption configures a single transition.
type TransitionOption[S, E ~string] func(*transition[S, E])

// WithGuard adds a guard; all guards must pass.
func WithGuard[S, E ~string](g Guard[S, E]) TransitionOption[S, E] {
	return func(t *transition[S, E]) { t.guards = append(t.guards, g) }
}

// WithAction adds an action executed in registration order.
func WithAction[S, E ~string](a Action[S, E]) TransitionOption[S, E] {
	return func(t *transition[S, E]) { t.actions = append(t.actions, a) }
}

// NewDefinition creates an empty table with the given initial state.
func NewDefinition[S, E ~string](initial S) *Definition[S, E] {
	return &Definition[S, E]{
		initial:     initial,
		transitions: make(map[S]map[E][]transition[S, E]),
		terminal:    make(map[S]bool),
	}
}

// Transition registers from --event--> to. Several transitions may share
// (from, event); the first whose guards pass is taken.
func (d *Definition[S, E]) Transition(from S, event E, to S, opts ...TransitionOption[S, E]) *Definition[S, E] {
	t := transition[S, E]{to: to}
	for _, opt := range opts {
		opt(&t)
	}
	if d.transitions[from] == nil {
		d.transitions[from] = make(map[E][]transition[S, E])
	}
	d.transitions[from][event] = append(d.transitions[from][event], t)
	return d
}

// Terminal marks states that accept no further events.
func (d *Definition[S, E]) Terminal(states ...S) *Definition[S, E] {
	for _, s := range states {
		d.terminal[s] = true
	}
	return d
}

// IsTerminal reports whether s was marked terminal.
func (d *Definition[S, E]) IsTerminal(s S) bool {
	return d.terminal[s]
}

// Start returns a machine in the initial state.
func (d *Definition[S, E]) Start() *Machine[S, E] {
	return &Machine[S, E]{def: d, current: d.initial}
}

// Restore returns a machine in a previously persisted state.
func (d *Definition[S, E]) Restore(state S) *Machine[S, E] {
	return &Machine[S, E]{def: d, current: state}
}

// Machine tracks the current state of one object.
type Machine[S, E ~string] struct {
	mu      sync.RWMutex
	def     *Definition[S, E]
	current S
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event. Returns *NoTransitionError when the table has no
// matching transition and *RejectedError when every candidate's guards fail.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.find(ctx, event)
	if err != nil {
		return err
	}

	for _, action := range t.actions {
		if err := action(ctx, m.current, t.to, event); err != nil {
			return fmt.Errorf("statemachine: action for %q failed: %w", event, err)
		}
	}
	m.current = t.to
	return nil
}

// CanFire reports whether Fire would find an allowed transition.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.find(ctx, event)
	return err == nil
}

// find must be called with the lock held.
func (m *Machine[S, E]) find(ctx context.Context, event E) (transition[S, E], error) {
	candidates := m.def.transitions[m.current][event]
	if len(candidates) == 0 || m.def.terminal[m.current] {
		return transition[S, E]{}, &NoTransitionError{State: string(m.current), Event: string(event)}
	}

	for _, t := range candidates {
		if guardsPass(ctx, t.guards, m.current, event) {
			return t, nil
		}
	}
	return transition[S, E]{}, &RejectedError{State: string(m.current), Event: string(event)}
}

func guardsPass[S, E ~string](ctx context.Context, guards []Guard[S, E], from S, event E) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event) {
			return false
		}
	}
	return true
}
