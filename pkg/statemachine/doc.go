// Package statemachine implements a small typed finite state machine.
//
// A Definition holds the transition table and is shared; a Machine holds
// the current state for one tracked object:
//
//	type State string
//	type Event string
//
//	def := statemachine.NewDefinition[State, Event]("pending").
//		Transition("pending", "start", "running").
//		Transition("running", "finish", "done").
//		Terminal("done")
//
//	m := def.Start()
//	if err := m.Fire(ctx, "start"); err != nil { ... }
//
// Restore resumes a machine from a persisted state.
package statemachine
