package types

// EventHandler represents a flow state: a named table mapping event names to transitions.
type EventHandler interface {
	// Name returns the state name
	Name() string

	// Process dispatches event with args and reports the successor state.
	Process(event string, args []any) Result
}

// Result represents the outcome of dispatching a single event.
//
// A nil Next is the terminal signal: the owning flow is destroyed whether or not
// the event was handled. Err is set when the transition function failed; in that
// case Next is the handler that was processing the event.
type Result struct {
	Next    EventHandler
	Handled bool
	Err     error
}

// IsTerminal returns true when the result carries no successor state
func (r Result) IsTerminal() bool {
	return r.Next == nil
}

// IsFault returns true when the transition function failed
func (r Result) IsFault() bool {
	return r.Err != nil
}

// Continue returns a handled result moving the flow to next
func Continue(next EventHandler) Result {
	return Result{Next: next, Handled: true}
}

// Terminate returns a handled result ending the flow
func Terminate() Result {
	return Result{Handled: true}
}

// Unhandled returns a result keeping the flow on current
func Unhandled(current EventHandler) Result {
	return Result{Next: current}
}

// Fault returns a result keeping the flow on current and carrying err
func Fault(current EventHandler, err error) Result {
	return Result{Next: current, Err: err}
}

type sentinel string

func (s sentinel) Name() string { return string(s) }

func (s sentinel) Process(string, []any) Result { return Unhandled(s) }

// CurrentState is returned by a transition to keep the current handler without
// firing any transition notification. It is always compared by identity.
var CurrentState EventHandler = sentinel("CURRENT_STATE")

// IsCurrentState returns true if handler is the CurrentState sentinel
func IsCurrentState(handler EventHandler) bool {
	return handler == CurrentState
}
