package types

// Eventable represents an event object carrying its own name.
type Eventable interface {
	Event() string
}

// EventName is the plain string form of an Eventable
type EventName string

// Event returns the event name
func (e EventName) Event() string { return string(e) }

// EventUnhandleAware is implemented by events that want to know they were not handled,
// either because the current handler ignored them or because the flow was destroyed.
type EventUnhandleAware interface {
	OnEventUnhandle(event string, args ...any) error
}

// ArgsHandler is implemented by events that need to snapshot args before they are queued
// and release them once they were dispatched or dropped.
type ArgsHandler interface {
	BeforeInvoke(args []any) ([]any, error)
	AfterInvoke(args []any) error
}

// EventReceiver is the producer facing handle of a single flow.
//
// A true return means the event was accepted into the flow mailbox, not that it was handled.
type EventReceiver interface {
	AcceptEvent(event string, args ...any) bool
	AcceptEventable(event Eventable, args ...any) bool
}

// EventEngine creates flows bound to one execution loop.
type EventEngine interface {
	Create(flow any, init EventHandler, reactors ...any) (EventReceiver, error)
	// CreateFrom creates a flow from source
	CreateFrom(source FlowSource, reactors ...any) (EventReceiver, error)
}
