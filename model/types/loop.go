package types

import "time"

// Detachable represents a submitted task that can be cancelled before it runs.
type Detachable interface {
	Detach()
}

// DetachFunc adapts a function to Detachable
type DetachFunc func()

// Detach calls f
func (f DetachFunc) Detach() {
	if f != nil {
		f()
	}
}

// ExecutionLoop represents the place where a flow's logic must run.
type ExecutionLoop interface {
	// InLoop returns true when the calling goroutine belongs to the loop
	InLoop() bool

	// Submit runs task on the loop as soon as possible. A submitted task that is not
	// detached must eventually run, even when the loop shuts down.
	Submit(task func()) Detachable

	// Schedule runs task on the loop after delay
	Schedule(task func(), delay time.Duration) Detachable
}
