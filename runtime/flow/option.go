package flow

import (
	"sync/atomic"

	"github.com/viant/fsmflow/model/types"
)

// Option customises a flow context
type Option func(c *Context)

// WithName sets the name used in logs and diagnostics
func WithName(name string) Option {
	return func(c *Context) {
		c.name = name
	}
}

// WithReactors adds auxiliary objects probed for capability interfaces
func WithReactors(reactors ...any) Option {
	return func(c *Context) {
		c.reactors = append(c.reactors, reactors...)
	}
}

// WithStatusReactor sets the activation observer and admission check
func WithStatusReactor(reactor StatusReactor) Option {
	return func(c *Context) {
		c.statusReactor = reactor
	}
}

// WithStateChangeListener sets the listener notified before transitions and after destroy
func WithStateChangeListener(listener types.StateChangeListener) Option {
	return func(c *Context) {
		c.stateChange = listener
	}
}

// WithSequence sets the counter flow ids are drawn from
func WithSequence(sequence *atomic.Int64) Option {
	return func(c *Context) {
		if sequence != nil {
			c.sequence = sequence
		}
	}
}

// WithTracing enables a tracing span per dispatched event
func WithTracing(enabled bool) Option {
	return func(c *Context) {
		c.tracing = enabled
	}
}

// WithReactorSource adds reactors computed from the context being built; the
// context exposes its id, name and flow at that point.
func WithReactorSource(source func(ctx *Context) []any) Option {
	return func(c *Context) {
		c.reactorSources = append(c.reactorSources, source)
	}
}
