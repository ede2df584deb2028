package container

import (
	"sync/atomic"

	"github.com/viant/fsmflow/policy"
	"github.com/viant/fsmflow/service/event"
)

// Option customises a container
type Option func(c *Container)

// WithPolicy sets the admission policy checked on every flow first activation
func WithPolicy(p *policy.Policy) Option {
	return func(c *Container) {
		c.policy = p
	}
}

// WithEventService publishes flow lifecycle records to srv
func WithEventService(srv *event.Service) Option {
	return func(c *Container) {
		if srv != nil {
			c.publisher = event.PublisherOf[event.FlowRecord](srv)
		}
	}
}

// WithTracing enables a tracing span per dispatched event
func WithTracing(enabled bool) Option {
	return func(c *Container) {
		c.tracing = enabled
	}
}

// WithSequence sets the counter flow ids are drawn from
func WithSequence(sequence *atomic.Int64) Option {
	return func(c *Container) {
		c.sequence = sequence
	}
}
