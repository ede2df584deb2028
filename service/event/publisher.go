package event

import (
	"context"
	"sync/atomic"

	"github.com/viant/fsmflow/internal/clock"
	"github.com/viant/fsmflow/service/messaging"
)

// Publisher publishes typed events; events are dropped while nobody listens.
type Publisher[T any] struct {
	queue     messaging.Queue[Event[T]]
	anyQueue  messaging.Queue[Event[any]]
	listening atomic.Bool
	anyActive *atomic.Bool
	dropped   atomic.Int64
}

// NewPublisher creates a publisher over queue
func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{queue: queue}
}

// Publish stamps and queues event for the typed and the catch-all listener
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	event.CreatedAt = clock.Now()
	delivered := false
	if p.anyQueue != nil && p.anyActive != nil && p.anyActive.Load() {
		if err := p.anyQueue.Publish(ctx, &Event[any]{
			Context:   event.Context,
			CreatedAt: event.CreatedAt,
			Metadata:  event.Metadata,
			Data:      event.Data,
		}); err != nil {
			return err
		}
		delivered = true
	}
	if p.listening.Load() {
		return p.queue.Publish(ctx, event)
	}
	if !delivered {
		p.dropped.Add(1)
	}
	return nil
}

// Dropped returns the number of events published without any listener
func (p *Publisher[T]) Dropped() int64 {
	return p.dropped.Load()
}

// Consume blocks for the next event
func (p *Publisher[T]) Consume(ctx context.Context) (*Event[T], error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
