package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by queue operations after Close
var ErrClosed = errors.New("messaging: queue closed")

// Queue represents a FIFO of payloads shared by producers and consumers
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available, ctx is done or the queue is closed
	Consume(ctx context.Context) (Message[T], error)

	// Close releases blocked consumers; pending messages are discarded
	Close() error
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// ID returns the message identifier
	ID() string

	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}
