package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/viant/fsmflow/internal/clock"
	"github.com/viant/fsmflow/internal/idgen"
	"github.com/viant/fsmflow/service/messaging"
)

// ErrProcessed is returned when a message is acked or nacked twice
var ErrProcessed = errors.New("memory: message already processed")

// Config for memory queue implementation
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
	DeadLetter bool
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		DeadLetter: true,
	}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
	createdAt  time.Time
	lastErr    error
}

// ID returns the message id
func (m *Message[T]) ID() string {
	return m.id
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Retries returns how many times the message was redelivered
func (m *Message[T]) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// Err returns the error of the last Nack
func (m *Message[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	return nil
}

// Nack marks a failed delivery; the message is redelivered after RetryDelay until
// MaxRetries is exceeded, then moved to the dead letter list when enabled.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.lastErr = err
	if m.retryCount < m.queue.config.MaxRetries {
		retry := &Message[T]{
			id:         m.id,
			payload:    m.payload,
			queue:      m.queue,
			retryCount: m.retryCount + 1,
			lastErr:    err,
		}
		time.AfterFunc(m.queue.config.RetryDelay, func() {
			retry.createdAt = clock.Now()
			m.queue.enqueue(retry)
		})
		return nil
	}
	if m.queue.config.DeadLetter {
		m.queue.mu.Lock()
		m.queue.dlq = append(m.queue.dlq, m)
		m.queue.mu.Unlock()
	}
	return nil
}

// Queue implements an unbounded in-memory messaging.Queue; Publish never blocks.
type Queue[T any] struct {
	config   Config
	mu       sync.Mutex
	messages []*Message[T]
	dlq      []*Message[T]
	notify   chan struct{}
	done     chan struct{}
	closed   bool
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Queue[T]{
		config: config,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Publish adds a new item to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{
		id:        idgen.New(),
		payload:   *t,
		queue:     q,
		createdAt: clock.Now(),
	}
	if !q.enqueue(msg) {
		return messaging.ErrClosed
	}
	return nil
}

func (q *Queue[T]) enqueue(msg *Message[T]) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.messages = append(q.messages, msg)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue[T]) dequeue() (*Message[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, false
	}
	msg := q.messages[0]
	q.messages[0] = nil
	q.messages = q.messages[1:]
	if len(q.messages) > 0 {
		// wake the next consumer
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return msg, true
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		if msg, ok := q.dequeue(); ok {
			return msg, nil
		}
		select {
		case <-q.notify:
		case <-q.done:
			return nil, messaging.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops the queue; blocked consumers return messaging.ErrClosed
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.messages = nil
	close(q.done)
	return nil
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns a copy of the dead letter list
func (q *Queue[T]) DeadLetters() []*Message[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Message[T](nil), q.dlq...)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
