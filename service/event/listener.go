package event

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/service/messaging"
	"go.uber.org/zap"
)

// Listener runs handler for every consumed event on its own goroutine
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
}

// NewListener creates a stopped listener
func NewListener[T any](publisher *Publisher[T], handler func(*Event[T])) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop cancels consumption and waits for the running handler to return
func (l *Listener[T]) Stop() {
	l.cancel()
	if l.started.Load() {
		<-l.done
	}
}

// Start begins consumption; it is a no-op on a started listener
func (l *Listener[T]) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(l.done)
		for {
			event, err := l.publisher.Consume(l.ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) {
					return
				}
				logger.Warn("event: consume failed", zap.Error(err))
				continue
			}
			l.handle(event)
		}
	}()
}

func (l *Listener[T]) handle(event *Event[T]) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event: listener panicked", zap.Error(types.NewPanicError(r)))
		}
	}()
	l.handler(event)
}
