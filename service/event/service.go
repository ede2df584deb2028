package event

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/viant/fsmflow/service/messaging"
	"github.com/viant/fsmflow/service/messaging/memory"
)

// Service routes typed events to per-type listeners and to one catch-all listener
type Service struct {
	publisher       *Publisher[any]
	listener        *Listener[any]
	anyActive       atomic.Bool
	typedPublishers map[reflect.Type]any
	typedListener   map[reflect.Type]any
	queues          []func() error
	mux             sync.RWMutex
	newQueueConfig  func(name string) memory.Config
}

// New creates an in-memory event service
func New(opts ...Option) *Service {
	ret := &Service{
		typedPublishers: make(map[reflect.Type]any),
		typedListener:   make(map[reflect.Type]any),
		newQueueConfig:  func(string) memory.Config { return memory.Config{} },
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.publisher = NewPublisher[any](QueueOf[Event[any]](ret, "any"))
	return ret
}

// SetListener replaces the catch-all listener receiving every published event
func (s *Service) SetListener(handler func(*Event[any])) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener[any](s.publisher, handler)
	s.publisher.listening.Store(true)
	s.anyActive.Store(true)
	s.listener.Start()
}

// Close stops every listener and closes the queues
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.anyActive.Store(false)
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
	for key, listener := range s.typedListener {
		listener.(interface{ Stop() }).Stop()
		delete(s.typedListener, key)
	}
	var err error
	for _, closeFn := range s.queues {
		if cErr := closeFn(); cErr != nil && err == nil {
			err = cErr
		}
	}
	return err
}

// QueueOf creates a named queue owned by the service
func QueueOf[T any](s *Service, name string) messaging.Queue[T] {
	queue := memory.NewQueue[T](s.newQueueConfig(name))
	s.queues = append(s.queues, queue.Close)
	return queue
}

func keyOf[T any]() reflect.Type {
	rType := reflect.TypeOf((*T)(nil)).Elem()
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// SetListenerOf replaces the listener of T events
func SetListenerOf[T any](s *Service, handler func(*Event[T])) {
	publisher := PublisherOf[T](s)
	key := keyOf[T]()
	s.mux.Lock()
	defer s.mux.Unlock()
	if prev, ok := s.typedListener[key]; ok {
		prev.(*Listener[T]).Stop()
	}
	listener := NewListener[T](publisher, handler)
	s.typedListener[key] = listener
	publisher.listening.Store(true)
	listener.Start()
}

// PublisherOf returns the publisher of T events
func PublisherOf[T any](s *Service) *Publisher[T] {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T])
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok = s.typedPublishers[key]; ok {
		return ret.(*Publisher[T])
	}
	publisher := NewPublisher[T](QueueOf[Event[T]](s, key.String()))
	publisher.anyQueue = s.publisher.queue
	publisher.anyActive = &s.anyActive
	s.typedPublishers[key] = publisher
	return publisher
}
