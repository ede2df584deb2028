package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/service/messaging"
	"github.com/viant/fsmflow/service/messaging/memory"
	"go.uber.org/zap"
)

// ErrStarted is returned when Start is called twice
var ErrStarted = errors.New("loop: already started")

// Config represents pool configuration
type Config struct {
	// Name identifies the pool in logs
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Workers is the number of goroutines running tasks
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{Name: "pool", Workers: 4}
}

// Pool is an execution loop backed by worker goroutines
type Pool struct {
	config   Config
	queue    messaging.Queue[*task]
	workers  sync.Map // goroutine id -> worker index
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	started  atomic.Bool
	stateMux sync.RWMutex
	stopped  bool
	executed atomic.Int64
}

// NewPool creates a pool; tasks submitted before Start wait in the queue.
func NewPool(options ...Option) *Pool {
	ret := &Pool{config: DefaultConfig()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.config.Workers <= 0 {
		ret.config.Workers = 1
	}
	if ret.queue == nil {
		ret.queue = memory.NewQueue[*task](memory.Config{})
	}
	return ret
}

// NewSerial creates a pool running every task on one goroutine
func NewSerial(options ...Option) *Pool {
	return NewPool(append(options, WithWorkers(1))...)
}

// Workers returns the number of worker goroutines
func (p *Pool) Workers() int {
	return p.config.Workers
}

// Executed returns the number of tasks taken off the queue
func (p *Pool) Executed() int64 {
	return p.executed.Load()
}

// Start launches the workers
func (p *Pool) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logger.Debug("loop: started", zap.String("loop", p.config.Name), zap.Int("workers", p.config.Workers))
	return nil
}

func (p *Pool) run(ctx context.Context, index int) {
	defer p.wg.Done()
	id := goroutineID()
	p.workers.Store(id, index)
	defer p.workers.Delete(id)
	for {
		msg, err := p.queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, messaging.ErrClosed) {
				return
			}
			logger.Warn("loop: consume failed", zap.String("loop", p.config.Name), zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		p.executed.Add(1)
		(*msg.T()).run(p.config.Name)
		_ = msg.Ack()
	}
}

// InLoop returns true on a worker goroutine of this pool
func (p *Pool) InLoop() bool {
	_, ok := p.workers.Load(goroutineID())
	return ok
}

// Submit queues fn for execution on a worker
func (p *Pool) Submit(fn func()) types.Detachable {
	t := newTask(fn)
	p.enqueue(t)
	return t
}

// Schedule queues fn for execution once delay elapses
func (p *Pool) Schedule(fn func(), delay time.Duration) types.Detachable {
	t := newTask(fn)
	if delay <= 0 {
		p.enqueue(t)
		return t
	}
	t.timer.Store(time.AfterFunc(delay, func() {
		if !t.detached.Load() {
			p.enqueue(t)
		}
	}))
	return t
}

// enqueue publishes t for the workers; once the pool is shut down t runs on the caller
func (p *Pool) enqueue(t *task) {
	p.stateMux.RLock()
	if !p.stopped {
		err := p.queue.Publish(context.Background(), &t)
		p.stateMux.RUnlock()
		if err == nil {
			return
		}
		logger.Warn("loop: publish failed, running task on caller", zap.String("loop", p.config.Name), zap.Error(err))
	} else {
		p.stateMux.RUnlock()
	}
	t.run(p.config.Name)
}

// Shutdown stops the workers and waits for the running tasks to return. Tasks still
// queued run on the calling goroutine before Shutdown returns, and tasks submitted
// afterwards run on their submitter, so a flow drain is never lost.
func (p *Pool) Shutdown() {
	p.stateMux.Lock()
	if p.stopped {
		p.stateMux.Unlock()
		return
	}
	p.stopped = true
	p.stateMux.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if !p.InLoop() {
		p.wg.Wait()
	}
	p.runPending()
	_ = p.queue.Close()
}

func (p *Pool) runPending() {
	done, cancel := context.WithCancel(context.Background())
	cancel()
	for {
		msg, err := p.queue.Consume(done)
		if err != nil {
			return
		}
		p.executed.Add(1)
		(*msg.T()).run(p.config.Name)
		_ = msg.Ack()
	}
}

var _ types.ExecutionLoop = (*Pool)(nil)
