package container

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/policy"
	"github.com/viant/fsmflow/runtime/flow"
	"github.com/viant/fsmflow/service/event"
	"go.uber.org/zap"
)

// ErrInvalidHandler reports a nil initial handler
var ErrInvalidHandler = errors.New("container: init handler is nil")

var containerSequence atomic.Int64

// Container creates flows and tracks them until they are destroyed
type Container struct {
	id        int64
	name      string
	policy    *policy.Policy
	publisher *event.Publisher[event.FlowRecord]
	tracing   bool
	sequence  *atomic.Int64

	flows     sync.Map // flow id -> *flow.Context
	alive     atomic.Int64
	created   atomic.Int64
	handled   atomic.Int64
	completed atomic.Int64
	bypass    atomic.Int64
	rejected  atomic.Int64

	// writers of the copy-on-write lists below are serialised by mux
	mux       sync.Mutex
	listeners atomic.Pointer[[]types.StateChangeListener]
	builders  atomic.Pointer[[]types.ReactorBuilder]
}

// New creates a container
func New(name string, opts ...Option) *Container {
	ret := &Container{id: containerSequence.Add(1)}
	for _, opt := range opts {
		opt(ret)
	}
	ret.name = name
	if ret.name == "" {
		ret.name = fmt.Sprintf("container-%d", ret.id)
	}
	return ret
}

// ID returns the container id
func (c *Container) ID() int64 { return c.id }

// Name returns the container name
func (c *Container) Name() string { return c.name }

func (c *Container) String() string {
	return fmt.Sprintf("%s-%d", c.name, c.id)
}

// CreatedCount returns the number of flows ever registered
func (c *Container) CreatedCount() int64 { return c.created.Load() }

// HandledCount returns the number of flows accepted for handling
func (c *Container) HandledCount() int64 { return c.handled.Load() }

// CompletedCount returns the number of destroyed flows
func (c *Container) CompletedCount() int64 { return c.completed.Load() }

// BypassCount returns the number of events offered to destroyed flows
func (c *Container) BypassCount() int64 { return c.bypass.Load() }

// RejectedCount returns the number of flows destroyed by admission
func (c *Container) RejectedCount() int64 { return c.rejected.Load() }

// AliveCount returns the number of live flows
func (c *Container) AliveCount() int64 { return c.alive.Load() }

// Flows returns the live flows ordered by id
func (c *Container) Flows() []*flow.Context {
	var ret []*flow.Context
	c.flows.Range(func(_, value any) bool {
		ret = append(ret, value.(*flow.Context))
		return true
	})
	slices.SortFunc(ret, func(a, b *flow.Context) int { return cmp.Compare(a.ID(), b.ID()) })
	return ret
}

// Lookup returns the live flow with id
func (c *Container) Lookup(id int64) (*flow.Context, bool) {
	value, ok := c.flows.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*flow.Context), true
}

// Engine returns an event engine creating flows bound to loop
func (c *Container) Engine(loop types.ExecutionLoop) types.EventEngine {
	return &engine{container: c, loop: loop}
}

type engine struct {
	container *Container
	loop      types.ExecutionLoop
}

func (e *engine) Create(flowValue any, init types.EventHandler, reactors ...any) (types.EventReceiver, error) {
	return e.container.Create(flowValue, init, e.loop, reactors...)
}

func (e *engine) CreateFrom(source types.FlowSource, reactors ...any) (types.EventReceiver, error) {
	return e.container.CreateFrom(source, e.loop, reactors...)
}

// CreateFrom creates a flow with the value and initial state produced by source
func (c *Container) CreateFrom(source types.FlowSource, loop types.ExecutionLoop, reactors ...any) (types.EventReceiver, error) {
	if source == nil {
		return nil, flow.ErrInvalidFlow
	}
	flowValue := source.Flow()
	return c.Create(flowValue, source.InitHandler(flowValue), loop, reactors...)
}

// Create builds a flow context, installs init as its first state and registers it.
func (c *Container) Create(flowValue any, init types.EventHandler, loop types.ExecutionLoop, reactors ...any) (types.EventReceiver, error) {
	if init == nil || types.IsCurrentState(init) {
		return nil, ErrInvalidHandler
	}
	options := []flow.Option{
		flow.WithReactors(reactors...),
		flow.WithReactorSource(c.buildReactors),
		flow.WithStatusReactor(c),
		flow.WithStateChangeListener(c),
		flow.WithTracing(c.tracing),
		flow.WithSequence(c.sequence),
	}
	if named, ok := flowValue.(interface{ Name() string }); ok {
		options = append(options, flow.WithName(named.Name()))
	}
	ctx, err := flow.New(flowValue, loop, options...)
	if err != nil {
		return nil, fmt.Errorf("container %v: failed to create flow: %w", c, err)
	}
	ctx.SetCurrentHandler(init, "", nil)
	c.flows.Store(ctx.ID(), ctx)
	c.alive.Add(1)
	c.created.Add(1)
	c.handled.Add(1)

	ret := &receiver{container: c, ctx: ctx}
	ctx.AfterReceiverCreated(ret)
	c.publish(ctx, event.TypeCreated, event.FlowRecord{State: init.Name()})
	logger.Debug("container: flow created", zap.Stringer("container", c), zap.Stringer("flow", ctx), zap.String("state", init.Name()))
	return ret, nil
}

func (c *Container) buildReactors(ctx *flow.Context) []any {
	builders := c.builders.Load()
	if builders == nil {
		return nil
	}
	var ret []any
	for _, builder := range *builders {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("container: reactor builder panicked", zap.Stringer("flow", ctx), zap.Error(types.NewPanicError(r)))
				}
			}()
			ret = append(ret, builder.BuildReactors(ctx)...)
		}()
	}
	return ret
}

// BeforeFlowChangeTo fans the transition out to registered listeners
func (c *Container) BeforeFlowChangeTo(ctx types.FlowContext, next types.EventHandler, causeEvent string, causeArgs []any) error {
	from := ""
	if current := ctx.CurrentHandler(); current != nil {
		from = current.Name()
	}
	c.publish(ctx, event.TypeTransition, event.FlowRecord{From: from, State: next.Name(), Cause: causeEvent})
	var errs []error
	for _, listener := range c.stateListeners() {
		if err := notify(func() error { return listener.BeforeFlowChangeTo(ctx, next, causeEvent, causeArgs) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AfterFlowDestroy deregisters the flow and fans the destruction out to registered listeners
func (c *Container) AfterFlowDestroy(ctx types.FlowContext) error {
	if _, ok := c.flows.LoadAndDelete(ctx.ID()); ok {
		c.alive.Add(-1)
		c.completed.Add(1)
	}
	record := event.FlowRecord{EndReason: ctx.EndReason(), TimeToLive: ctx.TimeToLive(), TimeToActive: ctx.TimeToActive()}
	if fc, ok := ctx.(*flow.Context); ok {
		if last := fc.LastHandler(); last != nil {
			record.State = last.Name()
		}
		if cause := fc.DestroyCause(); cause != nil {
			record.Cause = cause.Event
		}
	}
	c.publish(ctx, event.TypeDestroyed, record)
	var errs []error
	for _, listener := range c.stateListeners() {
		if err := notify(func() error { return listener.AfterFlowDestroy(ctx) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func notify(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewPanicError(r)
		}
	}()
	return fn()
}

// CheckIfExceedLimit consults the admission policy
func (c *Container) CheckIfExceedLimit(ctx *flow.Context) bool {
	return !c.policy.Admit(context.Background(), ctx.Name(), int(c.alive.Load()))
}

// OnDestroyByExceedLimit counts a flow rejected by admission
func (c *Container) OnDestroyByExceedLimit(ctx *flow.Context) {
	c.rejected.Add(1)
	logger.Warn("container: flow rejected by admission policy", zap.Stringer("container", c), zap.Stringer("flow", ctx), zap.Int64("alive", c.alive.Load()))
}

// OnActive implements flow.StatusReactor
func (c *Container) OnActive(*flow.Context) {}

// OnUnactive implements flow.StatusReactor
func (c *Container) OnUnactive(*flow.Context) {}

func (c *Container) publish(ctx types.FlowContext, eventType event.Type, record event.FlowRecord) {
	if c.publisher == nil {
		return
	}
	evt := event.NewEvent(&event.Context{Container: c.name, FlowID: ctx.ID(), FlowName: ctx.Name(), EventType: eventType}, record)
	if err := c.publisher.Publish(context.Background(), evt); err != nil {
		logger.Warn("container: failed to publish lifecycle event", zap.Stringer("container", c), zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (c *Container) stateListeners() []types.StateChangeListener {
	if listeners := c.listeners.Load(); listeners != nil {
		return *listeners
	}
	return nil
}

// RegisterStateChangeListener adds a listener notified for every flow of the container
func (c *Container) RegisterStateChangeListener(listener types.StateChangeListener) bool {
	if listener == nil {
		logger.Warn("container: state change listener is nil, ignoring", zap.Stringer("container", c))
		return false
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return addComponent(&c.listeners, listener, c)
}

// UnregisterStateChangeListener removes listener
func (c *Container) UnregisterStateChangeListener(listener types.StateChangeListener) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return removeComponent(&c.listeners, listener)
}

// AddReactorBuilder adds a builder contributing reactors to every flow created afterwards
func (c *Container) AddReactorBuilder(builder types.ReactorBuilder) bool {
	if builder == nil {
		logger.Warn("container: reactor builder is nil, ignoring", zap.Stringer("container", c))
		return false
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return addComponent(&c.builders, builder, c)
}

// RemoveReactorBuilder removes builder
func (c *Container) RemoveReactorBuilder(builder types.ReactorBuilder) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return removeComponent(&c.builders, builder)
}

func addComponent[T comparable](list *atomic.Pointer[[]T], item T, c *Container) bool {
	var current []T
	if p := list.Load(); p != nil {
		current = *p
	}
	if slices.Contains(current, item) {
		logger.Warn("container: component already added, ignoring", zap.Stringer("container", c), zap.Any("component", item))
		return false
	}
	next := append(slices.Clip(current), item)
	list.Store(&next)
	return true
}

func removeComponent[T comparable](list *atomic.Pointer[[]T], item T) bool {
	p := list.Load()
	if p == nil {
		return false
	}
	index := slices.Index(*p, item)
	if index < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(*p), index, index+1)
	list.Store(&next)
	return true
}

var _ flow.StatusReactor = (*Container)(nil)
var _ types.StateChangeListener = (*Container)(nil)
