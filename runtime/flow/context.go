package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/fsmflow/internal/clock"
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/tracing"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrInvalidFlow reports a nil flow value
	ErrInvalidFlow = errors.New("flow: flow is nil")
	// ErrInvalidLoop reports a nil execution loop
	ErrInvalidLoop = errors.New("flow: execution loop is nil")
)

// StatusReactor observes activation of a flow and enforces admission limits.
type StatusReactor interface {
	// CheckIfExceedLimit is called once, on the first activation; true destroys the flow
	CheckIfExceedLimit(ctx *Context) bool
	OnDestroyByExceedLimit(ctx *Context)
	OnActive(ctx *Context)
	OnUnactive(ctx *Context)
}

var defaultSequence atomic.Int64

type handlerRef struct {
	handler types.EventHandler
}

type valueRef struct {
	value any
}

// Cause describes the event that led a flow to be destroyed
type Cause struct {
	Event string
	Args  []any
}

// Context is the runtime state of one flow.
type Context struct {
	id             int64
	name           string
	flow           any
	loop           types.ExecutionLoop
	reactors       []any
	reactorSources []func(ctx *Context) []any
	statusReactor  StatusReactor
	stateChange    types.StateChangeListener
	sequence       *atomic.Int64
	tracing        bool
	caps           *capabilities

	// mux is held shared by push and pop and exclusively by destroy
	mux             sync.RWMutex
	pending         *mailbox
	active          atomic.Bool
	alive           atomic.Bool
	firstActivation atomic.Bool

	handler    atomic.Pointer[handlerRef]
	endReason  atomic.Pointer[valueRef]
	cause      atomic.Pointer[Cause]
	createTime time.Time
	lastModify atomic.Int64
	lastActive atomic.Int64
	activeTime atomic.Int64
	drainTask  func()
}

// New creates a flow context bound to loop
func New(flowValue any, loop types.ExecutionLoop, opts ...Option) (*Context, error) {
	if flowValue == nil {
		return nil, ErrInvalidFlow
	}
	if loop == nil {
		return nil, ErrInvalidLoop
	}
	ret := &Context{
		flow:     flowValue,
		loop:     loop,
		sequence: &defaultSequence,
		pending:  newMailbox(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.id = ret.sequence.Add(1)
	if ret.name == "" {
		ret.name = fmt.Sprintf("%T", flowValue)
	}
	ret.createTime = clock.Now()
	ret.lastModify.Store(ret.createTime.UnixNano())
	ret.alive.Store(true)
	ret.firstActivation.Store(true)
	ret.drainTask = ret.drain
	for _, source := range ret.reactorSources {
		ret.reactors = append(ret.reactors, source(ret)...)
	}
	ret.caps = newCapabilities(append([]any{flowValue}, ret.reactors...)...)
	ret.caps.setLoop(flowValue, loop)
	ret.caps.setEndReasonReporter(flowValue, ret.setEndReason)
	return ret, nil
}

// ID returns the flow id
func (c *Context) ID() int64 { return c.id }

// Name returns the flow name
func (c *Context) Name() string { return c.name }

// Flow returns the user flow value
func (c *Context) Flow() any { return c.flow }

// Loop returns the execution loop the flow is drained on
func (c *Context) Loop() types.ExecutionLoop { return c.loop }

// CurrentHandler returns the current state, or nil when none was installed or the flow is destroyed
func (c *Context) CurrentHandler() types.EventHandler {
	if !c.alive.Load() {
		return nil
	}
	return c.LastHandler()
}

// LastHandler returns the most recently installed state, including after destruction
func (c *Context) LastHandler() types.EventHandler {
	if ref := c.handler.Load(); ref != nil {
		return ref.handler
	}
	return nil
}

// EndReason returns the reason reported by the flow, if any
func (c *Context) EndReason() any {
	if ref := c.endReason.Load(); ref != nil {
		return ref.value
	}
	return nil
}

// CreateTime returns the creation time
func (c *Context) CreateTime() time.Time { return c.createTime }

// LastModify returns the time of the last transition or destruction
func (c *Context) LastModify() time.Time { return time.Unix(0, c.lastModify.Load()) }

// TimeToActive returns the accumulated time spent draining
func (c *Context) TimeToActive() time.Duration { return time.Duration(c.activeTime.Load()) }

// TimeToLive returns the flow age, frozen at destruction
func (c *Context) TimeToLive() time.Duration {
	if c.alive.Load() {
		return clock.Since(c.createTime)
	}
	return c.LastModify().Sub(c.createTime)
}

// IsDestroyed returns true once Destroy has won
func (c *Context) IsDestroyed() bool { return !c.alive.Load() }

// IsActive returns true while a drain owns the flow
func (c *Context) IsActive() bool { return c.active.Load() }

// DestroyCause returns the event that destroyed the flow, nil while alive
func (c *Context) DestroyCause() *Cause { return c.cause.Load() }

// PendingCount returns the number of queued events
func (c *Context) PendingCount() int { return c.pending.size() }

func (c *Context) String() string {
	return c.name + "#" + strconv.FormatInt(c.id, 10)
}

func (c *Context) setEndReason(reason any) {
	c.endReason.Store(&valueRef{value: reason})
}

func (c *Context) touch() {
	c.lastModify.Store(clock.Nanos())
}

// ProcessEvent queues event for dispatch and schedules a drain; false means the flow is destroyed.
func (c *Context) ProcessEvent(event types.Eventable, args []any) bool {
	if event == nil {
		logger.Warn("flow: ignoring nil event", zap.Stringer("flow", c))
		return false
	}
	item := &pending{event: event, args: args}
	if !c.push(item) {
		logger.Debug("flow: destroyed, bypassing event", zap.Stringer("flow", c), zap.String("event", event.Event()))
		c.reportUnhandled(*item)
		return false
	}
	c.schedule()
	return true
}

func (c *Context) push(item *pending) bool {
	if !c.alive.Load() {
		return false
	}
	item.args = c.beforeInvoke(*item)
	c.mux.RLock()
	defer c.mux.RUnlock()
	if !c.alive.Load() {
		return false
	}
	c.pending.push(*item)
	return true
}

func (c *Context) pop() (pending, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if !c.alive.Load() {
		return pending{}, false
	}
	return c.pending.pop()
}

func (c *Context) schedule() {
	if !c.tryActivate() {
		return
	}
	if c.loop.InLoop() {
		c.drain()
		return
	}
	c.loop.Submit(c.drainTask)
}

func (c *Context) tryActivate() bool {
	if !c.alive.Load() {
		return false
	}
	if !c.active.CompareAndSwap(false, true) {
		return false
	}
	c.lastActive.Store(clock.Nanos())
	if c.statusReactor != nil {
		guard("OnActive", c, func() error {
			c.statusReactor.OnActive(c)
			return nil
		})
	}
	return true
}

func (c *Context) setInactive() {
	started := c.lastActive.Load()
	if !c.active.CompareAndSwap(true, false) {
		return
	}
	c.activeTime.Add(clock.Nanos() - started)
	if c.statusReactor != nil {
		guard("OnUnactive", c, func() error {
			c.statusReactor.OnUnactive(c)
			return nil
		})
	}
}

// release gives up ownership; it returns false when ownership was re-acquired for late events.
func (c *Context) release() bool {
	c.setInactive()
	if !c.alive.Load() || c.pending.empty() {
		return true
	}
	return !c.tryActivate()
}

func (c *Context) drain() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("flow: drain failed, destroying flow", zap.Stringer("flow", c), zap.Error(types.NewPanicError(r)))
			c.Destroy("", nil)
			c.setInactive()
		}
	}()
	if c.firstActivation.CompareAndSwap(true, false) && c.exceedLimit() {
		c.Destroy("", nil)
		c.setInactive()
		return
	}
	for {
		item, ok := c.pop()
		if !ok {
			if c.release() {
				return
			}
			continue
		}
		c.dispatch(item)
	}
}

func (c *Context) exceedLimit() bool {
	if c.statusReactor == nil {
		return false
	}
	exceeded := false
	guard("CheckIfExceedLimit", c, func() error {
		exceeded = c.statusReactor.CheckIfExceedLimit(c)
		return nil
	})
	if !exceeded {
		return false
	}
	logger.Warn("flow: limit exceeded, destroying flow", zap.Stringer("flow", c))
	guard("OnDestroyByExceedLimit", c, func() error {
		c.statusReactor.OnDestroyByExceedLimit(c)
		return nil
	})
	return true
}

func (c *Context) dispatch(item pending) {
	defer c.afterInvoke(item)
	event := item.event.Event()
	if !c.alive.Load() {
		c.notifyUnhandled(item)
		return
	}
	handler := c.LastHandler()
	if handler == nil {
		logger.Error("flow: no current handler, destroying flow", zap.Stringer("flow", c), zap.String("event", event), zap.Error(types.ErrNoCurrentHandler))
		c.notifyUnhandled(item)
		c.Destroy(event, item.args)
		return
	}
	var span *tracing.Span
	if c.tracing {
		_, span = tracing.StartSpan(context.Background(), "flow.dispatch", "INTERNAL")
		span.WithAttributes(map[string]string{
			"flow.name":  c.name,
			"flow.id":    strconv.FormatInt(c.id, 10),
			"flow.state": handler.Name(),
			"flow.event": event,
		})
	}
	c.caps.setEventName(c.flow, event)
	result := c.invoke(handler, event, item.args)
	c.caps.setEventName(c.flow, "")
	if span != nil {
		span.WithAttributes(map[string]string{"flow.handled": strconv.FormatBool(result.Handled)})
		tracing.EndSpan(span, result.Err)
	}
	if !result.Handled {
		c.notifyUnhandled(item)
	}
	switch {
	case result.IsFault():
		logger.Warn("flow: transition failed", zap.Stringer("flow", c), zap.String("state", handler.Name()), zap.String("event", event), zap.Error(result.Err))
	case result.IsTerminal():
		logger.Debug("flow: reached terminal state", zap.Stringer("flow", c), zap.String("event", event))
		c.Destroy(event, item.args)
	case result.Next == handler || types.IsCurrentState(result.Next):
	default:
		c.SetCurrentHandler(result.Next, event, item.args)
	}
}

func (c *Context) invoke(handler types.EventHandler, event string, args []any) (result types.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = types.Fault(handler, types.NewPanicError(r))
		}
	}()
	return handler.Process(event, args)
}

// SetCurrentHandler installs handler as the current state. The first install fires no
// before-transition notification; installing the current handler again is a no-op.
func (c *Context) SetCurrentHandler(handler types.EventHandler, causeEvent string, causeArgs []any) *Context {
	if handler == nil || types.IsCurrentState(handler) {
		return c
	}
	if !c.alive.Load() {
		logger.Debug("flow: destroyed, ignoring handler change", zap.Stringer("flow", c), zap.String("state", handler.Name()))
		return c
	}
	current := c.LastHandler()
	if current == handler {
		return c
	}
	if current != nil {
		c.beforeChange(handler, causeEvent, causeArgs)
	}
	if logger.Enabled(zapcore.DebugLevel) {
		from := ""
		if current != nil {
			from = current.Name()
		}
		logger.Debug("flow: state changed", zap.Stringer("flow", c), zap.String("from", from), zap.String("to", handler.Name()), zap.String("event", causeEvent))
	}
	c.handler.Store(&handlerRef{handler: handler})
	c.touch()
	c.caps.setEventHandler(c.flow, handler)
	return c
}

func (c *Context) beforeChange(next types.EventHandler, causeEvent string, causeArgs []any) {
	if c.stateChange != nil {
		guard("BeforeFlowChangeTo", c, func() error {
			return c.stateChange.BeforeFlowChangeTo(c, next, causeEvent, causeArgs)
		})
	}
	for _, listener := range c.caps.stateChange {
		guard("BeforeFlowChangeTo", c, func() error {
			return listener.BeforeFlowChangeTo(c, next, causeEvent, causeArgs)
		})
	}
}

// Destroy tears the flow down; only the first call has any effect. Pending events are
// reported as unhandled after the mailbox is closed.
func (c *Context) Destroy(causeEvent string, causeArgs []any) bool {
	c.mux.Lock()
	if !c.alive.CompareAndSwap(true, false) {
		c.mux.Unlock()
		return false
	}
	c.touch()
	c.cause.Store(&Cause{Event: causeEvent, Args: causeArgs})
	dropped := c.pending.drain()
	c.mux.Unlock()

	logger.Debug("flow: destroyed", zap.Stringer("flow", c), zap.String("event", causeEvent), zap.Int("dropped", len(dropped)))
	for _, item := range dropped {
		c.reportUnhandled(item)
	}
	if reason := c.caps.endReason(c.flow); reason != nil {
		c.setEndReason(reason)
	}
	if c.stateChange != nil {
		guard("AfterFlowDestroy", c, func() error {
			return c.stateChange.AfterFlowDestroy(c)
		})
	}
	for _, listener := range c.caps.stateChange {
		guard("AfterFlowDestroy", c, func() error {
			return listener.AfterFlowDestroy(c)
		})
	}
	c.caps.afterFlowDestroy(c.flow)
	return true
}

// AfterReceiverCreated notifies flow level lifecycle listeners
func (c *Context) AfterReceiverCreated(receiver types.EventReceiver) {
	c.caps.afterReceiverCreated(c.flow, receiver)
}

func (c *Context) reportUnhandled(item pending) {
	c.notifyUnhandled(item)
	c.afterInvoke(item)
}

func (c *Context) notifyUnhandled(item pending) {
	aware, ok := item.event.(types.EventUnhandleAware)
	if !ok {
		return
	}
	guard("OnEventUnhandle", c, func() error {
		return aware.OnEventUnhandle(item.event.Event(), item.args...)
	})
}

func (c *Context) beforeInvoke(item pending) []any {
	handler, ok := item.event.(types.ArgsHandler)
	if !ok {
		return item.args
	}
	ret := item.args
	guard("BeforeInvoke", c, func() error {
		args, err := handler.BeforeInvoke(item.args)
		if err != nil {
			return err
		}
		ret = args
		return nil
	})
	return ret
}

func (c *Context) afterInvoke(item pending) {
	handler, ok := item.event.(types.ArgsHandler)
	if !ok {
		return
	}
	guard("AfterInvoke", c, func() error {
		return handler.AfterInvoke(item.args)
	})
}
