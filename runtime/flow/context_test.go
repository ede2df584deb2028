package flow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fsmflow/internal/clock"
	"github.com/viant/fsmflow/model/step"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/service/loop"
)

// event counts unhandled notifications and args callbacks
type event struct {
	name      string
	unhandled *atomic.Int64
	after     *atomic.Int64
	prefix    any
}

func (e *event) Event() string { return e.name }

func (e *event) OnEventUnhandle(string, ...any) error {
	e.unhandled.Add(1)
	return nil
}

func (e *event) BeforeInvoke(args []any) ([]any, error) {
	if e.prefix == nil {
		return args, nil
	}
	return append([]any{e.prefix}, args...), nil
}

func (e *event) AfterInvoke([]any) error {
	if e.after != nil {
		e.after.Add(1)
	}
	return nil
}

type turnstile struct {
	locked   *step.Step
	unlocked *step.Step
}

func newTurnstile() *turnstile {
	ret := &turnstile{}
	ret.locked = step.New("LOCKED").Handle("coin", func(args ...any) (types.EventHandler, error) {
		return ret.unlocked, nil
	}).Freeze()
	ret.unlocked = step.New("UNLOCKED").
		Handle("pass", func(args ...any) (types.EventHandler, error) { return ret.locked, nil }).
		Handle("coin", func(args ...any) (types.EventHandler, error) { return types.CurrentState, nil }).
		Freeze()
	return ret
}

type recorder struct {
	mux         sync.Mutex
	transitions []string
	destroyed   int
	failBefore  bool
}

func (r *recorder) BeforeFlowChangeTo(ctx types.FlowContext, next types.EventHandler, causeEvent string, causeArgs []any) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	from := ""
	if current := ctx.CurrentHandler(); current != nil {
		from = current.Name()
	}
	r.transitions = append(r.transitions, from+"-"+causeEvent+"->"+next.Name())
	if r.failBefore {
		return errors.New("listener failure")
	}
	return nil
}

func (r *recorder) AfterFlowDestroy(types.FlowContext) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.destroyed++
	return nil
}

func (r *recorder) snapshot() ([]string, int) {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]string(nil), r.transitions...), r.destroyed
}

func newEvent(name string, unhandled *atomic.Int64) *event {
	return &event{name: name, unhandled: unhandled}
}

func TestNew(t *testing.T) {
	_, err := New(nil, loop.Inline())
	assert.ErrorIs(t, err, ErrInvalidFlow)
	_, err = New(newTurnstile(), nil)
	assert.ErrorIs(t, err, ErrInvalidLoop)

	var sequence atomic.Int64
	first, err := New(newTurnstile(), loop.Inline(), WithSequence(&sequence), WithName("gate"))
	require.NoError(t, err)
	second, err := New(newTurnstile(), loop.Inline(), WithSequence(&sequence))
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.ID())
	assert.EqualValues(t, 2, second.ID())
	assert.Equal(t, "gate", first.Name())
	assert.Equal(t, "*flow.turnstile", second.Name())
	assert.Equal(t, "gate#1", first.String())
	assert.False(t, first.IsDestroyed())
	assert.Nil(t, first.CurrentHandler())
	assert.Nil(t, first.DestroyCause())
}

func TestContext_Turnstile(t *testing.T) {
	gate := newTurnstile()
	listener := &recorder{}
	ctx, err := New(gate, loop.Inline(), WithStateChangeListener(listener))
	require.NoError(t, err)
	ctx.SetCurrentHandler(gate.locked, "", nil)

	var unhandled atomic.Int64
	for _, name := range []string{"coin", "pass", "pass", "coin", "coin"} {
		assert.True(t, ctx.ProcessEvent(newEvent(name, &unhandled), nil))
	}
	assert.Equal(t, gate.unlocked, ctx.CurrentHandler())
	assert.EqualValues(t, 1, unhandled.Load())

	transitions, destroyed := listener.snapshot()
	assert.Equal(t, []string{"LOCKED-coin->UNLOCKED", "UNLOCKED-pass->LOCKED", "LOCKED-coin->UNLOCKED"}, transitions)
	assert.Equal(t, 0, destroyed)
	assert.False(t, ctx.IsActive())
	assert.Equal(t, 0, ctx.PendingCount())
}

func TestContext_LastModify(t *testing.T) {
	var now atomic.Int64
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now.Store(start.UnixNano())
	clock.NowFunc = func() time.Time { return time.Unix(0, now.Load()).UTC() }
	defer func() { clock.NowFunc = time.Now }()

	gate := newTurnstile()
	ctx, err := New(gate, loop.Inline())
	require.NoError(t, err)
	ctx.SetCurrentHandler(gate.locked, "", nil)
	assert.Equal(t, start.UnixNano(), ctx.LastModify().UnixNano())

	var unhandled atomic.Int64
	testCases := []struct {
		description string
		event       string
		modified    bool
		expect      types.EventHandler
	}{
		{description: "coin unlocks", event: "coin", modified: true, expect: gate.unlocked},
		{description: "coin while unlocked keeps current state", event: "coin", expect: gate.unlocked},
		{description: "pass locks", event: "pass", modified: true, expect: gate.locked},
		{description: "pass while locked is unhandled", event: "pass", expect: gate.locked},
	}
	for i, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			before := ctx.LastModify()
			now.Store(start.Add(time.Duration(i+1) * time.Second).UnixNano())
			assert.True(t, ctx.ProcessEvent(newEvent(tc.event, &unhandled), nil))
			assert.Equal(t, tc.expect, ctx.CurrentHandler())
			if tc.modified {
				assert.Equal(t, now.Load(), ctx.LastModify().UnixNano())
				return
			}
			assert.Equal(t, before, ctx.LastModify())
		})
	}
	assert.EqualValues(t, 1, unhandled.Load())
}

func TestContext_ConcurrentProducersTurnstile(t *testing.T) {
	pool := loop.NewPool(loop.WithWorkers(4))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Shutdown()

	gate := newTurnstile()
	ctx, err := New(gate, pool)
	require.NoError(t, err)
	ctx.SetCurrentHandler(gate.locked, "", nil)

	sequence := []string{"coin", "pass", "pass", "coin", "coin"}
	var unhandled, after atomic.Int64
	var mux sync.Mutex
	next := 0
	var wg sync.WaitGroup
	for p := 0; p < 3; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mux.Lock()
				if next == len(sequence) {
					mux.Unlock()
					return
				}
				e := &event{name: sequence[next], unhandled: &unhandled, after: &after}
				next++
				ctx.ProcessEvent(e, nil)
				mux.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Eventually(t, func() bool { return after.Load() == int64(len(sequence)) }, 2*time.Second, time.Millisecond)
	assert.Equal(t, gate.unlocked, ctx.CurrentHandler())
	assert.EqualValues(t, 1, unhandled.Load())
}

func TestContext_MutualExclusionAndOrder(t *testing.T) {
	pool := loop.NewPool(loop.WithWorkers(8))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Shutdown()

	producers := 16
	perProducer := 500
	var inFlight, maxInFlight, handled atomic.Int64
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	outOfOrder := 0

	var counting *step.Step
	counting = step.New("COUNTING").Handle("tick", func(args ...any) (types.EventHandler, error) {
		current := inFlight.Add(1)
		if current > maxInFlight.Load() {
			maxInFlight.Store(current)
		}
		producer, seq := args[0].(int), args[1].(int)
		if seq <= last[producer] {
			outOfOrder++
		}
		last[producer] = seq
		handled.Add(1)
		inFlight.Add(-1)
		return counting, nil
	}).Freeze()

	ctx, err := New(&struct{ name string }{"counter"}, pool)
	require.NoError(t, err)
	ctx.SetCurrentHandler(counting, "", nil)

	var unhandled atomic.Int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.True(t, ctx.ProcessEvent(newEvent("tick", &unhandled), []any{p, i}))
			}
		}()
	}
	wg.Wait()
	total := int64(producers * perProducer)
	assert.Eventually(t, func() bool { return handled.Load() == total }, 5*time.Second, time.Millisecond)
	assert.EqualValues(t, 1, maxInFlight.Load())
	assert.Equal(t, 0, outOfOrder)
	assert.EqualValues(t, 0, unhandled.Load())
	assert.Eventually(t, func() bool { return !ctx.IsActive() }, time.Second, time.Millisecond)
	assert.Greater(t, ctx.TimeToActive(), time.Duration(0))
}

func TestContext_TerminalDrainsPending(t *testing.T) {
	serial := loop.NewSerial()
	defer serial.Shutdown()

	end := step.New("RUNNING").
		Handle("work", func(args ...any) (types.EventHandler, error) { return types.CurrentState, nil }).
		Handle("stop", func(args ...any) (types.EventHandler, error) { return nil, nil })
	listener := &recorder{}
	ctx, err := New(end, serial, WithStateChangeListener(listener))
	require.NoError(t, err)
	ctx.SetCurrentHandler(end, "", nil)

	var unhandled, after atomic.Int64
	for _, name := range []string{"work", "stop", "work", "work"} {
		assert.True(t, ctx.ProcessEvent(&event{name: name, unhandled: &unhandled, after: &after}, []any{name}))
	}
	assert.Equal(t, 4, ctx.PendingCount())
	require.NoError(t, serial.Start(context.Background()))

	assert.Eventually(t, ctx.IsDestroyed, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return after.Load() == 4 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, unhandled.Load())
	cause := ctx.DestroyCause()
	require.NotNil(t, cause)
	assert.Equal(t, "stop", cause.Event)
	assert.Equal(t, []any{"stop"}, cause.Args)
	assert.Nil(t, ctx.CurrentHandler())
	assert.Equal(t, end, ctx.LastHandler())
	_, destroyed := listener.snapshot()
	assert.Equal(t, 1, destroyed)

	assert.False(t, ctx.ProcessEvent(&event{name: "work", unhandled: &unhandled, after: &after}, nil))
	assert.EqualValues(t, 3, unhandled.Load())
	assert.EqualValues(t, 5, after.Load())
}

func TestContext_ConcurrentDestroyAccounting(t *testing.T) {
	pool := loop.NewPool(loop.WithWorkers(4))
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Shutdown()

	var dispatched atomic.Int64
	var busy *step.Step
	busy = step.New("BUSY").Handle("job", func(args ...any) (types.EventHandler, error) {
		dispatched.Add(1)
		return busy, nil
	}).Freeze()
	ctx, err := New(busy, pool)
	require.NoError(t, err)
	ctx.SetCurrentHandler(busy, "", nil)

	producers := 8
	perProducer := 1000
	var unhandled, after atomic.Int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ctx.ProcessEvent(&event{name: "job", unhandled: &unhandled, after: &after}, nil)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		ctx.Destroy("shutdown", nil)
	}()
	wg.Wait()

	total := int64(producers * perProducer)
	assert.Eventually(t, func() bool { return after.Load() == total }, 5*time.Second, time.Millisecond)
	assert.Equal(t, total, dispatched.Load()+unhandled.Load())
	assert.True(t, ctx.IsDestroyed())
	assert.Equal(t, 0, ctx.PendingCount())
}

func TestContext_DestroyIdempotent(t *testing.T) {
	gate := newTurnstile()
	listener := &recorder{}
	ctx, err := New(gate, loop.Inline(), WithStateChangeListener(listener))
	require.NoError(t, err)
	ctx.SetCurrentHandler(gate.locked, "", nil)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ctx.Destroy("kill", nil) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	_, destroyed := listener.snapshot()
	assert.Equal(t, 1, destroyed)
	ttl := ctx.TimeToLive()
	time.Sleep(2 * time.Millisecond)
	assert.Equal(t, ttl, ctx.TimeToLive())

	ctx.SetCurrentHandler(gate.unlocked, "late", nil)
	assert.Equal(t, gate.locked, ctx.LastHandler())
}

type limiter struct {
	exceed    bool
	rejected  atomic.Int32
	active    atomic.Int32
	unactive  atomic.Int32
	panicking bool
}

func (l *limiter) CheckIfExceedLimit(*Context) bool {
	if l.panicking {
		panic("limiter failure")
	}
	return l.exceed
}
func (l *limiter) OnDestroyByExceedLimit(*Context) { l.rejected.Add(1) }
func (l *limiter) OnActive(*Context)               { l.active.Add(1) }
func (l *limiter) OnUnactive(*Context)             { l.unactive.Add(1) }

func TestContext_Admission(t *testing.T) {
	testCases := []struct {
		description string
		limiter     *limiter
		destroyed   bool
	}{
		{description: "admitted", limiter: &limiter{}},
		{description: "limit exceeded", limiter: &limiter{exceed: true}, destroyed: true},
		{description: "failing check admits", limiter: &limiter{panicking: true}},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			gate := newTurnstile()
			ctx, err := New(gate, loop.Inline(), WithStatusReactor(tc.limiter))
			require.NoError(t, err)
			ctx.SetCurrentHandler(gate.locked, "", nil)

			var unhandled atomic.Int64
			assert.True(t, ctx.ProcessEvent(newEvent("coin", &unhandled), nil))
			assert.Equal(t, tc.destroyed, ctx.IsDestroyed())
			if tc.destroyed {
				assert.EqualValues(t, 1, tc.limiter.rejected.Load())
				assert.EqualValues(t, 1, unhandled.Load())
			} else {
				assert.EqualValues(t, 0, tc.limiter.rejected.Load())
				assert.Equal(t, gate.unlocked, ctx.CurrentHandler())
				assert.True(t, ctx.ProcessEvent(newEvent("pass", &unhandled), nil))
				assert.EqualValues(t, 0, unhandled.Load())
			}
			assert.Equal(t, tc.limiter.active.Load(), tc.limiter.unactive.Load())
		})
	}
}

// awareFlow implements every flow capability
type awareFlow struct {
	events     []string
	handlers   []string
	loop       types.ExecutionLoop
	report     func(reason any)
	created    types.EventReceiver
	destroyed  int
	endReason  any
	panicOnSet bool
}

func (f *awareFlow) SetEventName(event string) {
	f.events = append(f.events, event)
}

func (f *awareFlow) SetEventHandler(handler types.EventHandler) {
	if f.panicOnSet {
		panic("capability failure")
	}
	f.handlers = append(f.handlers, handler.Name())
}

func (f *awareFlow) SetExecutionLoop(loop types.ExecutionLoop) { f.loop = loop }

func (f *awareFlow) SetEndReasonReporter(report func(reason any)) { f.report = report }

func (f *awareFlow) EndReason() any { return f.endReason }

func (f *awareFlow) AfterReceiverCreated(receiver types.EventReceiver) { f.created = receiver }

func (f *awareFlow) AfterFlowDestroy() { f.destroyed++ }

func TestContext_Capabilities(t *testing.T) {
	flowValue := &awareFlow{}
	inline := loop.Inline()
	gate := newTurnstile()
	listener := &recorder{}
	ctx, err := New(flowValue, inline, WithStateChangeListener(listener), WithReactors(flowValue, nil))
	require.NoError(t, err)
	assert.Equal(t, inline, flowValue.loop)
	require.NotNil(t, flowValue.report)

	ctx.SetCurrentHandler(gate.locked, "", nil)
	transitions, _ := listener.snapshot()
	assert.Empty(t, transitions)
	assert.Equal(t, []string{"LOCKED"}, flowValue.handlers)

	var unhandled atomic.Int64
	ctx.ProcessEvent(newEvent("coin", &unhandled), nil)
	ctx.ProcessEvent(newEvent("coin", &unhandled), nil)
	assert.Equal(t, []string{"coin", "", "coin", ""}, flowValue.events)
	assert.Equal(t, []string{"LOCKED", "UNLOCKED"}, flowValue.handlers)
	transitions, _ = listener.snapshot()
	assert.Equal(t, []string{"LOCKED-coin->UNLOCKED"}, transitions)

	flowValue.report("reported")
	assert.Equal(t, "reported", ctx.EndReason())
	flowValue.endReason = "provided"
	assert.True(t, ctx.Destroy("done", nil))
	assert.Equal(t, "provided", ctx.EndReason())
	assert.Equal(t, 1, flowValue.destroyed)
}

func TestContext_CallbackFailuresAreContained(t *testing.T) {
	flowValue := &awareFlow{panicOnSet: true}
	gate := newTurnstile()
	ctx, err := New(flowValue, loop.Inline(), WithStateChangeListener(&recorder{failBefore: true}))
	require.NoError(t, err)
	ctx.SetCurrentHandler(gate.locked, "", nil)

	var unhandled atomic.Int64
	assert.True(t, ctx.ProcessEvent(newEvent("coin", &unhandled), nil))
	assert.Equal(t, gate.unlocked, ctx.CurrentHandler())
	assert.False(t, ctx.IsDestroyed())
}

func TestContext_HandlerFault(t *testing.T) {
	var failing *step.Step
	failing = step.New("FAILING").
		Handle("panic", func(args ...any) (types.EventHandler, error) { panic("boom") }).
		Handle("error", func(args ...any) (types.EventHandler, error) { return nil, errors.New("boom") }).
		Handle("ok", func(args ...any) (types.EventHandler, error) { return failing, nil })
	ctx, err := New(failing, loop.Inline())
	require.NoError(t, err)
	ctx.SetCurrentHandler(failing, "", nil)

	var unhandled atomic.Int64
	for _, name := range []string{"panic", "error", "ok"} {
		assert.True(t, ctx.ProcessEvent(newEvent(name, &unhandled), nil))
	}
	assert.EqualValues(t, 2, unhandled.Load())
	assert.False(t, ctx.IsDestroyed())
	assert.Equal(t, failing, ctx.CurrentHandler())
}

func TestContext_NoHandlerDestroysFlow(t *testing.T) {
	ctx, err := New(newTurnstile(), loop.Inline())
	require.NoError(t, err)
	var unhandled atomic.Int64
	assert.True(t, ctx.ProcessEvent(newEvent("coin", &unhandled), nil))
	assert.True(t, ctx.IsDestroyed())
	assert.EqualValues(t, 1, unhandled.Load())
	assert.Equal(t, "coin", ctx.DestroyCause().Event)
}

func TestContext_ArgsHandler(t *testing.T) {
	var seen []any
	var recording *step.Step
	recording = step.New("RECORDING").Handle("record", func(args ...any) (types.EventHandler, error) {
		seen = args
		return recording, nil
	})
	ctx, err := New(recording, loop.Inline())
	require.NoError(t, err)
	ctx.SetCurrentHandler(recording, "", nil)

	var unhandled, after atomic.Int64
	e := &event{name: "record", unhandled: &unhandled, after: &after, prefix: "ctx"}
	assert.True(t, ctx.ProcessEvent(e, []any{1, 2}))
	assert.Equal(t, []any{"ctx", 1, 2}, seen)
	assert.EqualValues(t, 1, after.Load())

	assert.False(t, ctx.ProcessEvent(nil, nil))
}

func TestContext_ReentrantSubmit(t *testing.T) {
	var order []string
	var ctx *Context
	var ping *step.Step
	ping = step.New("PING").
		Handle("first", func(args ...any) (types.EventHandler, error) {
			ctx.ProcessEvent(types.EventName("second"), nil)
			order = append(order, "first")
			return ping, nil
		}).
		Handle("second", func(args ...any) (types.EventHandler, error) {
			order = append(order, "second")
			return ping, nil
		})
	var err error
	ctx, err = New(ping, loop.Inline())
	require.NoError(t, err)
	ctx.SetCurrentHandler(ping, "", nil)
	ctx.ProcessEvent(types.EventName("first"), nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestContext_LoopShutdownKeepsDraining(t *testing.T) {
	pool := loop.NewPool(loop.WithWorkers(2))
	gate := newTurnstile()
	ctx, err := New(gate, pool)
	require.NoError(t, err)
	ctx.SetCurrentHandler(gate.locked, "", nil)

	var unhandled atomic.Int64
	assert.True(t, ctx.ProcessEvent(newEvent("coin", &unhandled), nil))
	assert.True(t, ctx.ProcessEvent(newEvent("coin", &unhandled), nil))
	assert.True(t, ctx.IsActive())
	assert.Equal(t, 2, ctx.PendingCount())

	pool.Shutdown()
	assert.False(t, ctx.IsActive())
	assert.Equal(t, 0, ctx.PendingCount())
	assert.Equal(t, gate.unlocked, ctx.CurrentHandler())

	assert.True(t, ctx.ProcessEvent(newEvent("pass", &unhandled), nil))
	assert.Equal(t, gate.locked, ctx.CurrentHandler())
	assert.EqualValues(t, 0, unhandled.Load())
}
