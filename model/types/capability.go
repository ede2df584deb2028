package types

// EventNameAware is informed of the event being dispatched; the name is cleared after dispatch.
type EventNameAware interface {
	SetEventName(event string)
}

// EventHandlerAware is informed of every committed state change.
type EventHandlerAware interface {
	SetEventHandler(handler EventHandler)
}

// EndReasonProvider reports why the flow ended; polled once at destroy.
type EndReasonProvider interface {
	EndReason() any
}

// EndReasonAware receives a setter the flow can use to report its end reason at any time.
type EndReasonAware interface {
	SetEndReasonReporter(report func(reason any))
}

// ExecutionLoopAware receives the loop the flow is bound to, at construction.
type ExecutionLoopAware interface {
	SetExecutionLoop(loop ExecutionLoop)
}

// LifecycleListener receives flow level lifecycle hooks.
type LifecycleListener interface {
	AfterReceiverCreated(receiver EventReceiver)
	AfterFlowDestroy()
}
