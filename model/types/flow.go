package types

import "time"

// FlowContext is the read-only view of a flow runtime state.
type FlowContext interface {
	ID() int64
	Name() string
	Flow() any
	CurrentHandler() EventHandler
	EndReason() any
	CreateTime() time.Time
	LastModify() time.Time
	// TimeToActive returns the accumulated time the flow spent draining its mailbox
	TimeToActive() time.Duration
	TimeToLive() time.Duration
	IsDestroyed() bool
}

// StateChangeListener observes transitions and destruction of flows owned by a container.
type StateChangeListener interface {
	BeforeFlowChangeTo(ctx FlowContext, next EventHandler, causeEvent string, causeArgs []any) error
	AfterFlowDestroy(ctx FlowContext) error
}

// ReactorBuilder contributes auxiliary reactors to every flow created by a container.
// A reactor may implement any capability interface of this package.
type ReactorBuilder interface {
	BuildReactors(ctx FlowContext) []any
}

// FlowSource produces a new flow value together with the state it starts in.
type FlowSource interface {
	Flow() any
	InitHandler(flow any) EventHandler
}
