package event

import (
	"time"

	"github.com/viant/fsmflow/internal/clock"
)

// Type names a flow lifecycle occurrence
type Type string

const (
	// TypeCreated is published once a flow has been registered
	TypeCreated Type = "created"
	// TypeTransition is published before a flow changes state
	TypeTransition Type = "transition"
	// TypeDestroyed is published after a flow has been torn down
	TypeDestroyed Type = "destroyed"
	// TypeBypassed is published when an event is offered to a destroyed flow
	TypeBypassed Type = "bypassed"
)

// Context identifies the flow an event is about
type Context struct {
	Container string `json:"container,omitempty"`
	FlowID    int64  `json:"flowId"`
	FlowName  string `json:"flowName"`
	EventType Type   `json:"eventType"`
}

// Event wraps published data with its context
type Event[T any] struct {
	Context   *Context       `json:"context"`
	CreatedAt time.Time      `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Data      T              `json:"data"`
}

// FlowRecord is the payload of flow lifecycle events
type FlowRecord struct {
	From         string        `json:"from,omitempty"`
	State        string        `json:"state,omitempty"`
	Cause        string        `json:"cause,omitempty"`
	EndReason    any           `json:"endReason,omitempty"`
	TimeToLive   time.Duration `json:"timeToLive,omitempty"`
	TimeToActive time.Duration `json:"timeToActive,omitempty"`
}

// NewEvent creates an event
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]any),
		Data:      data,
	}
}
