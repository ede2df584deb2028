// Package base provides Flow, an embeddable struct that gives a flow value the
// common capabilities: the event being dispatched, the current handler, its own
// receiver for self-sent events and an end reason.
package base

import (
	"sync/atomic"

	"github.com/viant/fsmflow/model/types"
)

type handlerRef struct{ handler types.EventHandler }

type valueRef struct{ value any }

type receiverRef struct{ receiver types.EventReceiver }

// Flow is embedded by pointer-receiver flow types
type Flow struct {
	event     atomic.Pointer[string]
	handler   atomic.Pointer[handlerRef]
	endReason atomic.Pointer[valueRef]
	receiver  atomic.Pointer[receiverRef]
	destroyed atomic.Bool
}

// SetEventName records the event being dispatched, "" once dispatch ends
func (f *Flow) SetEventName(event string) {
	f.event.Store(&event)
}

// CurrentEvent returns the event being dispatched or ""
func (f *Flow) CurrentEvent() string {
	if event := f.event.Load(); event != nil {
		return *event
	}
	return ""
}

// SetEventHandler records the committed state
func (f *Flow) SetEventHandler(handler types.EventHandler) {
	f.handler.Store(&handlerRef{handler: handler})
}

// CurrentHandler returns the last committed state or nil
func (f *Flow) CurrentHandler() types.EventHandler {
	if ref := f.handler.Load(); ref != nil {
		return ref.handler
	}
	return nil
}

// SetEndReason sets the value reported when the flow is destroyed
func (f *Flow) SetEndReason(reason any) {
	f.endReason.Store(&valueRef{value: reason})
}

// EndReason returns the value set with SetEndReason
func (f *Flow) EndReason() any {
	if ref := f.endReason.Load(); ref != nil {
		return ref.value
	}
	return nil
}

// AfterReceiverCreated keeps the receiver of this flow
func (f *Flow) AfterReceiverCreated(receiver types.EventReceiver) {
	f.receiver.Store(&receiverRef{receiver: receiver})
}

// AfterFlowDestroy marks the flow destroyed
func (f *Flow) AfterFlowDestroy() {
	f.destroyed.Store(true)
}

// IsDestroyed returns true once the owning flow context was destroyed
func (f *Flow) IsDestroyed() bool {
	return f.destroyed.Load()
}

// SelfReceiver returns the receiver of this flow, nil before creation completes
func (f *Flow) SelfReceiver() types.EventReceiver {
	if ref := f.receiver.Load(); ref != nil {
		return ref.receiver
	}
	return nil
}

// SelfEvent sends event to this flow; it returns false when the flow has no
// receiver yet or the event was rejected.
func (f *Flow) SelfEvent(event string, args ...any) bool {
	receiver := f.SelfReceiver()
	if receiver == nil {
		return false
	}
	return receiver.AcceptEvent(event, args...)
}

var (
	_ types.EventNameAware    = (*Flow)(nil)
	_ types.EventHandlerAware = (*Flow)(nil)
	_ types.EndReasonProvider = (*Flow)(nil)
	_ types.LifecycleListener = (*Flow)(nil)
)
