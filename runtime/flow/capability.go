package flow

import (
	"reflect"

	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"go.uber.org/zap"
)

// capabilities holds the callbacks the flow and its reactors opted into,
// resolved once at construction.
type capabilities struct {
	eventNameAware    []types.EventNameAware
	eventHandlerAware []types.EventHandlerAware
	endReasonProvider []types.EndReasonProvider
	endReasonAware    []types.EndReasonAware
	loopAware         []types.ExecutionLoopAware
	lifecycle         []types.LifecycleListener
	stateChange       []types.StateChangeListener
}

func newCapabilities(candidates ...any) *capabilities {
	ret := &capabilities{}
	seen := make(map[any]bool, len(candidates))
	for _, candidate := range candidates {
		if candidate == nil {
			continue
		}
		if reflect.TypeOf(candidate).Comparable() {
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
		}
		if v, ok := candidate.(types.EventNameAware); ok {
			ret.eventNameAware = append(ret.eventNameAware, v)
		}
		if v, ok := candidate.(types.EventHandlerAware); ok {
			ret.eventHandlerAware = append(ret.eventHandlerAware, v)
		}
		if v, ok := candidate.(types.EndReasonProvider); ok {
			ret.endReasonProvider = append(ret.endReasonProvider, v)
		}
		if v, ok := candidate.(types.EndReasonAware); ok {
			ret.endReasonAware = append(ret.endReasonAware, v)
		}
		if v, ok := candidate.(types.ExecutionLoopAware); ok {
			ret.loopAware = append(ret.loopAware, v)
		}
		if v, ok := candidate.(types.LifecycleListener); ok {
			ret.lifecycle = append(ret.lifecycle, v)
		}
		if v, ok := candidate.(types.StateChangeListener); ok {
			ret.stateChange = append(ret.stateChange, v)
		}
	}
	return ret
}

// guard runs fn and logs any panic raised by user code
func guard(what string, flow any, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("flow: callback panicked", zap.String("callback", what), zap.Any("flow", flow), zap.Error(types.NewPanicError(r)))
		}
	}()
	if err := fn(); err != nil {
		logger.Warn("flow: callback failed", zap.String("callback", what), zap.Any("flow", flow), zap.Error(err))
	}
}

func (c *capabilities) setEventName(flow any, event string) {
	for _, aware := range c.eventNameAware {
		guard("SetEventName", flow, func() error {
			aware.SetEventName(event)
			return nil
		})
	}
}

func (c *capabilities) setEventHandler(flow any, handler types.EventHandler) {
	for _, aware := range c.eventHandlerAware {
		guard("SetEventHandler", flow, func() error {
			aware.SetEventHandler(handler)
			return nil
		})
	}
}

func (c *capabilities) setLoop(flow any, loop types.ExecutionLoop) {
	for _, aware := range c.loopAware {
		guard("SetExecutionLoop", flow, func() error {
			aware.SetExecutionLoop(loop)
			return nil
		})
	}
}

func (c *capabilities) setEndReasonReporter(flow any, report func(reason any)) {
	for _, aware := range c.endReasonAware {
		guard("SetEndReasonReporter", flow, func() error {
			aware.SetEndReasonReporter(report)
			return nil
		})
	}
}

// endReason returns the last non-nil reason reported by a provider
func (c *capabilities) endReason(flow any) any {
	var ret any
	for _, provider := range c.endReasonProvider {
		guard("EndReason", flow, func() error {
			if reason := provider.EndReason(); reason != nil {
				ret = reason
			}
			return nil
		})
	}
	return ret
}

func (c *capabilities) afterReceiverCreated(flow any, receiver types.EventReceiver) {
	for _, listener := range c.lifecycle {
		guard("AfterReceiverCreated", flow, func() error {
			listener.AfterReceiverCreated(receiver)
			return nil
		})
	}
}

func (c *capabilities) afterFlowDestroy(flow any) {
	for _, listener := range c.lifecycle {
		guard("AfterFlowDestroy", flow, func() error {
			listener.AfterFlowDestroy()
			return nil
		})
	}
}
