package container

import (
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/runtime/flow"
	"github.com/viant/fsmflow/service/event"
	"go.uber.org/zap"
)

// receiver is the public handle of a flow
type receiver struct {
	container *Container
	ctx       *flow.Context
}

func (r *receiver) AcceptEvent(name string, args ...any) bool {
	return r.AcceptEventable(types.EventName(name), args...)
}

func (r *receiver) AcceptEventable(e types.Eventable, args ...any) (accepted bool) {
	if e == nil || e.Event() == "" {
		logger.Warn("container: invalid event", zap.Stringer("flow", r.ctx), zap.Error(types.ErrInvalidEvent))
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("container: failed to process event, destroying flow", zap.Stringer("flow", r.ctx), zap.String("event", e.Event()), zap.Error(types.NewPanicError(rec)))
			r.ctx.Destroy(e.Event(), args)
			accepted = false
		}
	}()
	if accepted = r.ctx.ProcessEvent(e, args); !accepted {
		r.container.bypass.Add(1)
		r.container.publish(r.ctx, event.TypeBypassed, event.FlowRecord{Cause: e.Event()})
	}
	return accepted
}

func (r *receiver) String() string {
	return "EventReceiver[" + r.ctx.String() + "]"
}
