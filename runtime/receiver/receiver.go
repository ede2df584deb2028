// Package receiver provides composition helpers for event receivers.
package receiver

import (
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"go.uber.org/zap"
)

type combined []types.EventReceiver

// Combine returns a receiver forwarding every event to all receivers; it reports
// true when at least one of them accepted the event.
func Combine(receivers ...types.EventReceiver) types.EventReceiver {
	ret := make(combined, 0, len(receivers))
	for _, r := range receivers {
		if r != nil {
			ret = append(ret, r)
		}
	}
	return ret
}

func (c combined) AcceptEvent(event string, args ...any) bool {
	return c.AcceptEventable(types.EventName(event), args...)
}

func (c combined) AcceptEventable(event types.Eventable, args ...any) bool {
	accepted := false
	for _, r := range c {
		if accept(r, event, args) {
			accepted = true
		}
	}
	return accepted
}

func accept(r types.EventReceiver, event types.Eventable, args []any) (accepted bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("receiver: failed to accept event", zap.String("event", event.Event()), zap.Error(types.NewPanicError(rec)))
			accepted = false
		}
	}()
	return r.AcceptEventable(event, args...)
}

type async struct {
	target types.EventReceiver
	loop   types.ExecutionLoop
	args   types.ArgsHandler
}

// Async returns a receiver that forwards events to target on loop. When called
// off the loop the event is submitted and true is returned immediately. The
// optional args handler snapshots args before forwarding and releases them after.
func Async(target types.EventReceiver, loop types.ExecutionLoop, args types.ArgsHandler) types.EventReceiver {
	return &async{target: target, loop: loop, args: args}
}

func (a *async) AcceptEvent(event string, args ...any) bool {
	return a.AcceptEventable(types.EventName(event), args...)
}

func (a *async) AcceptEventable(event types.Eventable, args ...any) bool {
	safe := args
	if a.args != nil {
		var err error
		if safe, err = a.args.BeforeInvoke(args); err != nil {
			logger.Warn("receiver: failed to prepare args", zap.String("event", event.Event()), zap.Error(err))
			return false
		}
	}
	if a.loop.InLoop() {
		defer a.release(event, safe)
		return accept(a.target, event, safe)
	}
	a.loop.Submit(func() {
		defer a.release(event, safe)
		accept(a.target, event, safe)
	})
	return true
}

func (a *async) release(event types.Eventable, args []any) {
	if a.args == nil {
		return
	}
	if err := a.args.AfterInvoke(args); err != nil {
		logger.Warn("receiver: failed to release args", zap.String("event", event.Event()), zap.Error(err))
	}
}
