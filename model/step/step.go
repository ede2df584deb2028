package step

import (
	"fmt"
	"maps"
	"slices"

	"github.com/viant/fsmflow/internal/idgen"
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"go.uber.org/zap"
)

// Transition handles one event; the returned handler becomes the flow state.
// Returning nil ends the flow, returning types.CurrentState keeps the current state.
type Transition func(args ...any) (types.EventHandler, error)

// Step is an event table describing one flow state.
//
// A frozen step is immutable: Handle and Rename on a frozen step return a modified,
// unfrozen copy and leave the receiver untouched, so a frozen step can be shared by
// many flows.
type Step struct {
	name     string
	handlers map[string]Transition
	frozen   bool
}

// New creates an empty, unfrozen step
func New(name string) *Step {
	return &Step{name: name, handlers: map[string]Transition{}}
}

// UniqueEvent returns an event name that is unique within the process
func UniqueEvent(prefix string) string {
	return idgen.WithPrefix(prefix)
}

// Name returns step name
func (s *Step) Name() string {
	return s.name
}

// IsFrozen returns true if the step is immutable
func (s *Step) IsFrozen() bool {
	return s.frozen
}

// Events returns sorted names of registered events
func (s *Step) Events() []string {
	return slices.Sorted(maps.Keys(s.handlers))
}

// Accepts returns true if event has a registered transition
func (s *Step) Accepts(event string) bool {
	_, ok := s.handlers[event]
	return ok
}

// Rename sets step name
func (s *Step) Rename(name string) *Step {
	if name == s.name {
		return s
	}
	if s.frozen {
		return s.clone().Rename(name)
	}
	s.name = name
	return s
}

// Handle registers fn for event
func (s *Step) Handle(event string, fn Transition) *Step {
	if event == "" || fn == nil {
		logger.Warn("step: ignoring handler registration", zap.String("step", s.name), zap.String("event", event), zap.Bool("nilTransition", fn == nil))
		return s
	}
	if s.frozen {
		return s.clone().Handle(event, fn)
	}
	s.handlers[event] = fn
	return s
}

// HandleAll registers the same fn for every event
func (s *Step) HandleAll(fn Transition, events ...string) *Step {
	ret := s
	for _, event := range events {
		ret = ret.Handle(event, fn)
	}
	return ret
}

// Freeze makes the step immutable
func (s *Step) Freeze() *Step {
	s.frozen = true
	return s
}

func (s *Step) clone() *Step {
	return &Step{name: s.name, handlers: maps.Clone(s.handlers)}
}

// Process dispatches event to its registered transition
func (s *Step) Process(event string, args []any) (result types.Result) {
	fn, ok := s.handlers[event]
	if !ok {
		if logger.Enabled(zap.DebugLevel) {
			logger.Debug("step: event not accepted, ignoring", zap.String("step", s.name), zap.String("event", event))
		}
		return types.Unhandled(s)
	}
	defer func() {
		if r := recover(); r != nil {
			err := types.NewPanicError(r)
			logger.Error("step: transition panicked", zap.String("step", s.name), zap.String("event", event), zap.Error(err))
			result = types.Fault(s, err)
		}
	}()
	next, err := fn(args...)
	if err != nil {
		logger.Error("step: transition failed", zap.String("step", s.name), zap.String("event", event), zap.Error(err))
		return types.Fault(s, err)
	}
	switch {
	case next == nil:
		return types.Terminate()
	case types.IsCurrentState(next):
		return types.Continue(s)
	}
	return types.Continue(next)
}

// String returns step description
func (s *Step) String() string {
	return fmt.Sprintf("Step[%s]%v", s.name, s.Events())
}
