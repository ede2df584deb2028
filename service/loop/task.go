package loop

import (
	"sync/atomic"
	"time"

	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"go.uber.org/zap"
)

// task is a unit of work that can be detached until it starts
type task struct {
	fn       func()
	detached atomic.Bool
	timer    atomic.Pointer[time.Timer]
}

func newTask(fn func()) *task {
	return &task{fn: fn}
}

// Detach prevents the task from running if it has not started yet
func (t *task) Detach() {
	t.detached.Store(true)
	if timer := t.timer.Load(); timer != nil {
		timer.Stop()
	}
}

func (t *task) run(loop string) {
	if t.detached.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("loop: task panicked", zap.String("loop", loop), zap.Error(types.NewPanicError(r)))
		}
	}()
	t.fn()
}

var _ types.Detachable = (*task)(nil)
