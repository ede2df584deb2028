package loop

import (
	"time"

	"github.com/viant/fsmflow/model/types"
)

type inline struct{}

// Inline returns a loop that runs submitted tasks synchronously on the caller.
// Scheduled tasks run on a timer goroutine.
func Inline() types.ExecutionLoop {
	return inline{}
}

func (inline) InLoop() bool {
	return true
}

// Submit runs fn before returning, so the returned handle has nothing left to detach
func (inline) Submit(fn func()) types.Detachable {
	newTask(fn).run("inline")
	return types.DetachFunc(nil)
}

func (inline) Schedule(fn func(), delay time.Duration) types.Detachable {
	t := newTask(fn)
	t.timer.Store(time.AfterFunc(delay, func() { t.run("inline") }))
	return t
}
