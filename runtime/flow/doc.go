// Package flow implements the per-flow runtime: a lock-free mailbox drained by a
// single-flight trampoline on the flow's execution loop.
//
// Any goroutine may call ProcessEvent. The first producer that finds the flow
// idle activates it and either drains inline, when it already runs on the loop,
// or submits a drain task to the loop. The active drain keeps dispatching until
// the mailbox is empty, so at most one goroutine runs the flow handlers at any
// time and events are dispatched in the order they were queued.
//
// Destroy takes the mailbox exclusively: once it returns no event can be queued
// and every event still pending has been reported as unhandled.
package flow
