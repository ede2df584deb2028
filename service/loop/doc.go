// Package loop provides execution loop implementations flows are drained on.
//
// Inline runs every task on the calling goroutine. Pool runs tasks on a fixed
// set of worker goroutines consuming a shared unbounded queue; a pool with one
// worker is a serial loop.
package loop
