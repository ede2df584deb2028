// Package step provides Step, the copy-on-write event table used to describe
// flow states:
//
//	locked := step.New("LOCKED").Handle("coin", onCoin).Freeze()
//
// A transition returning nil ends the flow; returning types.CurrentState keeps
// the flow in the current step without a transition notification.
package step
