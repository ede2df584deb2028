// Package clock is the time source for flow timestamps and queued messages.
package clock

import "time"

// NowFunc returns current time. Tests replace it to freeze time.
var NowFunc = time.Now

// Now returns NowFunc().
func Now() time.Time { return NowFunc() }

// Nanos returns the current time as Unix nanoseconds, the form flows keep in atomics.
func Nanos() int64 { return NowFunc().UnixNano() }

// Since returns the time elapsed since t according to NowFunc.
func Since(t time.Time) time.Duration { return NowFunc().Sub(t) }
