// internal/scheduler/scheduler.go
package scheduler

import "time"

// Scheduler runs every task of a frame on one logical thread. Tasks posted
// from any goroutine run one at a time, in order, on the scheduler.
type Scheduler interface {
	Now() time.Time
	// Post queues fn to run after the current task.
	Post(fn func())
	// AfterFunc runs fn on the scheduler once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from running. It reports whether the call was still pending.
	Stop() bool
}
