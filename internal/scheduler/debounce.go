// internal/scheduler/debounce.go
package scheduler

import "time"

// Debouncer groups bursts of Trigger calls into a single trailing run of fn.
// It is not safe for concurrent use; call it from the scheduler's tasks.
type Debouncer struct {
	sched Scheduler
	delay time.Duration
	fn    func()
	timer Timer
}

// NewDebouncer creates a debouncer that runs fn delay after the last Trigger.
func NewDebouncer(sched Scheduler, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{sched: sched, delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.TriggerAfter(d.delay)
}

// TriggerAfter is Trigger with an explicit delay for this burst.
func (d *Debouncer) TriggerAfter(delay time.Duration) {
	d.Cancel()
	var t Timer
	t = d.sched.AfterFunc(delay, func() {
		if d.timer != t {
			return
		}
		d.timer = nil
		d.fn()
	})
	d.timer = t
}

// Flush runs fn now if a call is pending.
func (d *Debouncer) Flush() {
	if d.timer == nil {
		return
	}
	d.Cancel()
	d.fn()
}

// Cancel drops a pending call.
func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool { return d.timer != nil }
