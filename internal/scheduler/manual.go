// internal/scheduler/manual.go
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler driven by the caller. Time only moves on
// Advance; posted tasks and due timers run on RunPending and Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers timerHeap
	seq    uint64
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

type manualTimer struct {
	m       *Manual
	when    time.Time
	seq     uint64
	fn      func()
	index   int
	pending bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if !t.pending {
		return false
	}
	t.pending = false
	heap.Remove(&t.m.timers, t.index)
	return true
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, when: m.now.Add(d), seq: m.seq, fn: fn, pending: true}
	heap.Push(&m.timers, t)
	return t
}

// step runs one posted task, or else one timer due at or before limit.
func (m *Manual) step(limit time.Time) bool {
	m.mu.Lock()
	if len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
		return true
	}
	if len(m.timers) > 0 && !m.timers[0].when.After(limit) {
		t := heap.Pop(&m.timers).(*manualTimer)
		t.pending = false
		if t.when.After(m.now) {
			m.now = t.when
		}
		m.mu.Unlock()
		t.fn()
		return true
	}
	m.mu.Unlock()
	return false
}

// RunPending runs posted tasks and timers that are already due, until none are left.
func (m *Manual) RunPending() {
	for m.step(m.Now()) {
	}
}

// Advance moves the clock forward by d, running everything that falls due on the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for m.step(target) {
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// PendingTimers reports how many timers have not fired yet.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// timerHeap orders timers by deadline, then by creation.
type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
