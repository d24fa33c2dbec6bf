package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t))
	loop.Start(context.Background())
	defer loop.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	require.NoError(t, loop.Do(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_AfterFuncAndStop(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t))
	loop.Start(context.Background())
	defer loop.Stop()

	fired := make(chan struct{})
	loop.AfterFunc(5*time.Millisecond, func() { close(fired) })

	cancelled := loop.AfterFunc(5*time.Millisecond, func() { t.Error("stopped timer fired") })
	assert.True(t, cancelled.Stop())
	assert.False(t, cancelled.Stop(), "second stop reports nothing pending")

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	// Give the cancelled timer's window time to pass.
	require.NoError(t, loop.Do(context.Background(), func() {}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, loop.Do(context.Background(), func() {}))
}

func TestLoop_DoAfterStop(t *testing.T) {
	loop := NewLoop(zaptest.NewLogger(t))
	loop.Start(context.Background())
	loop.Stop()

	err := loop.Do(context.Background(), func() { t.Error("ran after stop") })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLoop_StopWithoutStart(t *testing.T) {
	loop := NewLoop(nil)
	assert.NotPanics(t, loop.Stop)
}

func TestLoop_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(zaptest.NewLogger(t))
	loop.Start(ctx)
	cancel()
	loop.Stop()
}

func TestManual(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var order []string
	m.AfterFunc(20*time.Millisecond, func() { order = append(order, "t20") })
	m.AfterFunc(10*time.Millisecond, func() {
		order = append(order, "t10")
		m.Post(func() { order = append(order, "posted-by-t10") })
	})
	stopped := m.AfterFunc(15*time.Millisecond, func() { order = append(order, "t15") })
	m.Post(func() { order = append(order, "task") })

	m.RunPending()
	assert.Equal(t, []string{"task"}, order)
	assert.Equal(t, start, m.Now())

	assert.True(t, stopped.Stop())
	m.Advance(12 * time.Millisecond)
	assert.Equal(t, []string{"task", "t10", "posted-by-t10"}, order)
	assert.Equal(t, start.Add(12*time.Millisecond), m.Now())

	m.Advance(time.Second)
	assert.Equal(t, []string{"task", "t10", "posted-by-t10", "t20"}, order)
	assert.Equal(t, 0, m.PendingTimers())
}

func TestManual_ZeroDelayTimersRunOnRunPending(t *testing.T) {
	m := NewManual(time.Now())
	ran := false
	m.AfterFunc(0, func() { ran = true })
	m.RunPending()
	assert.True(t, ran)
}

func TestDebouncer(t *testing.T) {
	m := NewManual(time.Now())
	calls := 0
	d := NewDebouncer(m, 100*time.Millisecond, func() { calls++ })

	t.Run("burst collapses to one trailing call", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			d.Trigger()
			m.Advance(50 * time.Millisecond)
		}
		assert.Equal(t, 0, calls)
		assert.True(t, d.Pending())

		m.Advance(100 * time.Millisecond)
		assert.Equal(t, 1, calls)
		assert.False(t, d.Pending())
	})

	t.Run("flush runs immediately", func(t *testing.T) {
		d.Trigger()
		d.Flush()
		assert.Equal(t, 2, calls)
		m.Advance(time.Second)
		assert.Equal(t, 2, calls, "flushed call must not run again")
	})

	t.Run("cancel drops the call", func(t *testing.T) {
		d.Trigger()
		d.Cancel()
		m.Advance(time.Second)
		assert.Equal(t, 2, calls)
		d.Flush()
		assert.Equal(t, 2, calls)
	})
}
