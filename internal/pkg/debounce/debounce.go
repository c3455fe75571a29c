// Package debounce runs a function once a burst of triggers has gone quiet.
package debounce

import (
	"sync"
	"time"
)

// Task calls fn after delay has elapsed without a new Trigger. Each Trigger
// restarts the wait. A fired timer that was superseded by Cancel or another
// Trigger is discarded, so fn never runs for a stale generation.
type Task struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	gen     uint64
	pending bool
	stopped bool
	running sync.WaitGroup
}

// New creates an idle task.
func New(delay time.Duration, fn func()) *Task {
	return &Task{delay: delay, fn: fn}
}

// Trigger (re)starts the wait. It is a no-op once the task is stopped.
func (t *Task) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = true
	t.timer = time.AfterFunc(t.delay, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if t.stopped || gen != t.gen || !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.running.Add(1)
	t.mu.Unlock()

	defer t.running.Done()
	t.fn()
}

// Cancel drops the pending call, if any. Safe to call repeatedly.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *Task) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.pending = false
}

// Flush runs fn now on the caller's goroutine if a call is pending and
// reports whether it did.
func (t *Task) Flush() bool {
	t.mu.Lock()
	if t.stopped || !t.pending {
		t.mu.Unlock()
		return false
	}
	t.cancelLocked()
	t.running.Add(1)
	t.mu.Unlock()

	defer t.running.Done()
	t.fn()
	return true
}

// Pending reports whether a call is scheduled.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Stop cancels the pending call, refuses further triggers and waits for a
// running fn to return. It must not be called from inside fn.
func (t *Task) Stop() {
	t.mu.Lock()
	t.cancelLocked()
	t.stopped = true
	t.mu.Unlock()
	t.running.Wait()
}
