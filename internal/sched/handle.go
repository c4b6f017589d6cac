package sched

import (
	"strand/internal/coro"
	"strand/internal/timerq"
)

// Handle is the scheduler's identity object for one task. It wraps the raw
// coroutine thread and carries the scheduler-private timer-task slot used to
// wake the task on timeout. Handles are compared by identity; the scheduler
// never creates two handles over the same thread.
type Handle struct {
	name      string
	thread    *coro.Thread
	timerTask *timerq.Task
}

func newHandle(name string, thread *coro.Thread) *Handle {
	return &Handle{name: name, thread: thread}
}

// Name returns the human-readable label given at spawn, possibly empty.
func (h *Handle) Name() string {
	return h.name
}

// Status reports the underlying coroutine state at call time.
func (h *Handle) Status() coro.Status {
	return h.thread.Status()
}

// IsRunning reports whether the task is executing right now.
func (h *Handle) IsRunning() bool { return h.thread.IsRunning() }

// IsSuspended reports whether the task is parked.
func (h *Handle) IsSuspended() bool { return h.thread.IsSuspended() }

// IsDead reports whether the task body finished.
func (h *Handle) IsDead() bool { return h.thread.IsDead() }
