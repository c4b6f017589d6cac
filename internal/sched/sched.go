// Package sched implements a single-threaded cooperative scheduler that
// multiplexes coroutine tasks over one poller and one timer queue.
//
// Tasks suspend only inside PollerWait and Sleep (or transitively through
// primitives built on them). The run loop blocks in the poller for up to the
// next timer deadline, dispatches readiness to the waiting tasks, then fires
// due timers. Readiness that arrives with no waiter is cached per object and
// satisfies the next wait without touching the OS.
package sched

import (
	"errors"
	"fmt"

	"strand/internal/coro"
	"strand/internal/poll"
	"strand/internal/timerq"
	"strand/internal/trace"
)

var (
	// ErrNotStarted reports a suspending call before RunLoop or after Stop.
	ErrNotStarted = errors.New("scheduler is not started")
	// ErrOutsideTask reports a suspending call from outside a scheduler task.
	ErrOutsideTask = errors.New("not called inside a scheduler task")
	// ErrStopped is delivered to tasks force-resumed during teardown.
	ErrStopped = errors.New("scheduler stopped")
	// ErrEvents reports an error readiness event on the waited object.
	ErrEvents = errors.New("events error")
)

// TaskFunc is a task body.
type TaskFunc func(args ...any)

// resumeMsg is the value the scheduler delivers to a suspended task: events
// on readiness, zero events on timeout, or an error on stop/error readiness.
type resumeMsg struct {
	events poll.Events
	err    error
}

func decodeResume(vals []any) resumeMsg {
	if len(vals) == 0 {
		return resumeMsg{}
	}
	msg, ok := vals[0].(resumeMsg)
	if !ok {
		return resumeMsg{}
	}
	return msg
}

type readyTask struct {
	co   *Handle
	args []any
}

// pollerEntry is the per-object bookkeeping: the tasks waiting on each
// direction, the events registered with the poller, and readiness observed
// but not yet consumed by a waiter.
type pollerEntry struct {
	coRecv     *Handle
	coSend     *Handle
	eventsWait poll.Events
	eventsSave poll.Events
}

// Scheduler owns the task table, the ready queue, the suspended set and the
// per-object poller bookkeeping. All entry points must be confined to one
// owner goroutine; Stop is the only operation safe from elsewhere.
type Scheduler struct {
	poller poll.Poller
	timer  *timerq.Queue
	tracer trace.Tracer

	tasks      map[*coro.Thread]*Handle
	taskCount  int
	ready      []readyTask
	suspended  map[*Handle]struct{}
	pollerData map[poll.Object]*pollerEntry

	started           bool
	supportsEdgeClear bool

	pollTimeoutMS int64
	timerNow      func() int64
	loopErr       error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTracer attaches a tracer to the scheduler.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithPollTimeout sets the poller wait bound used when the timer queue is
// idle. Values of zero or less keep the default.
func WithPollTimeout(ms int64) Option {
	return func(s *Scheduler) {
		if ms > 0 {
			s.pollTimeoutMS = ms
		}
	}
}

// WithTimerNow replaces the timer clock, letting tests drive virtual time.
func WithTimerNow(now func() int64) Option {
	return func(s *Scheduler) {
		s.timerNow = now
	}
}

// New constructs a scheduler over the given poller. The timer queue is
// created lazily on the first timed operation.
func New(poller poll.Poller, opts ...Option) *Scheduler {
	s := &Scheduler{
		poller:     poller,
		tracer:     trace.Nop,
		tasks:      make(map[*coro.Thread]*Handle),
		suspended:  make(map[*Handle]struct{}),
		pollerData: make(map[poll.Object]*pollerEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) timerQueue() *timerq.Queue {
	if s.timer == nil {
		if s.timerNow != nil {
			s.timer = timerq.New(timerq.WithNow(s.timerNow))
		} else {
			s.timer = timerq.New()
		}
	}
	return s.timer
}

// CoStart spawns an anonymous task. See CoStartNamed.
func (s *Scheduler) CoStart(fn TaskFunc, args ...any) (*Handle, error) {
	return s.CoStartNamed("", fn, args...)
}

// CoStartNamed spawns a task running fn(args...). Before the loop starts the
// task is queued and resumed at loop start in spawn order; once the loop is
// running the task is resumed immediately. The handle is returned even when
// the immediate resume fails.
func (s *Scheduler) CoStartNamed(name string, fn TaskFunc, args ...any) (*Handle, error) {
	var h *Handle
	thread := coro.Create(func(argv ...any) {
		defer s.finishTask(h)
		fn(argv...)
	})
	h = newHandle(name, thread)
	s.tasks[thread] = h
	s.taskCount++
	s.tracePoint(trace.ScopeTask, "spawn", h, "")
	if s.started {
		return h, s.CoResume(h, args...)
	}
	s.ready = append(s.ready, readyTask{co: h, args: args})
	return h, nil
}

func (s *Scheduler) finishTask(h *Handle) {
	delete(s.tasks, h.thread)
	if s.taskCount > 0 {
		s.taskCount--
	}
	s.tracePoint(trace.ScopeTask, "exit", h, "")
}

// CoResume resumes h with the given values; they become the return of the
// matching CoSuspend. A non-nil error reports an aborted coroutine.
func (s *Scheduler) CoResume(h *Handle, vals ...any) error {
	if _, err := coro.Resume(h.thread, vals...); err != nil {
		if h.name != "" {
			return fmt.Errorf("task %s: %w", h.name, err)
		}
		return err
	}
	return nil
}

// CoSuspend yields the current task; the values passed to the matching
// CoResume are returned. Must be called from inside a scheduler task.
func (s *Scheduler) CoSuspend(vals ...any) []any {
	return coro.Yield(vals...)
}

// CoRunning returns the handle of the currently running task, or nil when
// called outside any scheduler task.
func (s *Scheduler) CoRunning() *Handle {
	thread := coro.Running()
	if thread == nil {
		return nil
	}
	return s.tasks[thread]
}

// CoTasks returns a snapshot of the live task handles.
func (s *Scheduler) CoTasks() []*Handle {
	out := make([]*Handle, 0, len(s.tasks))
	for _, h := range s.tasks {
		out = append(out, h)
	}
	return out
}

// CoCount returns the number of live tasks.
func (s *Scheduler) CoCount() int {
	return s.taskCount
}

// Started reports whether the run loop is active.
func (s *Scheduler) Started() bool {
	return s.started
}

func (s *Scheduler) tracePoint(scope trace.Scope, name string, co *Handle, detail string) {
	if !s.tracer.Enabled() {
		return
	}
	task := ""
	if co != nil {
		task = co.Name()
	}
	s.tracer.Emit(trace.Point(scope, name, task, detail))
}
