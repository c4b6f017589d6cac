package sched

import (
	"errors"

	"strand/internal/poll"
	"strand/internal/trace"
)

// defaultPollTimeoutMS bounds a poller wait when the timer queue is idle so
// Stop from another thread is observed promptly even without a spank.
const defaultPollTimeoutMS = int64(1000)

// RunLoop drains the ready queue, then blocks in the poller and dispatches
// readiness and timer fires until every task finishes, Stop is called, or a
// fatal error occurs. On exit every still-suspended task is force-resumed
// with ErrStopped so it unwinds, and remaining timers are killed. The first
// loop error wins over teardown errors.
func (s *Scheduler) RunLoop() error {
	if s.started {
		return errors.New("run loop already started")
	}
	s.started = true
	s.loopErr = nil
	s.supportsEdgeClear = s.poller.Support(poll.ObjectSock, poll.EventClear)
	s.tracePoint(trace.ScopeLoop, "start", nil, "")

	var loopErr error

	ready := s.ready
	s.ready = nil
	for _, item := range ready {
		if err := s.CoResume(item.co, item.args...); err != nil {
			loopErr = err
			break
		}
	}

	for loopErr == nil && s.started && s.taskCount > 0 {
		timeout := defaultPollTimeoutMS
		if s.pollTimeoutMS > 0 {
			timeout = s.pollTimeoutMS
		}
		if s.timer != nil {
			if delay, ok := s.timer.Delay(); ok {
				timeout = delay
			}
		}

		count, readyList, err := s.poller.Wait(timeout)
		if err != nil {
			loopErr = err
			break
		}
		_ = count

		for _, r := range readyList {
			if err := r.CB.Dispatch(r.Obj, r.Events); err != nil {
				loopErr = err
				break
			}
		}
		if loopErr != nil {
			break
		}

		if s.timer != nil {
			s.timer.Next()
		}
		if s.loopErr != nil {
			loopErr = s.loopErr
			break
		}
	}

	stopErr := s.shutdown()
	s.tracePoint(trace.ScopeLoop, "end", nil, "")
	if loopErr != nil {
		return loopErr
	}
	return stopErr
}

// shutdown cancels every suspended task. Poller bookkeeping is dropped
// first, then the suspended set, so no entry outlives its handle; the task
// table empties itself as the cancelled tasks unwind.
func (s *Scheduler) shutdown() error {
	s.started = false

	s.pollerData = make(map[poll.Object]*pollerEntry)

	pending := make([]*Handle, 0, len(s.suspended))
	for co := range s.suspended {
		pending = append(pending, co)
	}
	s.suspended = make(map[*Handle]struct{})

	var stopErr error
	for _, co := range pending {
		if t := co.timerTask; t != nil {
			t.Cancel = true
			co.timerTask = nil
		}
		if !co.IsSuspended() {
			continue
		}
		s.tracePoint(trace.ScopeTask, "cancel", co, "")
		if err := s.CoResume(co, resumeMsg{err: ErrStopped}); err != nil && stopErr == nil {
			stopErr = err
		}
	}

	if s.timer != nil {
		s.timer.Kill()
		s.timer = nil
	}
	return stopErr
}

// Stop ends the run loop and wakes an in-flight poller wait. Idempotent;
// safe to call from a task or, as far as the poller allows, from another
// thread.
func (s *Scheduler) Stop() {
	s.started = false
	s.poller.Spank()
}
