package sched

import (
	"fmt"

	"strand/internal/poll"
	"strand/internal/trace"
)

// PollerWait suspends the current task until obj reports one of the
// requested events, the timeout elapses, or an error occurs. It returns the
// subset of events that became ready, zero events on timeout, and a non-nil
// error on error readiness, contract violation, or scheduler stop. A
// timeoutMS of zero or less means wait forever.
//
// Readiness cached from a previous delivery satisfies the wait immediately
// without suspending or touching the poller.
func (s *Scheduler) PollerWait(obj poll.Object, events poll.Events, timeoutMS int64) (poll.Events, error) {
	running := s.CoRunning()
	if running == nil {
		return 0, fmt.Errorf("poller_wait: %w", ErrOutsideTask)
	}
	if !s.started {
		return 0, fmt.Errorf("poller_wait: %w", ErrNotStarted)
	}
	kind := obj.Kind()
	if kind != poll.ObjectSock && kind != poll.ObjectPipe {
		return 0, fmt.Errorf("poller_wait: cannot wait on %s object", kind)
	}

	entry := s.pollerData[obj]
	if entry == nil {
		entry = &pollerEntry{}
		s.pollerData[obj] = entry
	}

	// Edge-triggered sockets keep the kernel registration hot; the cache
	// below replays readiness the OS will not report again.
	waitEvents := events
	if kind == poll.ObjectSock && s.supportsEdgeClear {
		waitEvents = waitEvents.Union(poll.EventClear)
	}

	if !entry.eventsWait.IsZero() {
		if !entry.eventsSave.Intersect(events).IsZero() {
			if entry.eventsSave.Has(poll.EventError) {
				entry.eventsSave = 0
				return 0, fmt.Errorf("poller_wait: %w", ErrEvents)
			}
			got := entry.eventsSave.Intersect(events)
			entry.eventsSave = entry.eventsSave.Diff(got)
			s.tracePoint(trace.ScopePoller, "cache_hit", running, "events="+got.String())
			return got, nil
		}

		// Reconcile the kernel registration: drop directions nobody waits
		// on anymore, add ours, and only issue a modify when a new bit
		// actually appears.
		newWait := entry.eventsWait
		if entry.coRecv == nil {
			newWait = newWait.Diff(poll.EventRecv)
		}
		if entry.coSend == nil {
			newWait = newWait.Diff(poll.EventSend)
		}
		newWait = newWait.Union(waitEvents)
		if !newWait.Diff(entry.eventsWait).IsZero() {
			if err := s.poller.Modify(obj, newWait, s.dispatch()); err != nil {
				return 0, fmt.Errorf("poller_wait: %w", err)
			}
		}
		waitEvents = newWait
	} else {
		if err := s.poller.Insert(obj, waitEvents, s.dispatch()); err != nil {
			if entry.eventsSave.IsZero() && entry.coRecv == nil && entry.coSend == nil {
				delete(s.pollerData, obj)
			}
			return 0, fmt.Errorf("poller_wait: %w", err)
		}
	}

	if timeoutMS > 0 {
		running.timerTask = s.timerQueue().Post(func(cancelled bool) {
			if cancelled || !running.IsSuspended() {
				return
			}
			running.timerTask = nil
			if entry.coRecv == running {
				entry.coRecv = nil
			}
			if entry.coSend == running {
				entry.coSend = nil
			}
			delete(s.suspended, running)
			s.tracePoint(trace.ScopeTimer, "wait_timeout", running, "")
			if err := s.CoResume(running, resumeMsg{}); err != nil && s.loopErr == nil {
				s.loopErr = err
			}
		}, timeoutMS)
	}

	if events.Has(poll.EventRecv) {
		entry.coRecv = running
	}
	if events.Has(poll.EventSend) {
		entry.coSend = running
	}
	entry.eventsWait = waitEvents
	entry.eventsSave = 0

	s.suspended[running] = struct{}{}
	s.tracePoint(trace.ScopeSuspend, "poller_wait", running, "events="+events.String())
	msg := decodeResume(s.CoSuspend())
	return msg.events, msg.err
}

// PollerCancel removes obj from the poller and forgets its bookkeeping. Any
// task still waiting on the object is resumed later by a pending timer or by
// loop teardown. Unknown objects are a no-op.
func (s *Scheduler) PollerCancel(obj poll.Object) error {
	entry := s.pollerData[obj]
	if entry == nil {
		return nil
	}
	if !entry.eventsWait.IsZero() {
		if err := s.poller.Remove(obj); err != nil {
			return fmt.Errorf("poller_cancel: %w", err)
		}
	}
	delete(s.pollerData, obj)
	return nil
}

// Sleep suspends the current task for ms milliseconds. ms of zero or less
// returns immediately.
func (s *Scheduler) Sleep(ms int64) error {
	running := s.CoRunning()
	if running == nil {
		return fmt.Errorf("sleep: %w", ErrOutsideTask)
	}
	if !s.started {
		return fmt.Errorf("sleep: %w", ErrNotStarted)
	}
	if ms <= 0 {
		return nil
	}

	running.timerTask = s.timerQueue().Post(func(cancelled bool) {
		if cancelled || !running.IsSuspended() {
			return
		}
		running.timerTask = nil
		delete(s.suspended, running)
		s.tracePoint(trace.ScopeTimer, "sleep_fire", running, "")
		if err := s.CoResume(running, resumeMsg{}); err != nil && s.loopErr == nil {
			s.loopErr = err
		}
	}, ms)

	s.suspended[running] = struct{}{}
	s.tracePoint(trace.ScopeSuspend, "sleep", running, fmt.Sprintf("ms=%d", ms))
	msg := decodeResume(s.CoSuspend())
	return msg.err
}
