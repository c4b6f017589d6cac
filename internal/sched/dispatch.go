package sched

import (
	"fmt"

	"strand/internal/poll"
	"strand/internal/trace"
)

// pollerCallback routes poller readiness back into the scheduler. The poller
// hands it back verbatim from Wait, so the loop dispatches without knowing
// who registered the object.
type pollerCallback struct {
	s *Scheduler
}

func (cb pollerCallback) Dispatch(obj poll.Object, events poll.Events) error {
	return cb.s.pollerEventsCB(obj, events)
}

func (s *Scheduler) dispatch() poll.Callback {
	return pollerCallback{s: s}
}

// pollerEventsCB decodes one readiness delivery for obj and resumes the
// waiting task(s). EOF is sticky: the registered directions are merged into
// the readiness cache so the next wait on the object completes from cache.
// Readiness nobody consumed is cached for the next waiter.
func (s *Scheduler) pollerEventsCB(obj poll.Object, events poll.Events) error {
	entry := s.pollerData[obj]
	if entry == nil {
		// The object was cancelled between readiness and dispatch.
		return nil
	}
	s.tracePoint(trace.ScopePoller, "dispatch", nil, fmt.Sprintf("obj=%s events=%s", obj.Kind(), events))

	if events.Has(poll.EventEOF) {
		events = events.Diff(poll.EventEOF)
		entry.eventsSave = entry.eventsSave.Union(
			entry.eventsWait.Intersect(poll.EventRecv.Union(poll.EventSend)))
	}

	var coRecv, coSend *Handle
	if events.Has(poll.EventRecv) {
		coRecv = entry.coRecv
	}
	if events.Has(poll.EventSend) {
		coSend = entry.coSend
	}

	resumed := false
	if coRecv != nil && coRecv == coSend {
		entry.coRecv = nil
		entry.coSend = nil
		return s.pollerResumeCo(coRecv, events)
	}
	if coRecv != nil {
		entry.coRecv = nil
		if err := s.pollerResumeCo(coRecv, events.Diff(poll.EventSend)); err != nil {
			return err
		}
		events = events.Diff(poll.EventRecv)
		resumed = true
	}
	if coSend != nil {
		entry.coSend = nil
		if err := s.pollerResumeCo(coSend, events.Diff(poll.EventRecv)); err != nil {
			return err
		}
		events = events.Diff(poll.EventSend)
		resumed = true
	}

	// Carry unconsumed readiness. An error event travels with whoever was
	// resumed; only when nobody consumed anything does it go sticky.
	remaining := events.Intersect(poll.EventRecv.Union(poll.EventSend))
	if !resumed {
		remaining = remaining.Union(events.Intersect(poll.EventError))
	}
	if !remaining.IsZero() {
		entry.eventsSave = entry.eventsSave.Union(remaining)
	}
	return nil
}

// pollerResumeCo wakes one suspended waiter: cancels its pending timeout,
// removes it from the suspended set, and resumes it with the events, or with
// an error when the events carry an error or the scheduler is stopping.
func (s *Scheduler) pollerResumeCo(co *Handle, events poll.Events) error {
	if t := co.timerTask; t != nil {
		t.Cancel = true
		co.timerTask = nil
	}
	if !co.IsSuspended() {
		return fmt.Errorf("cannot resume task %q: not suspended", co.Name())
	}
	delete(s.suspended, co)

	msg := resumeMsg{events: events.Diff(poll.EventClear)}
	if events.Has(poll.EventError) {
		msg = resumeMsg{err: fmt.Errorf("poller_wait: %w", ErrEvents)}
	}
	if !s.started {
		msg = resumeMsg{err: fmt.Errorf("poller_wait: %w", ErrStopped)}
	}
	s.tracePoint(trace.ScopeSuspend, "resume", co, "events="+events.String())
	return s.CoResume(co, msg)
}
