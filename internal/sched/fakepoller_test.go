package sched

import (
	"fmt"

	"strand/internal/poll"
)

type fakeReg struct {
	events poll.Events
	cb     poll.Callback
}

// fakePoller scripts readiness deliveries and counts registration calls so
// tests can assert the zero-syscall cache properties. When no delivery is
// queued, Wait advances the shared virtual clock by its timeout, which
// drives the timer queue deterministically.
type fakePoller struct {
	clock        *int64
	supportClear bool
	regs         map[poll.Object]*fakeReg
	queue        []poll.Ready
	inserts      int
	modifies     int
	removes      int
	spanks       int
	waitErr      error
}

func newFakePoller(clock *int64) *fakePoller {
	return &fakePoller{
		clock: clock,
		regs:  make(map[poll.Object]*fakeReg),
	}
}

func (p *fakePoller) Support(kind poll.ObjectKind, events poll.Events) bool {
	if events.Has(poll.EventClear) {
		return p.supportClear
	}
	return true
}

func (p *fakePoller) Insert(obj poll.Object, events poll.Events, cb poll.Callback) error {
	if _, ok := p.regs[obj]; ok {
		return fmt.Errorf("object already registered")
	}
	p.inserts++
	p.regs[obj] = &fakeReg{events: events, cb: cb}
	return nil
}

func (p *fakePoller) Modify(obj poll.Object, events poll.Events, cb poll.Callback) error {
	reg, ok := p.regs[obj]
	if !ok {
		return fmt.Errorf("object not registered")
	}
	p.modifies++
	reg.events = events
	reg.cb = cb
	return nil
}

func (p *fakePoller) Remove(obj poll.Object) error {
	p.removes++
	delete(p.regs, obj)
	return nil
}

// deliver queues a readiness delivery for the next Wait using the callback
// registered for obj.
func (p *fakePoller) deliver(obj poll.Object, events poll.Events) {
	reg, ok := p.regs[obj]
	if !ok {
		return
	}
	p.queue = append(p.queue, poll.Ready{Obj: obj, Events: events, CB: reg.cb})
}

func (p *fakePoller) Wait(timeoutMS int64) (int, []poll.Ready, error) {
	if p.waitErr != nil {
		err := p.waitErr
		p.waitErr = nil
		return -1, nil, err
	}
	if len(p.queue) == 0 {
		if p.clock != nil && timeoutMS > 0 {
			*p.clock += timeoutMS
		}
		return 0, nil, nil
	}
	out := p.queue
	p.queue = nil
	return len(out), out, nil
}

func (p *fakePoller) Spank() {
	p.spanks++
}

func (p *fakePoller) Close() error { return nil }
