//go:build unix

package poll

import (
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

type registration struct {
	obj    Object
	events Events
	cb     Callback
}

// unixPoller multiplexes with poll(2). It is level-triggered, so
// Support(..., EventClear) reports false and the scheduler caches readiness
// itself. A self-pipe implements Spank: the write end is the only part of
// the poller touched from outside the owner thread.
type unixPoller struct {
	regs  map[int]*registration
	wakeR int
	wakeW int
}

// New constructs the default Poller for this platform.
func New() (Poller, error) {
	return NewUnix()
}

// NewUnix constructs a poll(2)-backed Poller.
func NewUnix() (Poller, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, fmt.Errorf("failed to set wake pipe nonblocking: %w", err)
		}
	}
	return &unixPoller{
		regs:  make(map[int]*registration),
		wakeR: fds[0],
		wakeW: fds[1],
	}, nil
}

func (p *unixPoller) Support(kind ObjectKind, events Events) bool {
	if events.Has(EventClear) {
		return false
	}
	switch kind {
	case ObjectSock, ObjectPipe, ObjectProc:
		return true
	default:
		return false
	}
}

func (p *unixPoller) Insert(obj Object, events Events, cb Callback) error {
	fd := obj.Fd()
	if fd < 0 {
		return fmt.Errorf("invalid fd %d for %s object", fd, obj.Kind())
	}
	if _, ok := p.regs[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	p.regs[fd] = &registration{obj: obj, events: events, cb: cb}
	return nil
}

func (p *unixPoller) Modify(obj Object, events Events, cb Callback) error {
	reg, ok := p.regs[obj.Fd()]
	if !ok {
		return fmt.Errorf("fd %d not registered", obj.Fd())
	}
	reg.obj = obj
	reg.events = events
	reg.cb = cb
	return nil
}

func (p *unixPoller) Remove(obj Object) error {
	delete(p.regs, obj.Fd())
	return nil
}

func (p *unixPoller) Wait(timeoutMS int64) (int, []Ready, error) {
	pfds := make([]unix.PollFd, 0, len(p.regs)+1)
	refs := make([]*registration, 0, len(p.regs)+1)

	wakeFd, err := safecast.Conv[int32](p.wakeR)
	if err != nil {
		return -1, nil, fmt.Errorf("wake fd out of range: %w", err)
	}
	pfds = append(pfds, unix.PollFd{Fd: wakeFd, Events: unix.POLLIN})
	refs = append(refs, nil)

	for fd, reg := range p.regs {
		var events int16
		if reg.events.Has(EventRecv) {
			events |= unix.POLLIN
		}
		if reg.events.Has(EventSend) {
			events |= unix.POLLOUT
		}
		if events == 0 {
			continue
		}
		pfd, err := safecast.Conv[int32](fd)
		if err != nil {
			continue
		}
		pfds = append(pfds, unix.PollFd{Fd: pfd, Events: events})
		refs = append(refs, reg)
	}

	timeout := -1
	if timeoutMS >= 0 {
		timeout, err = safecast.Conv[int](timeoutMS)
		if err != nil {
			timeout = int(^uint(0) >> 1)
		}
	}

	var n int
	for {
		n, err = unix.Poll(pfds, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, nil, fmt.Errorf("poll failed: %w", err)
		}
		break
	}
	if n == 0 {
		return 0, nil, nil
	}

	var ready []Ready
	for i, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		if i == 0 {
			p.drainWake()
			continue
		}
		reg := refs[i]
		var events Events
		if pfd.Revents&unix.POLLIN != 0 && reg.events.Has(EventRecv) {
			events = events.Union(EventRecv)
		}
		if pfd.Revents&unix.POLLOUT != 0 && reg.events.Has(EventSend) {
			events = events.Union(EventSend)
		}
		if pfd.Revents&unix.POLLHUP != 0 {
			events = events.Union(EventEOF)
			// HUP still allows draining buffered input.
			if reg.events.Has(EventRecv) {
				events = events.Union(EventRecv)
			}
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			events = events.Union(EventError)
		}
		if events.IsZero() {
			continue
		}
		ready = append(ready, Ready{Obj: reg.obj, Events: events, CB: reg.cb})
	}
	return len(ready), ready, nil
}

func (p *unixPoller) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *unixPoller) Spank() {
	_, _ = unix.Write(p.wakeW, []byte{1})
}

func (p *unixPoller) Close() error {
	err1 := unix.Close(p.wakeR)
	err2 := unix.Close(p.wakeW)
	if err1 != nil {
		return err1
	}
	return err2
}
