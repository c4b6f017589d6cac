// Package poll abstracts an OS readiness multiplexer behind a small facade:
// typed event sets, pollable objects, and a Poller with insert/modify/remove
// registration and a blocking Wait that can be interrupted with Spank.
package poll

// Object is a pollable OS resource.
type Object interface {
	Kind() ObjectKind
	Fd() int
}

// Callback dispatches readiness for one object. Wait returns the callback
// registered for the object so the loop can route events without the poller
// knowing anything about its consumers.
type Callback interface {
	Dispatch(obj Object, events Events) error
}

// Ready is one readiness delivery produced by Wait.
type Ready struct {
	Obj    Object
	Events Events
	CB     Callback
}

// Poller is the registration and wait surface the scheduler drives.
type Poller interface {
	// Support reports whether the backend implements the given event kind
	// for the given object kind.
	Support(kind ObjectKind, events Events) bool

	// Insert registers a new object.
	Insert(obj Object, events Events, cb Callback) error

	// Modify changes the registration of an already inserted object.
	Modify(obj Object, events Events, cb Callback) error

	// Remove forgets an object.
	Remove(obj Object) error

	// Wait blocks for up to timeoutMS milliseconds (forever when negative)
	// and returns the objects that became ready. A count of zero means the
	// timeout elapsed or the wait was spanked.
	Wait(timeoutMS int64) (int, []Ready, error)

	// Spank interrupts an ongoing Wait. Safe to call from another thread.
	Spank()

	// Close releases backend resources.
	Close() error
}

type fdObject struct {
	kind ObjectKind
	fd   int
}

func (o *fdObject) Kind() ObjectKind { return o.kind }
func (o *fdObject) Fd() int          { return o.fd }

// NewSock wraps a socket file descriptor as a pollable Object.
func NewSock(fd int) Object {
	return &fdObject{kind: ObjectSock, fd: fd}
}

// NewPipe wraps a pipe file descriptor as a pollable Object.
func NewPipe(fd int) Object {
	return &fdObject{kind: ObjectPipe, fd: fd}
}

// NewProc wraps a process readiness descriptor as a pollable Object.
func NewProc(fd int) Object {
	return &fdObject{kind: ObjectProc, fd: fd}
}
