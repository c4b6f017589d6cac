//go:build unix

package jobs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"strand/internal/poll"
	"strand/internal/sched"
)

// Runner executes jobs as tasks on one scheduler. Results are collected in
// job order; progress events go to an optional channel and are dropped when
// the consumer lags, so a slow UI never stalls the loop.
type Runner struct {
	sched   *sched.Scheduler
	events  chan<- Event
	results []*Result
}

// NewRunner constructs a runner over s. events may be nil.
func NewRunner(s *sched.Scheduler, events chan<- Event) *Runner {
	return &Runner{sched: s, events: events}
}

// Start spawns one scheduler task per job. Call before the scheduler loop
// runs; the tasks start when the loop drains its ready queue.
func (r *Runner) Start(jobList []Job) error {
	for _, job := range jobList {
		job := job
		res := &Result{Job: job, Status: StatusQueued}
		r.results = append(r.results, res)
		if _, err := r.sched.CoStartNamed(job.Name, func(...any) {
			r.runJob(job, res)
		}); err != nil {
			return fmt.Errorf("failed to spawn job %q: %w", job.Name, err)
		}
	}
	return nil
}

// Results returns the collected outcomes in job order.
func (r *Runner) Results() []Result {
	out := make([]Result, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, *res)
	}
	return out
}

func (r *Runner) publish(job Job, status Status, bytesOut int) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- Event{JobID: job.ID, Name: job.Name, Status: status, BytesOut: bytesOut}:
	default:
	}
}

var errJobTimeout = errors.New("job timed out")

func (r *Runner) runJob(job Job, res *Result) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		r.publish(job, res.Status, len(res.Output))
	}()

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("failed to create output pipe: %w", err)
		return
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		res.Status = StatusFailed
		res.Err = fmt.Errorf("failed to set pipe nonblocking: %w", err)
		return
	}
	readFd := fds[0]
	w := os.NewFile(uintptr(fds[1]), job.Name+"-out")

	cmd := exec.Command(job.Argv[0], job.Argv[1:]...)
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Start(); err != nil {
		_ = w.Close()
		_ = unix.Close(readFd)
		res.Status = StatusFailed
		res.Err = fmt.Errorf("failed to start %q: %w", job.Argv[0], err)
		return
	}
	// The child holds its own copy of the write end.
	_ = w.Close()

	res.Status = StatusRunning
	r.publish(job, StatusRunning, 0)

	obj := poll.NewPipe(readFd)
	var deadline time.Time
	if job.TimeoutMS > 0 {
		deadline = start.Add(time.Duration(job.TimeoutMS) * time.Millisecond)
	}

	pumpErr := r.pumpOutput(obj, readFd, deadline, res)
	if pumpErr != nil {
		// Guarantee exit before Wait, so a live child cannot block the loop.
		_ = cmd.Process.Kill()
	}
	_ = r.sched.PollerCancel(obj)
	_ = unix.Close(readFd)

	waitErr := cmd.Wait()
	switch {
	case errors.Is(pumpErr, errJobTimeout):
		res.Status = StatusTimedOut
		res.Err = fmt.Errorf("job %q timed out after %dms", job.Name, job.TimeoutMS)
	case pumpErr != nil:
		res.Status = StatusFailed
		res.Err = pumpErr
	case waitErr != nil:
		res.Status = StatusFailed
		res.Err = waitErr
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	default:
		res.Status = StatusOK
	}
}

// pumpOutput waits for readiness and drains the pipe until EOF. The job
// deadline is re-applied to every wait so a stalled command cannot park the
// task forever.
func (r *Runner) pumpOutput(obj poll.Object, fd int, deadline time.Time, res *Result) error {
	buf := make([]byte, 4096)
	for {
		timeout := int64(-1)
		if !deadline.IsZero() {
			timeout = time.Until(deadline).Milliseconds()
			if timeout <= 0 {
				return errJobTimeout
			}
		}

		events, err := r.sched.PollerWait(obj, poll.EventRecv, timeout)
		if err != nil {
			return err
		}
		if events.IsZero() {
			return errJobTimeout
		}

		for {
			n, err := unix.Read(fd, buf)
			if n > 0 {
				res.Output = append(res.Output, buf[:n]...)
				r.publish(res.Job, StatusRunning, len(res.Output))
				continue
			}
			if n == 0 && err == nil {
				// EOF: every write end is closed.
				return nil
			}
			if err == unix.EAGAIN {
				break
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read job output: %w", err)
			}
		}
	}
}
