// Package jobs runs build jobs as scheduler tasks. Each job spawns its
// command with a shared stdout+stderr pipe and pumps the read end through
// PollerWait until EOF, so many jobs make progress over one poller.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"strand/internal/config"
)

// Status describes where a job is in its lifecycle.
type Status uint8

const (
	// StatusQueued means the job task has not started its command yet.
	StatusQueued Status = iota
	// StatusRunning means the command is executing.
	StatusRunning
	// StatusOK means the command exited with code zero.
	StatusOK
	// StatusFailed means the command failed to start, exited non-zero, or
	// was cancelled.
	StatusFailed
	// StatusTimedOut means the job exceeded its timeout and was killed.
	StatusTimedOut
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// Job is one command to run.
type Job struct {
	ID        string
	Name      string
	Argv      []string
	TimeoutMS int64
}

// Event is a progress notification published while a job runs.
type Event struct {
	JobID    string
	Name     string
	Status   Status
	BytesOut int
}

// Result is the outcome of one finished job.
type Result struct {
	Job      Job
	Status   Status
	ExitCode int
	Output   []byte
	Err      error
	Duration time.Duration
}

// FromConfig converts manifest jobs to runnable jobs, assigning each a
// run-scoped ID.
func FromConfig(cfgJobs []config.Job) []Job {
	out := make([]Job, 0, len(cfgJobs))
	for _, j := range cfgJobs {
		out = append(out, Job{
			ID:        uuid.NewString(),
			Name:      j.Name,
			Argv:      j.Cmd,
			TimeoutMS: j.TimeoutMS,
		})
	}
	return out
}
