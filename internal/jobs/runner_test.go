//go:build unix

package jobs

import (
	"errors"
	"strings"
	"testing"

	"strand/internal/poll"
	"strand/internal/sched"
)

func runJobs(t *testing.T, jobList []Job) []Result {
	t.Helper()
	poller, err := poll.New()
	if err != nil {
		t.Fatalf("failed to create poller: %v", err)
	}
	defer func() {
		if err := poller.Close(); err != nil {
			t.Errorf("failed to close poller: %v", err)
		}
	}()

	s := sched.New(poller)
	r := NewRunner(s, nil)
	if err := r.Start(jobList); err != nil {
		t.Fatalf("failed to start jobs: %v", err)
	}
	if err := s.RunLoop(); err != nil {
		t.Fatalf("run loop failed: %v", err)
	}
	return r.Results()
}

func TestRunnerCapturesOutput(t *testing.T) {
	results := runJobs(t, []Job{
		{ID: "1", Name: "hello", Argv: []string{"sh", "-c", "printf hello-out; printf hello-err 1>&2"}},
		{ID: "2", Name: "exit3", Argv: []string{"sh", "-c", "exit 3"}},
	})

	if results[0].Status != StatusOK {
		t.Fatalf("hello status = %v (%v), want ok", results[0].Status, results[0].Err)
	}
	out := string(results[0].Output)
	if !strings.Contains(out, "hello-out") || !strings.Contains(out, "hello-err") {
		t.Fatalf("stdout+stderr should both be captured, got %q", out)
	}

	if results[1].Status != StatusFailed {
		t.Fatalf("exit3 status = %v, want failed", results[1].Status)
	}
	if results[1].ExitCode != 3 {
		t.Fatalf("exit3 code = %d, want 3", results[1].ExitCode)
	}
}

func TestRunnerKillsOnTimeout(t *testing.T) {
	results := runJobs(t, []Job{
		{ID: "1", Name: "stall", Argv: []string{"sh", "-c", "sleep 5"}, TimeoutMS: 100},
	})
	if results[0].Status != StatusTimedOut {
		t.Fatalf("stall status = %v (%v), want timeout", results[0].Status, results[0].Err)
	}
	if results[0].Duration.Milliseconds() >= 5000 {
		t.Fatalf("timed-out job should not run to completion (%v)", results[0].Duration)
	}
}

func TestRunnerReportsMissingBinary(t *testing.T) {
	results := runJobs(t, []Job{
		{ID: "1", Name: "ghost", Argv: []string{"strand-no-such-binary-for-test"}},
	})
	if results[0].Status != StatusFailed || results[0].Err == nil {
		t.Fatalf("missing binary should fail, got %v (%v)", results[0].Status, results[0].Err)
	}
	if errors.Is(results[0].Err, errJobTimeout) {
		t.Fatalf("missing binary must not be reported as timeout")
	}
}
