package trace

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"off", LevelOff, false},
		{"task", LevelTask, false},
		{"DEBUG", LevelDebug, false},
		{"verbose", LevelOff, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStreamTracerTextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelTask, FormatText)
	tr.Emit(Point(ScopeTask, "spawn", "build", ""))
	tr.Emit(Point(ScopePoller, "dispatch", "", "events=recv"))

	out := buf.String()
	if !strings.Contains(out, "spawn") {
		t.Fatalf("task-scope event missing from output: %q", out)
	}
	if strings.Contains(out, "dispatch") {
		t.Fatalf("poller-scope event should be filtered at level task: %q", out)
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatMsgpack)
	tr.Emit(Point(ScopeLoop, "start", "", ""))
	tr.Emit(Point(ScopeSuspend, "poller_wait", "fetch", "events=recv"))

	var out bytes.Buffer
	if err := Decode(&buf, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "start") || !strings.Contains(text, "poller_wait") {
		t.Fatalf("decoded text missing events: %q", text)
	}
	if !strings.Contains(text, "task=fetch") {
		t.Fatalf("decoded text missing task attribute: %q", text)
	}
}

func TestRingTracerWrapsAround(t *testing.T) {
	tr := NewRingTracer(4, LevelDebug)
	for i := 0; i < 6; i++ {
		tr.Emit(Point(ScopeTask, "spawn", "", ""))
	}
	events := tr.Snapshot()
	if len(events) != 4 {
		t.Fatalf("ring should cap at 4 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("snapshot out of order: %v", events)
		}
	}
}

func TestNewReturnsNopWhenOff(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tr.Enabled() {
		t.Fatalf("off-level tracer should be disabled")
	}
}
