// Package trace provides a tracing subsystem for the strand runtime.
//
// The scheduler emits point events at task spawn/exit, suspension, resume,
// poller dispatch and timer fires. Three tracer implementations are
// provided:
//
//   - nopTracer: zero-overhead no-op when tracing is disabled
//   - StreamTracer: immediate write to a file or stderr (text or msgpack)
//   - RingTracer: circular buffer dumped when the run loop fails
package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Tracer is the main interface for emitting trace events.
type Tracer interface {
	// Emit records a trace event. Must be goroutine-safe.
	Emit(ev *Event)

	// Flush ensures all buffered events are written.
	Flush() error

	// Close flushes and releases resources.
	Close() error

	// Level returns the current tracing level.
	Level() Level

	// Enabled returns true if tracing is active (Level > LevelOff).
	Enabled() bool
}

// Format selects the stream encoding.
type Format uint8

const (
	// FormatText writes one human-readable line per event.
	FormatText Format = iota + 1
	// FormatMsgpack writes a stream of msgpack-encoded events.
	FormatMsgpack
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text":
		return FormatText, nil
	case "msgpack":
		return FormatMsgpack, nil
	default:
		return FormatText, fmt.Errorf("invalid trace format: %q (expected: text|msgpack)", s)
	}
}

// Config holds tracer configuration.
type Config struct {
	Level      Level     // tracing level
	Format     Format    // stream encoding
	Output     io.Writer // stream output (if nil, use OutputPath)
	OutputPath string    // alternative: file path ("-" for stderr)
	RingSize   int       // ring capacity when no stream output is set
}

// New creates a Tracer based on Config. With no output configured a ring
// tracer is returned so crash dumps stay available.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.Format == 0 {
		cfg.Format = FormatText
	}

	w := cfg.Output
	if w == nil && cfg.OutputPath != "" {
		if cfg.OutputPath == "-" {
			w = os.Stderr
		} else {
			f, err := os.Create(cfg.OutputPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open trace output %q: %w", cfg.OutputPath, err)
			}
			w = f
		}
	}
	if w == nil {
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	}
	return NewStreamTracer(w, cfg.Level, cfg.Format), nil
}
