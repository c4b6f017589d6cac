package trace

import (
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// StreamTracer writes events immediately to an io.Writer.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	enc    *msgpack.Encoder
	level  Level
	format Format
}

// NewStreamTracer creates a new StreamTracer.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	st := &StreamTracer{
		w:      w,
		level:  level,
		format: format,
	}
	if format == FormatMsgpack {
		st.enc = msgpack.NewEncoder(w)
	}
	return st
}

// Emit writes an event to the output. Write errors are swallowed so tracing
// never disrupts the run loop.
func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}

	ev.Seq = NextSeq()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.format == FormatMsgpack {
		_ = t.enc.Encode(ev) //nolint:errcheck // best-effort trace write
		return
	}
	_, _ = io.WriteString(t.w, ev.Text()) //nolint:errcheck // best-effort trace write
}

// Flush ensures all buffered data is written. Events are written
// immediately; Flush only calls the writer's own Flush when it has one.
func (t *StreamTracer) Flush() error {
	if flusher, ok := t.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close flushes and closes the writer if it implements io.Closer.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if closer, ok := t.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Level returns the configured level.
func (t *StreamTracer) Level() Level { return t.level }

// Enabled reports whether the tracer emits anything.
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
