package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Decode reads a msgpack event stream from r and writes each event as a
// text line to w. It stops cleanly at EOF.
func Decode(r io.Reader, w io.Writer) error {
	dec := msgpack.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode trace event: %w", err)
		}
		if _, err := io.WriteString(w, ev.Text()); err != nil {
			return err
		}
	}
}
