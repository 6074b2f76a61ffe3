package render

import (
	"io"
	"strings"

	"github.com/pithecene-io/turnstream/runtime"
)

// DeltaWriter prints successive explanation snapshots as a single growing
// stream of text.
//
// A snapshot taken inside a code run ends with a closing fence that a later
// snapshot replaces with more code. That trailing fence is held back until
// Finish, so everything written is a prefix of every later snapshot.
type DeltaWriter struct {
	out     io.Writer
	written int
}

// NewDeltaWriter creates a DeltaWriter on out.
func NewDeltaWriter(out io.Writer) *DeltaWriter {
	return &DeltaWriter{out: out}
}

// Write prints the part of explanation not yet written, minus any trailing
// code fence.
func (d *DeltaWriter) Write(explanation string) error {
	return d.emit(strings.TrimSuffix(explanation, runtime.FenceSeparator))
}

// Finish prints the remainder of the final explanation, including a held-back
// closing fence, and terminates the output with a newline.
func (d *DeltaWriter) Finish(explanation string) error {
	if err := d.emit(explanation); err != nil {
		return err
	}
	if d.written == 0 || strings.HasSuffix(explanation, "\n") {
		return nil
	}
	_, err := io.WriteString(d.out, "\n")
	return err
}

// Written returns the number of bytes of explanation written so far.
func (d *DeltaWriter) Written() int {
	return d.written
}

func (d *DeltaWriter) emit(stable string) error {
	if len(stable) <= d.written {
		return nil
	}
	n, err := io.WriteString(d.out, stable[d.written:])
	d.written += n
	return err
}
