// Package cli carries the small user-facing output wrapper cmd/dagd uses,
// kept separate from internal/diag's leveled diagnostic logger: IO is for
// the output a human invoking dagd reads (the -g checksum stream and fatal
// error lines), diag.Logger is for the -d verbosity a daemon operator turns
// up when something goes wrong. cmd/dagctl and cmd/dagcsum write with fmt
// directly.
package cli

import (
	"fmt"
	"io"
)

// IO wraps a command's stdout/stderr for consistent output.
type IO struct {
	out    io.Writer
	errOut io.Writer
}

// NewIO returns an IO writing to out/errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// OutWriter returns the underlying stdout writer, for callers (like -g's
// checksum stream) that need to write raw bytes rather than formatted
// lines.
func (o *IO) OutWriter() io.Writer { return o.out }

// ErrWriter returns the underlying stderr writer, for handing to pflag's
// own usage/error output.
func (o *IO) ErrWriter() io.Writer { return o.errOut }

// Println writes to stdout.
func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr, prefixed the way dagd's binaries report
// fatal conditions (spec.md §7): "error: <message>".
func (o *IO) ErrPrintln(a ...any) {
	args := append([]any{"error:"}, a...)
	_, _ = fmt.Fprintln(o.errOut, args...)
}
