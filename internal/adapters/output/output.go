package output

import (
	"io"
	"os"
)

// Printer renders output.
type Printer interface {
	Print(v any) error
}

// New returns the JSON printer when jsonOut is set, otherwise the human
// printer. A nil w writes to stdout.
func New(w io.Writer, jsonOut bool) Printer {
	if jsonOut {
		return JSONPrinter{Out: w}
	}
	return HumanPrinter{Out: w}
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
