// Package orderlylog sets up the process-wide zerolog logger the way the
// teacher's example programs do: a console writer over go-colorable, with
// color gated by whether the destination is an actual terminal.
package orderlylog

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// New returns a logger writing to w (normally os.Stderr). When w is a
// terminal, output is colorized via go-colorable; otherwise it degrades to
// plain text so redirected logs stay grep-friendly.
func New(w *os.File) zerolog.Logger {
	var out io.Writer
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		out = zerolog.ConsoleWriter{Out: colorable.NewColorable(w), NoColor: false}
	} else {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
