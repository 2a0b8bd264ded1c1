// Package milog provides the minimal leveled logger shared by every mii
// package: a thin wrapper over a pair of io.Writer streams, no structured
// logging framework.
package milog

import (
	"fmt"
	"io"
)

// Loggers holds the two standard output streams and the verbosity flag
// toggled by the CLI's -d/--debug flag.
type Loggers struct {
	Out, Err io.Writer
	Verbose  bool
}

// New returns Loggers writing to the given streams.
func New(out, err io.Writer) *Loggers {
	return &Loggers{Out: out, Err: err}
}

// Logf always prints a formatted info line to Out.
func (l *Loggers) Logf(f string, args ...interface{}) {
	fmt.Fprintf(l.Out, "mii: "+f+"\n", args...)
}

// Warnf always prints a formatted warning line to Err.
func (l *Loggers) Warnf(f string, args ...interface{}) {
	fmt.Fprintf(l.Err, "mii: warning: "+f+"\n", args...)
}

// Debugf prints a formatted line to Err only when Verbose is set.
func (l *Loggers) Debugf(f string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	fmt.Fprintf(l.Err, "mii: debug: "+f+"\n", args...)
}
