// Package logging provides the small component-prefixed logger used across
// the service. It deliberately stays on the standard library: plain
// `log.Printf` with a bracketed component tag, nothing structured.
package logging

import "log"

// Logger writes lines tagged with a fixed component name, e.g. "[ingest]".
type Logger struct {
	component string
}

// New returns a Logger tagged with the given component name.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Printf(format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{l.component}, args...)...)
}

func (l *Logger) Warnf(format string, args ...any) {
	log.Printf("[%s] WARNING: "+format, append([]any{l.component}, args...)...)
}

func (l *Logger) Errorf(format string, args ...any) {
	log.Printf("[%s] ERROR: "+format, append([]any{l.component}, args...)...)
}
