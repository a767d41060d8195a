// Package logger defines the logging interface used by the optimizer core.
package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Nop discards every message.
type Nop struct{}

func (Nop) Debugf(string, ...any)         {}
func (Nop) Debugw(string, map[string]any) {}
func (Nop) Infof(string, ...any)          {}
func (Nop) Warnf(string, ...any)          {}
func (Nop) Errorf(string, ...any)         {}
