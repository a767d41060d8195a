package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger writing to stdout. APP_ENV=dev
// switches to the human readable console writer. All logs include the
// provided component field.
func NewZerologLogger(component string) Logger {
	dev := strings.ToLower(os.Getenv("APP_ENV")) == "dev"
	return NewWithWriter(component, os.Stdout, dev)
}

// NewWithWriter creates a ZerologLogger writing JSON lines, or console output
// when pretty is set, to w.
func NewWithWriter(component string, w io.Writer, pretty bool) *ZerologLogger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

// SetLevel sets the global minimum level ("debug", "info", "warn", "error").
// An empty level keeps the current setting.
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// With returns a child logger carrying an additional field.
func (l *ZerologLogger) With(key string, value any) *ZerologLogger {
	return &ZerologLogger{log: l.log.With().Interface(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
