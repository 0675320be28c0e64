// Package logging provides the per-subsystem loggers used across the robot.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	lock sync.Mutex
	out  io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05.000",
	}
	root = zerolog.New(&switchWriter{}).With().Timestamp().Logger()
)

// switchWriter lets SetOutput redirect loggers that were created at package
// init time.
type switchWriter struct{}

func (switchWriter) Write(p []byte) (int, error) {
	lock.Lock()
	w := out
	lock.Unlock()
	return w.Write(p)
}

// For returns a logger tagged with the given subsystem, e.g. "HH" or "encoder".
func For(subsystem string) zerolog.Logger {
	return root.With().Str("sys", subsystem).Logger()
}

// SetLevel sets the global level from a config string.  Unknown values mean info.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput redirects all loggers and returns the previous writer.  Passing
// nil discards output.
func SetOutput(w io.Writer) io.Writer {
	if w == nil {
		w = io.Discard
	}
	lock.Lock()
	defer lock.Unlock()
	prev := out
	out = w
	return prev
}

func init() {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
}
