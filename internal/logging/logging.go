// Package logging writes one JSON object per line, the format every component of the
// runtime uses for its operational logs.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Level names used in the "level" field.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Fields are extra key/value pairs added to an entry.
type Fields map[string]any

// Logger is safe for concurrent use.
type Logger struct {
	mu        *sync.Mutex
	w         io.Writer
	loc       *time.Location
	component string
}

// New returns a Logger writing to w with timestamps in loc.
func New(w io.Writer, loc *time.Location) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{mu: &sync.Mutex{}, w: w, loc: loc}
}

var std = New(os.Stdout, time.UTC)

// Default returns the process wide logger writing to stdout.
func Default() *Logger { return std }

// With returns a logger that stamps every entry with the given component.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		l = std
	}
	return &Logger{mu: l.mu, w: l.w, loc: l.loc, component: component}
}

// Info logs an informational event.
func (l *Logger) Info(event string, f Fields) { l.log(LevelInfo, event, f) }

// Warn logs a recoverable problem.
func (l *Logger) Warn(event string, f Fields) { l.log(LevelWarn, event, f) }

// Error logs a failure. err may be nil.
func (l *Logger) Error(event string, err error, f Fields) {
	if err != nil {
		if f == nil {
			f = Fields{}
		}
		f["error_message"] = err.Error()
	}
	l.log(LevelError, event, f)
}

func (l *Logger) log(level, event string, f Fields) {
	if l == nil {
		l = std
	}
	entry := make(map[string]any, len(f)+4)
	for k, v := range f {
		entry[k] = v
	}
	entry["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	entry["level"] = level
	entry["event"] = event
	if l.component != "" {
		entry["component"] = l.component
	}

	b, err := json.Marshal(entry)
	if err != nil {
		b, _ = json.Marshal(map[string]any{
			"ts":            entry["ts"],
			"level":         LevelError,
			"event":         "log_marshal_failed",
			"error_message": err.Error(),
		})
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(b)
}
