// Package logging provides structured JSON logging for agentsh components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a level name, defaulting to warn for unknown input.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelWarn
}

// Event represents a structured log event
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	Session   string                 `json:"session,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// sink is shared by a logger and everything derived from it.
type sink struct {
	mu  sync.Mutex
	out io.Writer
	min Level
}

// Logger provides structured logging
type Logger struct {
	component string
	session   string
	sink      *sink
}

// New creates a new logger for a component. Events go to stderr, filtered by
// AGENTSH_LOG_LEVEL (default warn).
func New(component string) *Logger {
	return &Logger{
		component: component,
		sink: &sink{
			out: os.Stderr,
			min: ParseLevel(os.Getenv("AGENTSH_LOG_LEVEL")),
		},
	}
}

// NewWithWriter creates a logger writing to w at the given minimum level.
func NewWithWriter(component string, w io.Writer, min Level) *Logger {
	return &Logger{
		component: component,
		sink:      &sink{out: w, min: min},
	}
}

// Discard returns a logger that drops every event.
func Discard() *Logger {
	return NewWithWriter("", io.Discard, LevelError)
}

// Named returns a logger for another component sharing the same output.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		component: component,
		session:   l.session,
		sink:      l.sink,
	}
}

// WithSession sets the session context
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		component: l.component,
		session:   id,
		sink:      l.sink,
	}
}

func (l *Logger) enabled(level Level) bool {
	return levelRank[level] >= levelRank[l.sink.min]
}

// emit writes one event as a JSON line.
func (l *Logger) emit(e Event) {
	if !l.enabled(e.Level) {
		return
	}
	data, _ := json.Marshal(e)
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	fmt.Fprintln(l.sink.out, string(data))
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	l.emit(e)
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	l.emit(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelDebug,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	})
}
