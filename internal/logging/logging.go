// Package logging provides the small structured logging surface shared by all
// dorkrecon components. Implementations live here so packages depend on one
// interface and any logger can be swapped in.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Logger is a deliberately small, framework-agnostic logging interface.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning.
	Warn(msg string, fields ...Field)

	// Error logs an error.
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value interface{}
}

// StdoutLogger is a tiny, structured logger used during development.
// It implements Logger and prints JSON lines to stdout.
type StdoutLogger struct {
	component string
}

// NewStdoutLogger creates a new simple StdoutLogger. component is optional and
// will be included on every entry.
func NewStdoutLogger(component string) *StdoutLogger {
	return &StdoutLogger{component: component}
}

func (s *StdoutLogger) log(level string, msg string, fields ...Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any)
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: s.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		// Fallback simple formatting to stdout if JSON marshal fails
		fmt.Fprintf(os.Stdout, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(os.Stdout, string(enc))
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) {
	s.log("debug", msg, fields...)
}

func (s *StdoutLogger) Info(msg string, fields ...Field) {
	s.log("info", msg, fields...)
}

func (s *StdoutLogger) Warn(msg string, fields ...Field) {
	s.log("warn", msg, fields...)
}

func (s *StdoutLogger) Error(msg string, fields ...Field) {
	s.log("error", msg, fields...)
}

func (s *StdoutLogger) With(fields ...Field) Logger {
	child := &StdoutLogger{component: s.component}
	// If fields include a component key, prefer that as the component name
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
			}
		}
	}
	return child
}

// TestLogger is a simple logger implementation for testing purposes.
// It writes to stdout and can be used in tests where a Logger is required.
type TestLogger struct {
	verbose bool
}

// NewTestLogger creates a new test logger.
func NewTestLogger(verbose bool) *TestLogger {
	return &TestLogger{verbose: verbose}
}

func (tl *TestLogger) Debug(msg string, fields ...Field) {
	if tl.verbose {
		fmt.Printf("[DEBUG] %s %v\n", msg, fields)
	}
}

func (tl *TestLogger) Info(msg string, fields ...Field) {
	if tl.verbose {
		fmt.Printf("[INFO] %s %v\n", msg, fields)
	}
}

func (tl *TestLogger) Warn(msg string, fields ...Field) {
	fmt.Printf("[WARN] %s %v\n", msg, fields)
}

func (tl *TestLogger) Error(msg string, fields ...Field) {
	fmt.Printf("[ERROR] %s %v\n", msg, fields)
}

func (tl *TestLogger) With(fields ...Field) Logger {
	return tl
}
