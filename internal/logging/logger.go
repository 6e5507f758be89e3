// Package logging provides structured, component-scoped logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

// Logger provides structured logging scoped to one component.
type Logger struct {
	component string
	minLevel  LogLevel
	output    io.Writer
	mu        sync.Mutex
}

// NewLogger creates a new logger for a specific component.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		minLevel:  LogLevelInfo,
		output:    os.Stdout,
	}
}

// SetMinLevel sets the minimum log level to output.
func (l *Logger) SetMinLevel(level LogLevel) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
	return l
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	return l
}

// Debug logs a debug message with optional k=v context.
func (l *Logger) Debug(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message with optional k=v context.
func (l *Logger) Info(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message with optional k=v context.
func (l *Logger) Warn(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message with optional k=v context.
func (l *Logger) Error(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}

func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf("[%s] %s [%s] %s", timestamp, level, l.component, message)
	if err != nil {
		msg += fmt.Sprintf(" | error=%v", err)
	}
	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msg += " |"
		for _, k := range keys {
			msg += fmt.Sprintf(" %s=%v", k, context[k])
		}
	}

	l.output.Write([]byte(msg + "\n"))
}
