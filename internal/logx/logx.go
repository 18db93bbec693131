// Package logx centralizes the leveled-logger idiom the teacher repeats
// per-component (LeaseManager.log, Dispatcher.log, DeadLetterProcessor.log,
// ...): a small LogLevel enum plus a formatted "timestamp LEVEL component:
// message" line written through a stdlib *log.Logger.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger wraps a *log.Logger with a component name and a minimum level.
type Logger struct {
	backend   *log.Logger
	component string
	min       Level
}

// New wraps backend with a component name and minimum level. A nil backend
// defaults to a logger writing to stderr, so callers may pass nil when they
// have no specific *log.Logger to share.
func New(backend *log.Logger, component string, min Level) *Logger {
	if backend == nil {
		backend = log.New(os.Stderr, "", 0)
	}
	return &Logger{backend: backend, component: component, min: min}
}

// With returns a copy of l scoped to a different component name, sharing the
// same backend and level — used when a parent constructs sub-component
// loggers (e.g. the scheduler handing one to each per-drone worker).
func (l *Logger) With(component string) *Logger {
	return &Logger{backend: l.backend, component: component, min: l.min}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.backend.Printf("%s %s %s: %s", time.Now().UTC().Format(time.RFC3339), level, l.component, msg)
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }
