package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a LogLevel, defaulting to INFO.
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger defines a minimal, printf-style logging contract.
//
// Stage and backend code depends on this interface rather than a concrete
// logger so tests can swap in Nop().
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// fileLogger writes component-tagged lines to a shared sink.
type fileLogger struct {
	sink      *sink
	component string
}

// sink is the shared output target behind all component loggers.
type sink struct {
	mu     sync.Mutex
	out    *log.Logger
	level  LogLevel
	closer io.Closer
}

var (
	defaultSinkOnce sync.Once
	defaultSink     *sink
)

// getDefaultSink lazily opens persona-debug.log in the user home directory,
// falling back to stderr when the file cannot be opened.
func getDefaultSink() *sink {
	defaultSinkOnce.Do(func() {
		defaultSink = &sink{
			out:   log.New(os.Stderr, "", 0),
			level: ParseLevel(os.Getenv("PERSONA_LOG_LEVEL")),
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		logPath := filepath.Join(home, "persona-debug.log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		defaultSink.out = log.New(file, "", 0)
		defaultSink.closer = file
	})
	return defaultSink
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &fileLogger{sink: getDefaultSink(), component: component}
}

// NewWriterLogger returns a logger writing to w at the given level.
// Used by the CLI for verbose mode and by tests that assert on output.
func NewWriterLogger(w io.Writer, level LogLevel, component string) Logger {
	return &fileLogger{
		sink:      &sink{out: log.New(w, "", 0), level: level},
		component: component,
	}
}

func (l *fileLogger) Debug(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.log(ERROR, format, args...) }

func (l *fileLogger) log(level LogLevel, format string, args ...any) {
	if level < l.sink.level {
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2025-09-30 12:34:56 [INFO] [component] file.go:123 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "PERSONA"
	}
	message := fmt.Sprintf(format, args...)
	l.sink.out.Printf("%s [%s] [%s] %s:%d - %s",
		timestamp, levelToString(level), component, file, line, message)
}
