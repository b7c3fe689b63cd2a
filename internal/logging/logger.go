// Package logging provides the minimal printf-style logging contract used
// across the engine, plus a component logger writing to the debug log file.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
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

// Logger defines a minimal, printf-style logging contract.
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

var (
	rootInstance *rootLogger
	rootOnce     sync.Once
)

type rootLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	level  LogLevel
}

type componentLogger struct {
	root      *rootLogger
	component string
}

func getRoot() *rootLogger {
	rootOnce.Do(func() {
		level := DEBUG
		if v := os.Getenv("AIDE_LOG_LEVEL"); v != "" {
			switch v {
			case "info":
				level = INFO
			case "warn":
				level = WARN
			case "error":
				level = ERROR
			}
		}
		root := &rootLogger{level: level}
		path := os.Getenv("AIDE_LOG_FILE")
		if path == "" {
			home, err := os.UserHomeDir()
			if err == nil {
				path = filepath.Join(home, ".aide-debug.log")
			}
		}
		if path != "" {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				root.file = f
				root.logger = log.New(f, "", 0)
			}
		}
		if root.logger == nil {
			root.logger = log.New(os.Stderr, "", 0)
		}
		rootInstance = root
	})
	return rootInstance
}

// NewComponentLogger creates a logger scoped to a component name.
func NewComponentLogger(component string) Logger {
	return &componentLogger{root: getRoot(), component: component}
}

func (l *componentLogger) write(level LogLevel, tag, format string, args ...any) {
	root := l.root
	root.mu.Lock()
	defer root.mu.Unlock()
	if level < root.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	root.logger.Printf("%s [%s] [%s] %s", ts, tag, l.component, msg)
}

func (l *componentLogger) Debug(format string, args ...any) { l.write(DEBUG, "DEBUG", format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.write(INFO, "INFO", format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.write(WARN, "WARN", format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.write(ERROR, "ERROR", format, args...) }
