// Package logger provides a small leveled logger shared by the service and
// the CLI. The default instance is a process-wide singleton configured from
// the LOG_LEVEL environment variable.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case FatalLevel:
		return "FATAL"
	}
	return "UNKNOWN"
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	level    Level
	colorize bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New returns a logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{out: w, level: level, colorize: true}
}

// GetLogger returns the shared logger, honoring LOG_LEVEL on first use.
func GetLogger() *Logger {
	once.Do(func() {
		level := InfoLevel
		switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
		case "DEBUG":
			level = DebugLevel
		case "WARN":
			level = WarnLevel
		case "FATAL":
			level = FatalLevel
		}
		defaultLogger = New(os.Stdout, level)
	})
	return defaultLogger
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) SetColorize(colorize bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorize = colorize
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	tag := fmt.Sprintf("[%s]", level)
	if l.colorize {
		switch level {
		case DebugLevel:
			tag = colorGray + tag + colorReset
		case InfoLevel:
			tag = colorBlue + tag + colorReset
		case WarnLevel:
			tag = colorYellow + tag + colorReset
		case FatalLevel:
			tag = colorRed + tag + colorReset
		}
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	fmt.Fprintf(l.out, "%s %s %s\n", time.Now().Format("2006-01-02 15:04:05"), tag, msg)

	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(WarnLevel, format, args...) }

// Errorf logs at WARN; the process has no separate error stream.
func (l *Logger) Errorf(format string, args ...any) { l.log(WarnLevel, format, args...) }

// Fatalf logs and exits the process.
func (l *Logger) Fatalf(format string, args ...any) { l.log(FatalLevel, format, args...) }
