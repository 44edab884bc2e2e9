package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
)

// LogLevel defines the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Color codes for console output
const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	purple = "\033[35m"
)

// Logger is a custom logging structure
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	output io.Writer
}

// New creates a new Logger instance
func New(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		output: os.Stdout,
	}
}

// SetOutput redirects log output, mainly for tests
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetLevel changes the minimum logged level at runtime
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// ParseLevel maps a level name to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "warn":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// getCallerInfo retrieves file and line of the caller
func getCallerInfo(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???", 0
	}

	// Trim the full path to just the last few path components
	parts := strings.Split(file, "/")
	if len(parts) > 3 {
		file = strings.Join(parts[len(parts)-3:], "/")
	}

	return file, line
}

// colorForLevel returns the color based on log level
func colorForLevel(level LogLevel) string {
	switch level {
	case DEBUG:
		return blue
	case INFO:
		return green
	case WARN:
		return yellow
	case ERROR:
		return red
	case FATAL:
		return purple
	default:
		return reset
	}
}

// log writes a formatted log message
func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}

	// Skip 3 stack frames to get past the level helpers
	file, line := getCallerInfo(3)

	color := colorForLevel(level)

	logEntry := fmt.Sprintf("%s[%s]%s %s:%d - %s\n",
		color,
		[]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}[level],
		reset,
		file,
		line,
		msg,
	)

	l.mu.Lock()
	fmt.Fprint(l.output, logEntry)
	l.mu.Unlock()

	if level == FATAL {
		os.Exit(1)
	}
}

// formatKeyvals renders trailing key-value pairs as "key=value" fields
func formatKeyvals(msg string, keyvals ...interface{}) string {
	if len(keyvals) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
		} else {
			fmt.Fprintf(&b, " %v=?", keyvals[i])
		}
	}
	return b.String()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, v...))
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, v...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, v...))
}

// Debugw logs a debug message with key-value pairs
func (l *Logger) Debugw(msg string, keyvals ...interface{}) {
	l.log(DEBUG, formatKeyvals(msg, keyvals...))
}

// Infow logs an info message with key-value pairs
func (l *Logger) Infow(msg string, keyvals ...interface{}) {
	l.log(INFO, formatKeyvals(msg, keyvals...))
}

// Warnw logs a warning message with key-value pairs
func (l *Logger) Warnw(msg string, keyvals ...interface{}) {
	l.log(WARN, formatKeyvals(msg, keyvals...))
}

// Errorw logs an error message with key-value pairs
func (l *Logger) Errorw(msg string, keyvals ...interface{}) {
	l.log(ERROR, formatKeyvals(msg, keyvals...))
}

// Fatalw logs a fatal message with key-value pairs and exits
func (l *Logger) Fatalw(msg string, keyvals ...interface{}) {
	l.log(FATAL, formatKeyvals(msg, keyvals...))
}
