package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// process-wide default level; individual Logger instances exist for
// components that want an independent level
var defaultLevel atomic.Int32

func init() {
	defaultLevel.Store(int32(INFO))
}

// Logger is a leveled logger instance
type Logger struct {
	level atomic.Int32
}

// New creates a new Logger instance with the specified level
func New(level string) *Logger {
	l := &Logger{}
	l.level.Store(int32(ParseLogLevel(level)))
	return l
}

// ParseLogLevel converts a string to a LogLevel, defaulting to INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetLogLevel sets the global default log level (package-level)
func SetLogLevel(level string) {
	defaultLevel.Store(int32(ParseLogLevel(level)))
}

// GetLogLevel returns the current global log level as a string
func GetLogLevel() string {
	return levelName(LogLevel(defaultLevel.Load()))
}

func levelName(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// logMessage formats and outputs the log message
func logMessage(level string, format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	log.Printf("[%s] %s", level, message)
}

// SetLevel sets this logger instance's level
func (l *Logger) SetLevel(level string) {
	l.level.Store(int32(ParseLogLevel(level)))
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, v ...interface{}) {
	if LogLevel(l.level.Load()) <= DEBUG {
		logMessage("DEBUG", format, v...)
	}
}

// Info logs info level messages
func (l *Logger) Info(format string, v ...interface{}) {
	if LogLevel(l.level.Load()) <= INFO {
		logMessage("INFO", format, v...)
	}
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, v ...interface{}) {
	if LogLevel(l.level.Load()) <= WARN {
		logMessage("WARN", format, v...)
	}
}

// Error logs error level messages
func (l *Logger) Error(format string, v ...interface{}) {
	logMessage("ERROR", format, v...)
}

// Package-level functions (for direct use like logger.Info())

// Debug logs debug level messages (package-level)
func Debug(format string, v ...interface{}) {
	if LogLevel(defaultLevel.Load()) <= DEBUG {
		logMessage("DEBUG", format, v...)
	}
}

// Info logs info level messages (package-level)
func Info(format string, v ...interface{}) {
	if LogLevel(defaultLevel.Load()) <= INFO {
		logMessage("INFO", format, v...)
	}
}

// Warn logs warning level messages (package-level)
func Warn(format string, v ...interface{}) {
	if LogLevel(defaultLevel.Load()) <= WARN {
		logMessage("WARN", format, v...)
	}
}

// Error logs error level messages (package-level)
func Error(format string, v ...interface{}) {
	logMessage("ERROR", format, v...)
}
