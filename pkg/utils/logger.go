// Package utils provides small cross-cutting helpers shared by every package.
package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is the severity of a log entry.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Logger is a small leveled, structured logger. It fans out to stdout and,
// when configured, a rotating log file.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	format string // "json" or "text"
	output *log.Logger
	fields map[string]interface{}
}

// NewLogger creates a logger writing to stdout only.
func NewLogger(level, format string) *Logger {
	return newLogger(level, format, os.Stdout)
}

// NewFileLogger creates a logger that writes to stdout and a rotating file
// at path, via lumberjack. maxSizeMB/maxBackups/maxAgeDays of 0 fall back
// to lumberjack's defaults.
func NewFileLogger(level, format, path string, maxSizeMB, maxBackups, maxAgeDays int) *Logger {
	if path == "" {
		return NewLogger(level, format)
	}
	fileSink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	return newLogger(level, format, io.MultiWriter(os.Stdout, fileSink))
}

func newLogger(level, format string, w io.Writer) *Logger {
	var logLevel LogLevel
	switch strings.ToLower(level) {
	case "debug":
		logLevel = DebugLevel
	case "info":
		logLevel = InfoLevel
	case "warn", "warning":
		logLevel = WarnLevel
	case "error":
		logLevel = ErrorLevel
	case "fatal":
		logLevel = FatalLevel
	default:
		logLevel = InfoLevel
	}

	return &Logger{
		level:  logLevel,
		format: format,
		output: log.New(w, "", 0),
		fields: make(map[string]interface{}),
	}
}

// WithField returns a child logger carrying an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a child logger carrying additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	child := &Logger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...))
}
func (l *Logger) Info(msg string) { l.log(InfoLevel, msg) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...))
}
func (l *Logger) Warn(msg string) { l.log(WarnLevel, msg) }
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...))
}
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...))
}
func (l *Logger) Fatal(msg string) {
	l.log(FatalLevel, msg)
	os.Exit(1)
}
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FatalLevel, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}

	fields := make(map[string]interface{}, len(l.fields)+3)
	l.mu.Lock()
	for k, v := range l.fields {
		fields[k] = v
	}
	l.mu.Unlock()

	fields["time"] = time.Now().Format(time.RFC3339)
	fields["level"] = levelString(level)
	fields["msg"] = msg

	if level == DebugLevel {
		if _, file, line, ok := runtime.Caller(2); ok {
			fields["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		l.outputJSON(fields)
	} else {
		l.outputText(fields)
	}
}

func (l *Logger) outputJSON(fields map[string]interface{}) {
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%q:%q", k, fmt.Sprintf("%v", v)))
	}
	l.output.Printf("{%s}", strings.Join(parts, ","))
}

func (l *Logger) outputText(fields map[string]interface{}) {
	logMsg := fmt.Sprintf("[%s] %s %s", fields["time"], fields["level"], fields["msg"])

	extra := make([]string, 0, len(fields))
	for k, v := range fields {
		if k != "time" && k != "level" && k != "msg" {
			extra = append(extra, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(extra) > 0 {
		logMsg += " " + strings.Join(extra, " ")
	}
	l.output.Println(logMsg)
}

func levelString(level LogLevel) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}
