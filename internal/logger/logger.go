package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// LogContext provides context for log messages
type LogContext struct {
	RaceID    string `json:"raceId,omitempty"`
	Lane      string `json:"lane,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// Config controls where and how log lines are written.
type Config struct {
	Level LogLevel
	JSON  bool

	// File enables a rotating file sink in addition to stdout/stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Stdout and Stderr default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Logger provides structured logging with proper output streams
type Logger struct {
	level  LogLevel
	json   bool
	out    io.Writer
	errOut io.Writer

	debug *log.Logger
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
	fatal *log.Logger

	mu     sync.Mutex
	closer io.Closer
}

// JSONLogEntry is a single JSON log line
type JSONLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   *LogContext            `json:"context,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	l := &Logger{level: cfg.Level, json: cfg.JSON}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    valueOr(cfg.MaxSizeMB, 50),
			MaxBackups: valueOr(cfg.MaxBackups, 3),
			MaxAge:     valueOr(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		stdout = io.MultiWriter(stdout, rotator)
		stderr = io.MultiWriter(stderr, rotator)
		l.closer = rotator
	}

	l.out = stdout
	l.errOut = stderr
	l.debug = log.New(stdout, "[DEBUG] ", log.LstdFlags)
	l.info = log.New(stdout, "[INFO]  ", log.LstdFlags)
	l.warn = log.New(stdout, "[WARN]  ", log.LstdFlags)
	l.error = log.New(stderr, "[ERROR] ", log.LstdFlags)
	l.fatal = log.New(stderr, "[FATAL] ", log.LstdFlags)
	return l
}

// NewFromEnv builds a logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// JSON output is also selected when running on Cloud Foundry.
func NewFromEnv() *Logger {
	return New(Config{
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
		JSON:  os.Getenv("LOG_FORMAT") == "json" || os.Getenv("VCAP_APPLICATION") != "",
		File:  os.Getenv("LOG_FILE"),
	})
}

// Discard returns a logger that writes nothing; used by tests and library defaults.
func Discard() *Logger {
	return New(Config{Level: FATAL + 1, Stdout: io.Discard, Stderr: io.Discard})
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func valueOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.emit(DEBUG, nil, nil, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.emit(INFO, nil, nil, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.emit(WARN, nil, nil, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.emit(ERROR, nil, nil, format, v...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.emit(FATAL, nil, nil, format, v...)
	_ = l.Close()
	os.Exit(1)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(ctx *LogContext, format string, v ...interface{}) {
	l.emit(DEBUG, ctx, nil, format, v...)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx *LogContext, format string, v ...interface{}) {
	l.emit(INFO, ctx, nil, format, v...)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(ctx *LogContext, format string, v ...interface{}) {
	l.emit(WARN, ctx, nil, format, v...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx *LogContext, format string, v ...interface{}) {
	l.emit(ERROR, ctx, nil, format, v...)
}

// DebugWithFields logs a debug message with structured fields
func (l *Logger) DebugWithFields(format string, fields map[string]interface{}, v ...interface{}) {
	l.emit(DEBUG, nil, fields, format, v...)
}

// InfoWithFields logs an info message with structured fields
func (l *Logger) InfoWithFields(format string, fields map[string]interface{}, v ...interface{}) {
	l.emit(INFO, nil, fields, format, v...)
}

// WarnWithFields logs a warning message with structured fields
func (l *Logger) WarnWithFields(format string, fields map[string]interface{}, v ...interface{}) {
	l.emit(WARN, nil, fields, format, v...)
}

// ErrorWithFields logs an error message with structured fields
func (l *Logger) ErrorWithFields(format string, fields map[string]interface{}, v ...interface{}) {
	l.emit(ERROR, nil, fields, format, v...)
}

func (l *Logger) emit(level LogLevel, ctx *LogContext, fields map[string]interface{}, format string, v ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	if l.json {
		l.logJSON(level, format, ctx, fields, v...)
		return
	}

	message := format
	if len(v) > 0 {
		message = fmt.Sprintf(format, v...)
	}
	line := formatContext(ctx) + message + formatFields(fields)

	switch level {
	case DEBUG:
		l.debug.Print(line)
	case INFO:
		l.info.Print(line)
	case WARN:
		l.warn.Print(line)
	case ERROR:
		l.error.Print(line)
	default:
		l.fatal.Print(line)
	}
}

// logJSON writes one JSON line; ERROR and above go to stderr
func (l *Logger) logJSON(level LogLevel, format string, ctx *LogContext, fields map[string]interface{}, v ...interface{}) {
	message := format
	if len(v) > 0 {
		message = fmt.Sprintf(format, v...)
	}

	entry := JSONLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Context:   ctx,
		Fields:    fields,
	}

	output := l.out
	if level >= ERROR {
		output = l.errOut
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	encoder := json.NewEncoder(output)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(entry)
}

// formatContext formats context for human-readable logs
func formatContext(ctx *LogContext) string {
	if ctx == nil {
		return ""
	}

	parts := []string{}
	if ctx.RaceID != "" {
		parts = append(parts, fmt.Sprintf("[Race:%s]", ctx.RaceID))
	}
	if ctx.Lane != "" {
		parts = append(parts, fmt.Sprintf("[Lane:%s]", ctx.Lane))
	}
	if ctx.Provider != "" {
		parts = append(parts, fmt.Sprintf("[Provider:%s]", ctx.Provider))
	}
	if ctx.Model != "" {
		parts = append(parts, fmt.Sprintf("[Model:%s]", ctx.Model))
	}
	if ctx.Operation != "" {
		parts = append(parts, fmt.Sprintf("[Op:%s]", ctx.Operation))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "") + " "
}

// formatFields formats structured fields for human-readable logs, sorted by key
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(" |")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// WithContext returns a context logger for chaining
func (l *Logger) WithContext(ctx *LogContext) *ContextLogger {
	return &ContextLogger{
		logger: l,
		ctx:    ctx,
	}
}

// ContextLogger provides context-aware logging
type ContextLogger struct {
	logger *Logger
	ctx    *LogContext
}

// Debug logs a debug message with the context
func (cl *ContextLogger) Debug(format string, v ...interface{}) {
	cl.logger.emit(DEBUG, cl.ctx, nil, format, v...)
}

// Info logs an info message with the context
func (cl *ContextLogger) Info(format string, v ...interface{}) {
	cl.logger.emit(INFO, cl.ctx, nil, format, v...)
}

// Warn logs a warning message with the context
func (cl *ContextLogger) Warn(format string, v ...interface{}) {
	cl.logger.emit(WARN, cl.ctx, nil, format, v...)
}

// Error logs an error message with the context
func (cl *ContextLogger) Error(format string, v ...interface{}) {
	cl.logger.emit(ERROR, cl.ctx, nil, format, v...)
}

// InfoWithFields logs an info message with context and fields
func (cl *ContextLogger) InfoWithFields(format string, fields map[string]interface{}, v ...interface{}) {
	cl.logger.emit(INFO, cl.ctx, fields, format, v...)
}

// ErrorWithFields logs an error message with context and fields
func (cl *ContextLogger) ErrorWithFields(format string, fields map[string]interface{}, v ...interface{}) {
	cl.logger.emit(ERROR, cl.ctx, fields, format, v...)
}
