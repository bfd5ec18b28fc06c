package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ApplicationLogger defines the interface for structured application logging
type ApplicationLogger interface {
	Debug(ctx context.Context, message string, fields Fields)
	Info(ctx context.Context, message string, fields Fields)
	Warn(ctx context.Context, message string, fields Fields)
	Error(ctx context.Context, message string, fields Fields)
	ErrorWithError(ctx context.Context, err error, message string, fields Fields)
	LogPerformance(ctx context.Context, operation string, duration time.Duration, fields Fields)
	WithComponent(component string) ApplicationLogger
}

// Fields represents structured logging fields
type Fields map[string]interface{}

// Config represents logger configuration
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, buffer (for testing)
}

var levelOrder = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

// LogEntry represents the structure of log entries
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id"`
	Component     string                 `json:"component"`
	Operation     string                 `json:"operation,omitempty"`
	Duration      string                 `json:"duration,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

// syncBuffer guards the in-memory output used by tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// applicationLoggerImpl implements ApplicationLogger
type applicationLoggerImpl struct {
	config    Config
	minLevel  int
	component string
	buffer    *syncBuffer // For testing
	logger    *log.Logger
}

// NewApplicationLogger creates a new application logger
func NewApplicationLogger(config Config) (ApplicationLogger, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	logger := &applicationLoggerImpl{
		config:   config,
		minLevel: levelOrder[strings.ToUpper(config.Level)],
	}

	var out io.Writer
	switch config.Output {
	case "buffer":
		logger.buffer = &syncBuffer{}
		out = logger.buffer
	case "stderr":
		out = os.Stderr
	default:
		out = os.Stdout
	}
	logger.logger = log.New(out, "", 0)

	return logger, nil
}

// NewBufferLogger returns a DEBUG level JSON logger writing to memory.
func NewBufferLogger() ApplicationLogger {
	logger, err := NewApplicationLogger(Config{Level: "DEBUG", Format: "json", Output: "buffer"})
	if err != nil {
		panic("buffer logger config rejected: " + err.Error())
	}
	return logger
}

// validateConfig validates logger configuration
func validateConfig(config Config) error {
	if _, ok := levelOrder[strings.ToUpper(config.Level)]; !ok {
		return fmt.Errorf("invalid log level: %s", config.Level)
	}

	switch config.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "stdout", "stderr", "buffer":
	default:
		return fmt.Errorf("invalid log output: %s", config.Output)
	}

	return nil
}

func (l *applicationLoggerImpl) shouldLog(level string) bool {
	return levelOrder[level] >= l.minLevel
}

// Debug logs debug messages
func (l *applicationLoggerImpl) Debug(ctx context.Context, message string, fields Fields) {
	if l.shouldLog("DEBUG") {
		l.logEntry(ctx, "DEBUG", message, "", fields)
	}
}

// Info logs info messages
func (l *applicationLoggerImpl) Info(ctx context.Context, message string, fields Fields) {
	if l.shouldLog("INFO") {
		l.logEntry(ctx, "INFO", message, "", fields)
	}
}

// Warn logs warning messages
func (l *applicationLoggerImpl) Warn(ctx context.Context, message string, fields Fields) {
	if l.shouldLog("WARN") {
		l.logEntry(ctx, "WARN", message, "", fields)
	}
}

// Error logs error messages
func (l *applicationLoggerImpl) Error(ctx context.Context, message string, fields Fields) {
	if l.shouldLog("ERROR") {
		l.logEntry(ctx, "ERROR", message, "", fields)
	}
}

// ErrorWithError logs error messages with an error object
func (l *applicationLoggerImpl) ErrorWithError(ctx context.Context, err error, message string, fields Fields) {
	if !l.shouldLog("ERROR") {
		return
	}
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	l.logEntry(ctx, "ERROR", message, errStr, fields)
}

// LogPerformance logs performance metrics
func (l *applicationLoggerImpl) LogPerformance(
	ctx context.Context,
	operation string,
	duration time.Duration,
	fields Fields,
) {
	if !l.shouldLog("INFO") {
		return
	}
	merged := make(Fields, len(fields)+2)
	for k, v := range fields {
		merged[k] = v
	}
	merged["operation"] = operation
	merged["duration"] = duration.String()
	l.logEntry(ctx, "INFO", "Performance metrics for "+operation, "", merged)
}

// WithComponent creates a new logger instance with a specific component
func (l *applicationLoggerImpl) WithComponent(component string) ApplicationLogger {
	return &applicationLoggerImpl{
		config:    l.config,
		minLevel:  l.minLevel,
		component: component,
		buffer:    l.buffer,
		logger:    l.logger,
	}
}

func (l *applicationLoggerImpl) logEntry(ctx context.Context, level, message, errorStr string, fields Fields) {
	component := l.component
	if component == "" {
		component = "default"
	}

	entry := &LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Level:         level,
		Message:       message,
		CorrelationID: getOrGenerateCorrelationID(ctx),
		Component:     component,
		Error:         errorStr,
	}

	if len(fields) > 0 {
		entry.Metadata = make(map[string]interface{}, len(fields))
		for key, value := range fields {
			switch key {
			case "operation":
				if operation, ok := value.(string); ok {
					entry.Operation = operation
				}
			case "duration":
				if duration, ok := value.(string); ok {
					entry.Duration = duration
				}
			}
			entry.Metadata[key] = value
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		entry.Context = map[string]interface{}{"request_id": requestID}
	}
	if userCtx, ok := UserContextFromContext(ctx); ok {
		if entry.Context == nil {
			entry.Context = make(map[string]interface{}, 3)
		}
		entry.Context["user_id"] = userCtx.UserID
		entry.Context["client_ip"] = userCtx.ClientIP
		entry.Context["user_agent"] = userCtx.UserAgent
	}

	l.writeLogEntry(entry)
}

func (l *applicationLoggerImpl) writeLogEntry(entry *LogEntry) {
	if l.config.Format == "json" {
		jsonData, err := json.Marshal(entry)
		if err != nil {
			l.logger.Printf("[%s] ERROR logging: failed to encode entry: %v", entry.Timestamp, err)
			return
		}
		l.logger.Println(string(jsonData))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: %s", entry.Timestamp, entry.Level, entry.Component, entry.Message)
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%q", entry.Error)
	}
	keys := make([]string, 0, len(entry.Metadata))
	for k := range entry.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Metadata[k])
	}
	l.logger.Print(b.String())
}

func getOrGenerateCorrelationID(ctx context.Context) string {
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		return correlationID
	}
	return uuid.New().String()
}

// Entries parses everything a buffer logger has written. Loggers with other
// outputs return nil.
func Entries(logger ApplicationLogger) []LogEntry {
	appLogger, ok := logger.(*applicationLoggerImpl)
	if !ok || appLogger.buffer == nil {
		return nil
	}

	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(appLogger.buffer.String()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}
