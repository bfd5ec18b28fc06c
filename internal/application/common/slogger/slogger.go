package slogger

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"sync"
)

// Fields is an alias for logging.Fields for convenience.
type Fields = logging.Fields

// LoggerManager holds the process-wide logger used by commands and adapters
// that are not handed one explicitly.
type LoggerManager struct {
	mu     sync.RWMutex
	logger logging.ApplicationLogger
}

var defaultManager = &LoggerManager{} //nolint:gochecknoglobals // Required for package level logging functions

// getLogger returns the logger instance, initializing it if necessary.
func (lm *LoggerManager) getLogger() logging.ApplicationLogger {
	lm.mu.RLock()
	logger := lm.logger
	lm.mu.RUnlock()
	if logger != nil {
		return logger
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.logger == nil {
		created, err := logging.NewApplicationLogger(logging.Config{
			Level:  "INFO",
			Format: "json",
			Output: "stdout",
		})
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
		lm.logger = created
	}
	return lm.logger
}

// SetLogger replaces the managed logger.
func (lm *LoggerManager) SetLogger(logger logging.ApplicationLogger) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logger = logger
}

// SetGlobalLogger sets the logger behind the package level functions.
func SetGlobalLogger(logger logging.ApplicationLogger) {
	defaultManager.SetLogger(logger)
}

// Logger returns the logger behind the package level functions.
func Logger() logging.ApplicationLogger {
	return defaultManager.getLogger()
}

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	Logger().Debug(ctx, msg, fields)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	Logger().Info(ctx, msg, fields)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	Logger().Warn(ctx, msg, fields)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	Logger().Error(ctx, msg, fields)
}

// ErrorWithError logs an error message with an error object and context.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	Logger().ErrorWithError(ctx, err, msg, fields)
}

// InfoNoCtx logs an info message without context (uses background context).
func InfoNoCtx(msg string, fields Fields) {
	Logger().Info(context.Background(), msg, fields)
}

// WarnNoCtx logs a warning message without context (uses background context).
func WarnNoCtx(msg string, fields Fields) {
	Logger().Warn(context.Background(), msg, fields)
}

// ErrorWithErrorNoCtx logs an error message with an error object without context.
func ErrorWithErrorNoCtx(err error, msg string, fields Fields) {
	Logger().ErrorWithError(context.Background(), err, msg, fields)
}

// Field creates a single-field Fields map.
func Field(key string, value interface{}) Fields {
	return Fields{key: value}
}

// WithComponent returns a logger with a specific component name.
func WithComponent(component string) logging.ApplicationLogger {
	return Logger().WithComponent(component)
}
