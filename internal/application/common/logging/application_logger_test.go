package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApplicationLogger_CreateStructuredLogger tests creation of structured logger.
func TestApplicationLogger_CreateStructuredLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "create logger with JSON format",
			config: Config{Level: "INFO", Format: "json", Output: "stdout"},
		},
		{
			name:   "create logger with text format and lowercase level",
			config: Config{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name:    "create logger with invalid level",
			config:  Config{Level: "INVALID", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "create logger with invalid format",
			config:  Config{Level: "INFO", Format: "xml", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "create logger with invalid output",
			config:  Config{Level: "INFO", Format: "json", Output: "syslog"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewApplicationLogger(tt.config)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}

			require.NoError(t, err)
			assert.Implements(t, (*ApplicationLogger)(nil), logger)
		})
	}
}

// TestApplicationLogger_LogLevels tests different log levels.
func TestApplicationLogger_LogLevels(t *testing.T) {
	logger := NewBufferLogger()
	ctx := WithCorrelationID(context.Background(), "test-correlation-123")

	logger.Debug(ctx, "debug message", Fields{"k": "v"})
	logger.Info(ctx, "info message", nil)
	logger.Warn(ctx, "warn message", nil)
	logger.Error(ctx, "error message", nil)
	logger.ErrorWithError(ctx, errors.New("test error"), "operation failed", Fields{"operation": "test_op"})

	entries := Entries(logger)
	require.Len(t, entries, 5)

	expected := []struct{ level, message string }{
		{"DEBUG", "debug message"},
		{"INFO", "info message"},
		{"WARN", "warn message"},
		{"ERROR", "error message"},
		{"ERROR", "operation failed"},
	}
	for i, want := range expected {
		assert.Equal(t, want.level, entries[i].Level)
		assert.Equal(t, want.message, entries[i].Message)
		assert.Equal(t, "test-correlation-123", entries[i].CorrelationID)
		assert.Equal(t, "default", entries[i].Component)
	}
	assert.Equal(t, "test error", entries[4].Error)
	assert.Equal(t, "test_op", entries[4].Operation)
}

func TestApplicationLogger_LevelFiltering(t *testing.T) {
	logger, err := NewApplicationLogger(Config{Level: "WARN", Format: "json", Output: "buffer"})
	require.NoError(t, err)

	logger.Debug(context.Background(), "hidden", nil)
	logger.Info(context.Background(), "hidden", nil)
	logger.LogPerformance(context.Background(), "hidden", time.Second, nil)
	logger.Warn(context.Background(), "shown", nil)

	entries := Entries(logger)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}

// TestApplicationLogger_CorrelationIDGeneration tests correlation ID handling.
func TestApplicationLogger_CorrelationIDGeneration(t *testing.T) {
	logger := NewBufferLogger()

	logger.Info(context.Background(), "test message", Fields{})

	entries := Entries(logger)
	require.Len(t, entries, 1)
	_, err := uuid.Parse(entries[0].CorrelationID)
	assert.NoError(t, err, "Generated correlation ID should be valid UUID")
}

func TestApplicationLogger_ContextValues(t *testing.T) {
	logger := NewBufferLogger()
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserContext(ctx, UserContext{UserID: "u-1", ClientIP: "10.0.0.1", UserAgent: "test"})

	logger.Info(ctx, "with context", nil)

	entries := Entries(logger)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].Context["request_id"])
	assert.Equal(t, "u-1", entries[0].Context["user_id"])
	assert.Equal(t, "10.0.0.1", entries[0].Context["client_ip"])
}

func TestApplicationLogger_WithComponentSharesOutput(t *testing.T) {
	logger := NewBufferLogger()
	child := logger.WithComponent("circuit-breaker")

	child.LogPerformance(context.Background(), "probe", 150*time.Millisecond, Fields{"attempts": 2})
	logger.Info(context.Background(), "root", nil)

	entries := Entries(logger)
	require.Len(t, entries, 2)
	assert.Equal(t, "circuit-breaker", entries[0].Component)
	assert.Equal(t, "probe", entries[0].Operation)
	assert.Equal(t, "150ms", entries[0].Duration)
	assert.Equal(t, float64(2), entries[0].Metadata["attempts"])
	assert.Equal(t, "default", entries[1].Component)
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))

	same, sameID := EnsureCorrelationID(ctx)
	assert.Equal(t, id, sameID)
	assert.Equal(t, ctx, same)
}

func TestEntries_NonBufferLogger(t *testing.T) {
	logger, err := NewApplicationLogger(Config{Level: "INFO", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Nil(t, Entries(logger))
}
