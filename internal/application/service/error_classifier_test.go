package service

import (
	"context"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
}

func (e statusError) Error() string   { return fmt.Sprintf("request failed with status %d", e.status) }
func (e statusError) StatusCode() int { return e.status }

type stubTranslator struct {
	messages map[string]string
}

func (s stubTranslator) Translate(key, fallback string) string {
	if msg, ok := s.messages[key]; ok {
		return msg
	}
	return fallback
}

func (s stubTranslator) Locale() string { return "en" }

func newTestClassifier() *Classifier {
	return NewClassifier(nil, clockwork.NewFakeClockAt(testEpoch))
}

func TestClassifier_Classify(t *testing.T) {
	classifier := newTestClassifier()

	tests := []struct {
		name      string
		input     any
		code      string
		category  valueobject.ErrorCategory
		severity  valueobject.ErrorSeverity
		retryable bool
		status    int
	}{
		{"status 401", statusError{401}, entity.CodeUnauthorized, valueobject.CategoryAuthentication, valueobject.SeverityHigh, false, 401},
		{"status 403", statusError{403}, entity.CodeForbidden, valueobject.CategoryAuthorization, valueobject.SeverityMedium, false, 403},
		{"status 422", statusError{422}, entity.CodeValidationFailed, valueobject.CategoryValidation, valueobject.SeverityLow, true, 422},
		{"status 503", statusError{503}, entity.CodeServiceUnavailable, valueobject.CategoryService, valueobject.SeverityMedium, true, 503},
		{"fetch message", errors.New("Failed to fetch"), entity.CodeConnectionFailed, valueobject.CategoryNetwork, valueobject.SeverityHigh, true, 0},
		{"network message", "network unreachable", entity.CodeConnectionFailed, valueobject.CategoryNetwork, valueobject.SeverityHigh, true, 0},
		{"validation message", errors.New("Invalid RUT"), entity.CodeInvalidInput, valueobject.CategoryValidation, valueobject.SeverityLow, true, 0},
		{"unknown message", errors.New("something odd"), entity.CodeUnknown, valueobject.CategoryUnknown, valueobject.SeverityMedium, true, 0},
		{"non error value", 42, entity.CodeUnknown, valueobject.CategoryUnknown, valueobject.SeverityMedium, true, 0},
		{"deadline", context.DeadlineExceeded, entity.CodeNetworkTimeout, valueobject.CategoryNetwork, valueobject.SeverityHigh, true, 0},
		{"cancelled", fmt.Errorf("load: %w", context.Canceled), entity.CodeRequestCancelled, valueobject.CategoryNetwork, valueobject.SeverityHigh, false, 0},
		{"missing file", fmt.Errorf("open: %w", fs.ErrNotExist), entity.CodeFileNotFound, valueobject.CategoryFileSystem, valueobject.SeverityMedium, true, 0},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}, entity.CodeFileAccessFailed, valueobject.CategoryFileSystem, valueobject.SeverityMedium, true, 0},
		{"postgres", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, entity.CodeQueryFailed, valueobject.CategoryDatabase, valueobject.SeverityCritical, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifier.Classify(tt.input)

			require.NotNil(t, classified)
			assert.Equal(t, tt.code, classified.Code())
			assert.Equal(t, tt.category, classified.Category())
			assert.Equal(t, tt.severity, classified.Severity())
			assert.Equal(t, tt.retryable, classified.Retryable())
			assert.Equal(t, tt.status, classified.StatusCode())
			assert.NotEmpty(t, classified.UserMessage())
			assert.True(t, testEpoch.Equal(classified.Timestamp()))
		})
	}
}

func TestClassifier_ClassifyNilAndPassThrough(t *testing.T) {
	classifier := newTestClassifier()

	assert.Nil(t, classifier.Classify(nil))

	original := classifier.NewAuthenticationError("token expired")
	assert.Same(t, original, classifier.Classify(original))
	assert.Same(t, original, classifier.Classify(fmt.Errorf("wrapped: %w", original)))
}

func TestClassifier_PostgresTechnicalMessage(t *testing.T) {
	classified := newTestClassifier().Classify(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	assert.Equal(t, "duplicate key (SQLSTATE 23505)", classified.TechnicalMessage())
}

func TestClassifier_Constructors(t *testing.T) {
	classifier := newTestClassifier()

	t.Run("network error without status escalates to high", func(t *testing.T) {
		assert.Equal(t, valueobject.SeverityHigh, classifier.NewNetworkError("offline", 0).Severity())
		assert.Equal(t, valueobject.SeverityHigh, classifier.NewNetworkError("bad gateway", 502).Severity())
		assert.Equal(t, valueobject.SeverityMedium, classifier.NewNetworkError("not found", 404).Severity())
	})

	t.Run("fatal service error is not retryable", func(t *testing.T) {
		fatal := classifier.NewServiceError("corrupted state", true)
		assert.Equal(t, entity.CodeServiceFatal, fatal.Code())
		assert.Equal(t, valueobject.SeverityHigh, fatal.Severity())
		assert.False(t, fatal.Retryable())

		transient := classifier.NewServiceError("busy", false)
		assert.True(t, transient.Retryable())
	})

	t.Run("circuit open error", func(t *testing.T) {
		open := classifier.NewCircuitOpenError("calendar")
		assert.Equal(t, entity.CodeCircuitOpen, open.Code())
		assert.False(t, open.Retryable())
		assert.Contains(t, open.TechnicalMessage(), "calendar")
	})

	t.Run("code with foreign prefix is replaced", func(t *testing.T) {
		err := classifier.NewValidationError("bad", WithCode("NETWORK_TIMEOUT"))
		assert.Equal(t, entity.CodeValidationFailed, err.Code())
	})

	t.Run("options override defaults", func(t *testing.T) {
		err := classifier.NewUIError("render failed",
			WithSeverity(valueobject.SeverityCritical),
			WithRetryable(false),
			WithErrorContext(valueobject.ContextAdmin),
		)
		assert.Equal(t, valueobject.SeverityCritical, err.Severity())
		assert.False(t, err.Retryable())
		assert.Equal(t, valueobject.ContextAdmin, err.Context())
	})
}

func TestClassifier_ClassifyPanic(t *testing.T) {
	classifier := newTestClassifier()

	fromString := classifier.ClassifyPanic("nil map write")
	assert.Equal(t, entity.CodeRuntimeError, fromString.Code())
	assert.Contains(t, fromString.TechnicalMessage(), "nil map write")

	fromNetwork := classifier.ClassifyPanic(context.DeadlineExceeded)
	assert.Equal(t, entity.CodeNetworkTimeout, fromNetwork.Code())
}

func TestClassifier_ClassifyReported(t *testing.T) {
	classifier := newTestClassifier()

	byCode := classifier.ClassifyReported("NETWORK_TIMEOUT", "took too long", 0)
	assert.Equal(t, valueobject.CategoryNetwork, byCode.Category())
	assert.Equal(t, "NETWORK_TIMEOUT", byCode.Code())

	byStatus := classifier.ClassifyReported("", "server said no", 403)
	assert.Equal(t, valueobject.CategoryAuthorization, byStatus.Category())

	byMessage := classifier.ClassifyReported("", "Failed to fetch", 0)
	assert.Equal(t, valueobject.CategoryNetwork, byMessage.Category())
}

func TestClassifier_ClassifyReported_AppliesCategoryRules(t *testing.T) {
	classifier := newTestClassifier()

	tests := []struct {
		name      string
		code      string
		status    int
		severity  valueobject.ErrorSeverity
		retryable bool
	}{
		{"network without status", entity.CodeConnectionFailed, 0, valueobject.SeverityHigh, true},
		{"network with 5xx", entity.CodeConnectionFailed, 502, valueobject.SeverityHigh, true},
		{"network with 4xx", entity.CodeConnectionFailed, 404, valueobject.SeverityMedium, true},
		{"fatal service", entity.CodeServiceFatal, 0, valueobject.SeverityHigh, false},
		{"open circuit", entity.CodeCircuitOpen, 0, valueobject.SeverityMedium, false},
		{"database", "DATABASE_QUERY_FAILED", 0, valueobject.SeverityCritical, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifier.ClassifyReported(tt.code, "x", tt.status)
			assert.Equal(t, tt.code, classified.Code())
			assert.Equal(t, tt.status, classified.StatusCode())
			assert.Equal(t, tt.severity, classified.Severity())
			assert.Equal(t, tt.retryable, classified.Retryable())
		})
	}
}

func TestClassifier_FormatForContext(t *testing.T) {
	classifier := newTestClassifier()
	err := classifier.NewNetworkError("dial tcp: connection refused", 0)

	public := classifier.FormatForContext(err, valueobject.ContextPublic)
	assert.Equal(t, err.UserMessage(), public)
	assert.NotContains(t, public, "dial tcp")

	admin := classifier.FormatForContext(err, valueobject.ContextAdmin)
	assert.Contains(t, admin, err.UserMessage())
	assert.Contains(t, admin, entity.CodeConnectionFailed)
	assert.Contains(t, admin, "dial tcp: connection refused")

	assert.Empty(t, classifier.FormatForContext(nil, valueobject.ContextAdmin))
}

func TestClassifier_Translator(t *testing.T) {
	translated := newTestClassifier().WithTranslator(stubTranslator{messages: map[string]string{
		entity.MessageKey(entity.CodeUnauthorized): "Your session has expired.",
	}})

	assert.Equal(t, "Your session has expired.", translated.NewAuthenticationError("expired").UserMessage())
	assert.Equal(t,
		defaultUserMessages[entity.CodeForbidden],
		translated.NewAuthorizationError("denied").UserMessage(),
	)
}
