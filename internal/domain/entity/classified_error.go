package entity

import (
	"edurecovery/internal/domain/valueobject"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ClassifiedError is the canonical error representation surfaced past the
// classification boundary. It is immutable once constructed.
type ClassifiedError struct {
	code             string
	category         valueobject.ErrorCategory
	severity         valueobject.ErrorSeverity
	retryable        bool
	userMessage      string
	technicalMessage string
	timestamp        time.Time
	statusCode       int
	errContext       valueobject.ErrorContext
	cause            error
}

// ClassifiedErrorParams carries the inputs for NewClassifiedError.
type ClassifiedErrorParams struct {
	Code             string
	Category         valueobject.ErrorCategory
	Severity         valueobject.ErrorSeverity
	Retryable        bool
	UserMessage      string
	TechnicalMessage string
	Timestamp        time.Time
	StatusCode       int
	Context          valueobject.ErrorContext
	Cause            error
}

var errorCodeRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// NewClassifiedError validates params and builds a ClassifiedError.
func NewClassifiedError(params ClassifiedErrorParams) (*ClassifiedError, error) {
	if params.Code == "" {
		return nil, errors.New("classified_error: code cannot be empty")
	}
	if len(params.Code) > 100 {
		return nil, errors.New("classified_error: code cannot exceed 100 characters")
	}
	if !errorCodeRegex.MatchString(params.Code) {
		return nil, fmt.Errorf("classified_error: code %q must be upper snake case", params.Code)
	}
	if !params.Category.IsValid() {
		return nil, fmt.Errorf("classified_error: invalid category %q", params.Category)
	}
	if codeCategory, ok := valueobject.CategoryForCode(params.Code); !ok || codeCategory != params.Category {
		return nil, fmt.Errorf(
			"classified_error: code %q must start with %s",
			params.Code,
			params.Category.CodePrefix(),
		)
	}
	if !params.Severity.IsValid() {
		return nil, fmt.Errorf("classified_error: invalid severity %q", params.Severity)
	}
	if strings.TrimSpace(params.UserMessage) == "" {
		return nil, errors.New("classified_error: user message cannot be empty")
	}
	if params.Timestamp.IsZero() {
		return nil, errors.New("classified_error: timestamp cannot be zero")
	}
	if params.StatusCode < 0 {
		return nil, errors.New("classified_error: status code cannot be negative")
	}

	errCtx, err := valueobject.NewErrorContext(string(params.Context))
	if err != nil {
		return nil, fmt.Errorf("classified_error: %w", err)
	}

	technical := params.TechnicalMessage
	if technical == "" && params.Cause != nil {
		technical = params.Cause.Error()
	}

	return &ClassifiedError{
		code:             params.Code,
		category:         params.Category,
		severity:         params.Severity,
		retryable:        params.Retryable,
		userMessage:      params.UserMessage,
		technicalMessage: technical,
		timestamp:        params.Timestamp.UTC(),
		statusCode:       params.StatusCode,
		errContext:       errCtx,
		cause:            params.Cause,
	}, nil
}

// Code returns the category-prefixed error code.
func (e *ClassifiedError) Code() string { return e.code }

// Category returns the taxonomy bucket.
func (e *ClassifiedError) Category() valueobject.ErrorCategory { return e.category }

// Severity returns the severity.
func (e *ClassifiedError) Severity() valueobject.ErrorSeverity { return e.severity }

// Retryable reports whether another attempt is worth making.
func (e *ClassifiedError) Retryable() bool { return e.retryable }

// UserMessage returns the localized, user-safe message.
func (e *ClassifiedError) UserMessage() string { return e.userMessage }

// TechnicalMessage returns the raw diagnostic text.
func (e *ClassifiedError) TechnicalMessage() string { return e.technicalMessage }

// Timestamp returns when the error was classified.
func (e *ClassifiedError) Timestamp() time.Time { return e.timestamp }

// StatusCode returns the HTTP status, or 0 when none was observed.
func (e *ClassifiedError) StatusCode() int { return e.statusCode }

// HasStatusCode reports whether an HTTP status was observed.
func (e *ClassifiedError) HasStatusCode() bool { return e.statusCode > 0 }

// Context returns the context tag.
func (e *ClassifiedError) Context() valueobject.ErrorContext { return e.errContext }

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.technicalMessage == "" {
		return e.code
	}
	return e.code + ": " + e.technicalMessage
}

// Unwrap exposes the original cause to errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error { return e.cause }

// Is matches another ClassifiedError carrying the same code.
func (e *ClassifiedError) Is(target error) bool {
	var other *ClassifiedError
	if !errors.As(target, &other) {
		return false
	}
	return other.code == e.code
}

// WithContext returns a copy tagged with the given context.
func (e *ClassifiedError) WithContext(errCtx valueobject.ErrorContext) *ClassifiedError {
	clone := *e
	clone.errContext = errCtx
	return &clone
}

// WithSeverity returns a copy carrying a different severity. Invalid levels are ignored.
func (e *ClassifiedError) WithSeverity(severity valueobject.ErrorSeverity) *ClassifiedError {
	clone := *e
	if severity.IsValid() {
		clone.severity = severity
	}
	return &clone
}

// WithUserMessage returns a copy with a different user-facing message.
func (e *ClassifiedError) WithUserMessage(message string) *ClassifiedError {
	clone := *e
	clone.userMessage = message
	return &clone
}

type classifiedErrorJSON struct {
	Code             string    `json:"code"`
	Category         string    `json:"category"`
	Severity         string    `json:"severity"`
	Retryable        bool      `json:"retryable"`
	UserMessage      string    `json:"userMessage"`
	TechnicalMessage string    `json:"technicalMessage,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	StatusCode       int       `json:"statusCode,omitempty"`
	Context          string    `json:"context,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *ClassifiedError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toJSON(true))
}

func (e *ClassifiedError) toJSON(technical bool) classifiedErrorJSON {
	out := classifiedErrorJSON{
		Code:        e.code,
		Category:    e.category.String(),
		Severity:    e.severity.String(),
		Retryable:   e.retryable,
		UserMessage: e.userMessage,
		Timestamp:   e.timestamp,
		StatusCode:  e.statusCode,
		Context:     e.errContext.String(),
	}
	if technical {
		out.TechnicalMessage = e.technicalMessage
	}
	return out
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}
