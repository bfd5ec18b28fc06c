package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// Context keys for correlation ID management
const (
	CorrelationIDKey contextKey = "correlation_id"
	RequestIDKey     contextKey = "request_id"
	UserContextKey   contextKey = "user_context"
)

// UserContext holds user-specific context information
type UserContext struct {
	UserID    string
	UserRole  string
	ClientIP  string
	UserAgent string
}

// WithCorrelationID stores a correlation id on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// EnsureCorrelationID returns ctx unchanged when it already carries a
// correlation id, otherwise a child context with a fresh one.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithCorrelationID(ctx, id), id
}

// WithRequestID stores a request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// WithUserContext stores user information on the context.
func WithUserContext(ctx context.Context, userCtx UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, userCtx)
}

// CorrelationIDFromContext returns the correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDFromContext returns the request id, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// UserContextFromContext returns the user information, if any.
func UserContextFromContext(ctx context.Context) (UserContext, bool) {
	if ctx == nil {
		return UserContext{}, false
	}
	userCtx, ok := ctx.Value(UserContextKey).(UserContext)
	return userCtx, ok
}
