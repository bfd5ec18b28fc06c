package inbound

import (
	"context"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"time"
)

// BreakerSnapshot is a point-in-time view of one circuit breaker.
type BreakerSnapshot struct {
	Name             string                   `json:"name"`
	State            valueobject.CircuitState `json:"state"`
	FailureCount     int                      `json:"failure_count"`
	FailureThreshold int                      `json:"failure_threshold"`
	LastFailure      *time.Time               `json:"last_failure,omitempty"`
}

// DegradationStatus describes the cached state of one degradation key.
type DegradationStatus struct {
	Key          string `json:"key"`
	Degraded     bool   `json:"degraded"`
	FailureCount int    `json:"failure_count"`
	HasValue     bool   `json:"has_value"`
}

// ClientErrorReport is an error filed by a browser client. SessionID selects the
// client session whose breadcrumbs the report snapshots; without one the report
// carries no breadcrumbs.
type ClientErrorReport struct {
	SessionID string                   `json:"session_id"`
	Code      string                   `json:"code"`
	Message   string                   `json:"message"`
	Status    int                      `json:"status"`
	Context   valueobject.ErrorContext `json:"context"`
	URL       string                   `json:"url"`
	UserAgent string                   `json:"user_agent"`
	Viewport  *entity.Viewport         `json:"viewport,omitempty"`
	UserID    string                   `json:"user_id"`
	UserRole  string                   `json:"user_role"`
	Metadata  map[string]any           `json:"metadata"`
}

// ClientInfo describes the browser behind a client session.
type ClientInfo struct {
	UserAgent string
	Viewport  *entity.Viewport
}

// RecoveryService is the operator and client facing surface served over HTTP.
type RecoveryService interface {
	ListBreakers() []BreakerSnapshot
	ResetBreaker(name string) error

	DegradedKeys() []DegradationStatus
	DegradationStatus(key string) DegradationStatus
	ClearDegradation(key string)

	ListNotifications() []entity.Notification
	DismissNotification(id string) bool

	Reports() []*entity.ErrorReport
	SubmitClientError(ctx context.Context, report ClientErrorReport) (string, error)

	// Instrumentation feeds the process's own session.
	Instrumentation() InstrumentationPort

	// ClientInstrumentation feeds the session of one browser client.
	ClientInstrumentation(sessionID string, info ClientInfo) (InstrumentationPort, error)
}
