package entity

import (
	"edurecovery/internal/domain/valueobject"
	"errors"
	"time"
)

// ForwardedBreadcrumbs is how many of the most recent breadcrumbs travel with
// a forwarded report.
const ForwardedBreadcrumbs = 10

// Viewport is the client's window size at report time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ErrorReport wraps a ClassifiedError with the session state observed when it
// was filed.
type ErrorReport struct {
	ID          string
	Error       *ClassifiedError
	Timestamp   time.Time
	URL         string
	UserAgent   string
	UserID      string
	UserRole    string
	SessionID   string
	Context     valueobject.ErrorContext
	Breadcrumbs []Breadcrumb
	Viewport    Viewport
	Metadata    map[string]any
}

// Validate checks the fields every stored report must carry.
func (r *ErrorReport) Validate() error {
	if r.ID == "" {
		return errors.New("error report: id cannot be empty")
	}
	if r.Error == nil {
		return errors.New("error report: error cannot be nil")
	}
	if r.SessionID == "" {
		return errors.New("error report: session id cannot be empty")
	}
	if r.Timestamp.IsZero() {
		return errors.New("error report: timestamp cannot be zero")
	}
	return nil
}

// ShouldForward reports whether this report belongs to the tiers sent to external sinks.
func (r *ErrorReport) ShouldForward() bool {
	return r.Error != nil && r.Error.Severity().RequiresExternalReport()
}

// ReportPayloadError is the error block of a forwarded report.
type ReportPayloadError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Context  string `json:"context,omitempty"`
}

// ReportPayload is the JSON document POSTed or published to external sinks.
type ReportPayload struct {
	ID          string             `json:"id"`
	Error       ReportPayloadError `json:"error"`
	Timestamp   string             `json:"timestamp"`
	URL         string             `json:"url"`
	UserID      string             `json:"userId,omitempty"`
	UserRole    string             `json:"userRole,omitempty"`
	SessionID   string             `json:"sessionId"`
	Context     string             `json:"context"`
	Breadcrumbs []Breadcrumb       `json:"breadcrumbs"`
	Metadata    map[string]any     `json:"metadata"`
}

// Payload renders the forwarded form of the report, keeping only the last
// ForwardedBreadcrumbs breadcrumbs.
func (r *ErrorReport) Payload() ReportPayload {
	crumbs := r.Breadcrumbs
	if len(crumbs) > ForwardedBreadcrumbs {
		crumbs = crumbs[len(crumbs)-ForwardedBreadcrumbs:]
	}
	forwarded := make([]Breadcrumb, len(crumbs))
	copy(forwarded, crumbs)

	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	payload := ReportPayload{
		ID:          r.ID,
		Timestamp:   r.Timestamp.UTC().Format(time.RFC3339Nano),
		URL:         r.URL,
		UserID:      r.UserID,
		UserRole:    r.UserRole,
		SessionID:   r.SessionID,
		Context:     r.Context.String(),
		Breadcrumbs: forwarded,
		Metadata:    metadata,
	}
	if r.Error != nil {
		payload.Error = ReportPayloadError{
			Code:     r.Error.Code(),
			Message:  r.Error.TechnicalMessage(),
			Severity: r.Error.Severity().String(),
			Context:  r.Error.Context().String(),
		}
	}
	return payload
}
