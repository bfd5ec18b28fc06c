package api

import (
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/port/outbound"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	maxEventsPerBatch = 100
	defaultReportList = 50
)

// Instrumentation event types accepted from clients.
const (
	EventNavigation = "navigation"
	EventUser       = "user"
	EventAPI        = "api"
)

// APICallEvent is a client-side API call.
type APICallEvent struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	Status     int    `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// InstrumentationEvent is one navigation, user or api event pushed by a client.
type InstrumentationEvent struct {
	Type   string              `json:"type"`
	URL    string              `json:"url,omitempty"`
	Action *inbound.UserAction `json:"action,omitempty"`
	API    *APICallEvent       `json:"api,omitempty"`
}

// InstrumentationBatch is the body of POST /api/v1/instrumentation/events.
// Events are recorded on the client session named by SessionID.
type InstrumentationBatch struct {
	SessionID string                 `json:"session_id"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Viewport  *entity.Viewport       `json:"viewport,omitempty"`
	Events    []InstrumentationEvent `json:"events"`
}

// ClientErrorResponse acknowledges a submitted client error.
type ClientErrorResponse struct {
	ID string `json:"id"`
}

// ReportListResponse lists report payloads.
type ReportListResponse struct {
	Source  string                 `json:"source"`
	Reports []entity.ReportPayload `json:"reports"`
}

// RecoveryHandler exposes the recovery service over HTTP.
type RecoveryHandler struct {
	service      inbound.RecoveryService
	reports      outbound.ReportRepository
	errorHandler ErrorHandler
}

// NewRecoveryHandler creates a RecoveryHandler. reports may be nil when no report
// store is configured.
func NewRecoveryHandler(
	service inbound.RecoveryService,
	reports outbound.ReportRepository,
	errorHandler ErrorHandler,
) *RecoveryHandler {
	return &RecoveryHandler{service: service, reports: reports, errorHandler: errorHandler}
}

// ListBreakers handles GET /api/v1/breakers.
func (h *RecoveryHandler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.service.ListBreakers())
}

// ResetBreaker handles POST /api/v1/breakers/{name}/reset.
func (h *RecoveryHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.service.ResetBreaker(name); err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}
	for _, snapshot := range h.service.ListBreakers() {
		if snapshot.Name == name {
			h.writeJSON(w, r, http.StatusOK, snapshot)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDegraded handles GET /api/v1/degradation.
func (h *RecoveryHandler) ListDegraded(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.service.DegradedKeys())
}

// GetDegradation handles GET /api/v1/degradation/{key}.
func (h *RecoveryHandler) GetDegradation(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.service.DegradationStatus(r.PathValue("key")))
}

// ClearDegradation handles DELETE /api/v1/degradation/{key}.
func (h *RecoveryHandler) ClearDegradation(w http.ResponseWriter, r *http.Request) {
	h.service.ClearDegradation(r.PathValue("key"))
	w.WriteHeader(http.StatusNoContent)
}

// ListNotifications handles GET /api/v1/notifications.
func (h *RecoveryHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.service.ListNotifications())
}

// DismissNotification handles DELETE /api/v1/notifications/{id}.
func (h *RecoveryHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.service.DismissNotification(id) {
		h.errorHandler.HandleServiceError(w, r, fmt.Errorf("notification %s: %w", id, ErrNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListReports handles GET /api/v1/reports. ?source=stored reads the report
// repository instead of the in-memory buffer.
func (h *RecoveryHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportList
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.errorHandler.HandleValidationError(w, r, NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	switch source := r.URL.Query().Get("source"); source {
	case "", "memory":
		reports := h.service.Reports()
		if len(reports) > limit {
			reports = reports[len(reports)-limit:]
		}
		payloads := make([]entity.ReportPayload, 0, len(reports))
		for i := len(reports) - 1; i >= 0; i-- {
			payloads = append(payloads, reports[i].Payload())
		}
		h.writeJSON(w, r, http.StatusOK, ReportListResponse{Source: "memory", Reports: payloads})
	case "stored":
		if h.reports == nil {
			h.errorHandler.HandleValidationError(w, r, NewValidationError("source", "no report store is configured"))
			return
		}
		payloads, err := h.reports.ListRecent(r.Context(), limit)
		if err != nil {
			h.errorHandler.HandleServiceError(w, r, err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, ReportListResponse{Source: "stored", Reports: payloads})
	default:
		h.errorHandler.HandleValidationError(w, r, NewValidationError("source", "must be memory or stored"))
	}
}

// SubmitClientError handles POST /api/v1/errors.
func (h *RecoveryHandler) SubmitClientError(w http.ResponseWriter, r *http.Request) {
	var report inbound.ClientErrorReport
	if err := decodeJSON(w, r, &report); err != nil {
		h.errorHandler.HandleValidationError(w, r, err)
		return
	}

	if userCtx, ok := logging.UserContextFromContext(r.Context()); ok {
		if report.UserID == "" {
			report.UserID = userCtx.UserID
		}
		if report.UserRole == "" {
			report.UserRole = userCtx.UserRole
		}
		if report.UserAgent == "" {
			report.UserAgent = userCtx.UserAgent
		}
	}

	id, err := h.service.SubmitClientError(r.Context(), report)
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, ClientErrorResponse{ID: id})
}

// RecordEvents handles POST /api/v1/instrumentation/events. The batch is
// validated as a whole before any event is recorded.
func (h *RecoveryHandler) RecordEvents(w http.ResponseWriter, r *http.Request) {
	var batch InstrumentationBatch
	if err := decodeJSON(w, r, &batch); err != nil {
		h.errorHandler.HandleValidationError(w, r, err)
		return
	}
	if batch.SessionID == "" {
		h.errorHandler.HandleValidationError(w, r, NewValidationError("session_id", "is required"))
		return
	}
	if len(batch.Events) == 0 {
		h.errorHandler.HandleValidationError(w, r, NewValidationError("events", "at least one event is required"))
		return
	}
	if len(batch.Events) > maxEventsPerBatch {
		h.errorHandler.HandleValidationError(w, r,
			NewValidationError("events", fmt.Sprintf("at most %d events per batch", maxEventsPerBatch)))
		return
	}
	for i, event := range batch.Events {
		if err := validateEvent(event); err != nil {
			h.errorHandler.HandleValidationError(w, r, NewValidationError(fmt.Sprintf("events[%d]", i), err.Error()))
			return
		}
	}

	userAgent := batch.UserAgent
	if userAgent == "" {
		if userCtx, ok := logging.UserContextFromContext(r.Context()); ok {
			userAgent = userCtx.UserAgent
		}
	}
	port, err := h.service.ClientInstrumentation(batch.SessionID, inbound.ClientInfo{
		UserAgent: userAgent,
		Viewport:  batch.Viewport,
	})
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	for _, event := range batch.Events {
		switch event.Type {
		case EventNavigation:
			port.OnNavigate(ctx, event.URL)
		case EventUser:
			port.OnUserAction(ctx, *event.Action)
		case EventAPI:
			call := inbound.APICall{
				Method:   event.API.Method,
				URL:      event.API.URL,
				Status:   event.API.Status,
				Duration: time.Duration(event.API.DurationMS) * time.Millisecond,
			}
			if event.API.Error != "" {
				call.Err = errors.New(event.API.Error)
			}
			port.OnAPICall(ctx, call)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateEvent(event InstrumentationEvent) error {
	switch event.Type {
	case EventNavigation:
		if event.URL == "" {
			return errors.New("navigation events need a url")
		}
	case EventUser:
		if event.Action == nil {
			return errors.New("user events need an action")
		}
		if event.Action.Kind != inbound.UserActionClick && event.Action.Kind != inbound.UserActionSubmit {
			return fmt.Errorf("unsupported user action %q", event.Action.Kind)
		}
		if event.Action.Target == "" {
			return errors.New("user actions need a target")
		}
	case EventAPI:
		if event.API == nil || event.API.URL == "" {
			return errors.New("api events need a url")
		}
		if event.API.Status < 0 || event.API.DurationMS < 0 {
			return errors.New("api events cannot have negative status or duration")
		}
	default:
		return fmt.Errorf("unsupported event type %q", event.Type)
	}
	return nil
}

func (h *RecoveryHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
	}
}
