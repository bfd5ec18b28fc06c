package api

import (
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/inbound"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoveryHandler_ListBreakers(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodGet, "/api/v1/breakers", nil)

	assertStatus(t, rec, http.StatusOK)
	breakers := decodeBody[[]map[string]any](t, rec)
	require.Len(t, breakers, 4)
	names := make([]string, 0, len(breakers))
	for _, breaker := range breakers {
		names = append(names, breaker["name"].(string))
		assert.Equal(t, "closed", breaker["state"])
	}
	assert.ElementsMatch(t, []string{"api", "auth", "calendar", "upload"}, names)
}

func TestRecoveryHandler_ResetBreaker(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodPost, "/api/v1/breakers/api/reset", nil)
	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "api", decodeBody[map[string]any](t, rec)["name"])

	rec = fixture.do(t, http.MethodPost, "/api/v1/breakers/payments/reset", nil)
	assertStatus(t, rec, http.StatusNotFound)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, codeNotFound, body.Error)
	assert.NotEmpty(t, body.RequestID)
}

func TestRecoveryHandler_SubmitClientError(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodPost, "/api/v1/errors", map[string]any{
		"code":    "NETWORK_TIMEOUT",
		"message": "fetch timed out",
		"status":  504,
		"context": "admin",
		"url":     "/calendario",
	}, "X-User-ID", "teacher-7", "X-User-Role", "docente", "User-Agent", "Firefox")

	assertStatus(t, rec, http.StatusAccepted)
	id := decodeBody[ClientErrorResponse](t, rec).ID
	require.NotEmpty(t, id)

	reports := fixture.rc.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].ID)
	assert.Equal(t, "teacher-7", reports[0].UserID)
	assert.Equal(t, "docente", reports[0].UserRole)
	assert.Equal(t, "Firefox", reports[0].UserAgent)
	assert.Equal(t, "/calendario", reports[0].URL)

	rec = fixture.do(t, http.MethodGet, "/api/v1/reports", nil)
	assertStatus(t, rec, http.StatusOK)
	list := decodeBody[ReportListResponse](t, rec)
	assert.Equal(t, "memory", list.Source)
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "NETWORK_TIMEOUT", list.Reports[0].Error.Code)
	assert.Equal(t, "teacher-7", list.Reports[0].UserID)
}

func TestRecoveryHandler_SubmitClientErrorValidation(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"empty report", map[string]any{}},
		{"unknown context", map[string]any{"message": "x", "context": "kiosk"}},
		{"negative status", map[string]any{"message": "x", "status": -1}},
		{"unknown field", map[string]any{"message": "x", "severity": "high"}},
		{"malformed json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fixture.do(t, http.MethodPost, "/api/v1/errors", tt.body)
			assertStatus(t, rec, http.StatusBadRequest)
			assert.Equal(t, entity.CodeInvalidInput, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, fixture.rc.Reports())
}

func TestRecoveryHandler_StoredReports(t *testing.T) {
	fixture := newAPIFixture(t, nil)
	fixture.reports.payloads = []entity.ReportPayload{{ID: "stored-1"}}

	rec := fixture.do(t, http.MethodGet, "/api/v1/reports?source=stored&limit=5", nil)
	assertStatus(t, rec, http.StatusOK)
	list := decodeBody[ReportListResponse](t, rec)
	assert.Equal(t, "stored", list.Source)
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "stored-1", list.Reports[0].ID)
	assert.Equal(t, 5, fixture.reports.limit)

	rec = fixture.do(t, http.MethodGet, "/api/v1/reports?limit=zero", nil)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = fixture.do(t, http.MethodGet, "/api/v1/reports?source=disk", nil)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestRecoveryHandler_StoredReportsFailureIsLocalized(t *testing.T) {
	fixture := newAPIFixture(t, nil)
	fixture.reports.err = errors.New("connection refused")

	rec := fixture.do(t, http.MethodGet, "/api/v1/reports?source=stored", nil, "Accept-Language", "es")
	assertStatus(t, rec, http.StatusInternalServerError)
	assert.Equal(t, "es-CL", rec.Header().Get("Content-Language"))
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, entity.CodeUnknown, body.Error)
	assert.Equal(t, "Ocurrió un error inesperado. Intenta nuevamente.", body.Message)

	rec = fixture.do(t, http.MethodGet, "/api/v1/reports?source=stored", nil, "Accept-Language", "en-US")
	assert.Equal(t, "An unexpected error occurred. Please try again.", decodeBody[ErrorResponse](t, rec).Message)
}

func TestRecoveryHandler_RecordEvents(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodPost, "/api/v1/instrumentation/events", InstrumentationBatch{
		SessionID: "session-1",
		UserAgent: "Firefox/128",
		Viewport:  &entity.Viewport{Width: 1280, Height: 720},
		Events: []InstrumentationEvent{
			{Type: EventNavigation, URL: "/libro-de-clases"},
			{Type: EventUser, Action: &inbound.UserAction{Kind: inbound.UserActionSubmit, Target: "grades-form"}},
			{Type: EventAPI, API: &APICallEvent{Method: "GET", URL: "/api/grades", Status: 500, DurationMS: 120}},
		},
	})
	assertStatus(t, rec, http.StatusNoContent)

	crumbs := fixture.rc.Reporter.ClientSession("session-1").Breadcrumbs()
	require.Len(t, crumbs, 3)
	assert.Equal(t, valueobject.BreadcrumbNavigation, crumbs[0].Type)
	assert.Equal(t, valueobject.BreadcrumbUser, crumbs[1].Type)
	assert.Equal(t, valueobject.BreadcrumbError, crumbs[2].Type)

	serverCrumbs := fixture.rc.Reporter.Breadcrumbs()
	require.Len(t, serverCrumbs, 1)
	assert.Equal(t, valueobject.BreadcrumbAPI, serverCrumbs[0].Type)
	assert.Equal(t, "/api/v1/instrumentation/events", serverCrumbs[0].Data["url"])

	rec = fixture.do(t, http.MethodPost, "/api/v1/errors", map[string]any{
		"session_id": "session-1",
		"code":       "UI_RENDER_FAILED",
		"message":    "grades table failed to render",
	})
	assertStatus(t, rec, http.StatusAccepted)

	reports := fixture.rc.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "session-1", reports[0].SessionID)
	assert.Equal(t, "/libro-de-clases", reports[0].URL)
	assert.Equal(t, "Firefox/128", reports[0].UserAgent)
	assert.Equal(t, entity.Viewport{Width: 1280, Height: 720}, reports[0].Viewport)
	assert.Len(t, reports[0].Breadcrumbs, 3)
}

func TestRecoveryHandler_ClientSessionsStaySeparate(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodPost, "/api/v1/instrumentation/events", InstrumentationBatch{
		SessionID: "session-alice",
		Events: []InstrumentationEvent{
			{Type: EventNavigation, URL: "/apoderado/notas/alumno-123"},
			{Type: EventUser, Action: &inbound.UserAction{Kind: inbound.UserActionClick, Target: "#ver-notas-alumno-123"}},
		},
	}, "X-User-ID", "alice")
	assertStatus(t, rec, http.StatusNoContent)

	rec = fixture.do(t, http.MethodPost, "/api/v1/errors", map[string]any{
		"session_id": "session-bob",
		"code":       "NETWORK_CONNECTION_FAILED",
		"message":    "Failed to fetch",
		"url":        "/profesor/asistencia",
		"viewport":   map[string]int{"width": 390, "height": 844},
	}, "X-User-ID", "bob", "User-Agent", "Safari/17")
	assertStatus(t, rec, http.StatusAccepted)

	reports := fixture.rc.Reports()
	require.Len(t, reports, 1)
	bob := reports[0]
	assert.Equal(t, "bob", bob.UserID)
	assert.Equal(t, "session-bob", bob.SessionID)
	assert.NotEqual(t, fixture.rc.Reporter.SessionID(), bob.SessionID)
	assert.Equal(t, "/profesor/asistencia", bob.URL)
	assert.Equal(t, "Safari/17", bob.UserAgent)
	assert.Equal(t, 390, bob.Viewport.Width)
	assert.Empty(t, bob.Breadcrumbs)
	assert.Equal(t, valueobject.SeverityHigh, bob.Error.Severity())
}

func TestRecoveryHandler_RecordEventsRejectsWholeBatch(t *testing.T) {
	fixture := newAPIFixture(t, nil)
	session := fixture.rc.Reporter.ClientSession("session-1")

	tests := []struct {
		name  string
		batch InstrumentationBatch
	}{
		{"missing session", InstrumentationBatch{Events: []InstrumentationEvent{{Type: EventNavigation, URL: "/inicio"}}}},
		{"empty batch", InstrumentationBatch{SessionID: "session-1"}},
		{"unknown type", InstrumentationBatch{SessionID: "session-1", Events: []InstrumentationEvent{
			{Type: EventNavigation, URL: "/inicio"},
			{Type: "scroll"},
		}}},
		{"user event without action", InstrumentationBatch{SessionID: "session-1", Events: []InstrumentationEvent{{Type: EventUser}}}},
		{"unsupported action", InstrumentationBatch{SessionID: "session-1", Events: []InstrumentationEvent{
			{Type: EventUser, Action: &inbound.UserAction{Kind: "hover", Target: "menu"}},
		}}},
		{"api event without url", InstrumentationBatch{SessionID: "session-1", Events: []InstrumentationEvent{
			{Type: EventAPI, API: &APICallEvent{}},
		}}},
		{"oversized session id", InstrumentationBatch{SessionID: strings.Repeat("s", 200), Events: []InstrumentationEvent{
			{Type: EventNavigation, URL: "/inicio"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture.rc.Reporter.ClearBreadcrumbs()

			rec := fixture.do(t, http.MethodPost, "/api/v1/instrumentation/events", tt.batch)

			assertStatus(t, rec, http.StatusBadRequest)
			assert.Empty(t, session.Breadcrumbs())
			crumbs := fixture.rc.Reporter.Breadcrumbs()
			require.Len(t, crumbs, 1)
			assert.Equal(t, valueobject.BreadcrumbError, crumbs[0].Type)
		})
	}
}

func TestRecoveryHandler_SubmittedErrorIsNotified(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodPost, "/api/v1/errors", map[string]any{
		"session_id": "session-1",
		"code":       "SERVICE_FATAL",
		"message":    "grades backend returned an empty body",
		"context":    "public",
	})
	assertStatus(t, rec, http.StatusAccepted)

	rec = fixture.do(t, http.MethodGet, "/api/v1/notifications", nil)
	assertStatus(t, rec, http.StatusOK)
	notifications := decodeBody[[]map[string]any](t, rec)
	require.Len(t, notifications, 1)
	assert.Equal(t, "public", notifications[0]["context"])
	errBody, ok := notifications[0]["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SERVICE_FATAL", errBody["code"])
	assert.NotContains(t, errBody, "technicalMessage")
	assert.NotContains(t, rec.Body.String(), "empty body")
}

func TestRecoveryHandler_Notifications(t *testing.T) {
	fixture := newAPIFixture(t, nil)
	id := fixture.rc.Notifications.Notify(fixture.rc.Classifier.NewServiceError("grades down", true), valueobject.ContextPublic)
	require.NotEmpty(t, id)

	rec := fixture.do(t, http.MethodGet, "/api/v1/notifications", nil)
	assertStatus(t, rec, http.StatusOK)
	notifications := decodeBody[[]map[string]any](t, rec)
	require.Len(t, notifications, 1)
	assert.Equal(t, id, notifications[0]["id"])

	rec = fixture.do(t, http.MethodDelete, "/api/v1/notifications/"+id, nil)
	assertStatus(t, rec, http.StatusNoContent)

	rec = fixture.do(t, http.MethodDelete, "/api/v1/notifications/"+id, nil)
	assertStatus(t, rec, http.StatusNotFound)
}

func TestRecoveryHandler_Degradation(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	rec := fixture.do(t, http.MethodGet, "/api/v1/degradation", nil)
	assertStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = fixture.do(t, http.MethodGet, "/api/v1/degradation/calendar:events", nil)
	assertStatus(t, rec, http.StatusOK)
	status := decodeBody[inbound.DegradationStatus](t, rec)
	assert.Equal(t, "calendar:events", status.Key)
	assert.False(t, status.Degraded)

	rec = fixture.do(t, http.MethodDelete, "/api/v1/degradation/calendar:events", nil)
	assertStatus(t, rec, http.StatusNoContent)
}
