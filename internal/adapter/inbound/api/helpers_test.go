package api

import (
	"bytes"
	"context"
	"edurecovery/internal/adapter/outbound/localization"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/service"
	"edurecovery/internal/config"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/port/outbound"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeReportRepository struct {
	payloads []entity.ReportPayload
	err      error
	limit    int
}

func (f *fakeReportRepository) Save(_ context.Context, payload entity.ReportPayload) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakeReportRepository) ListRecent(_ context.Context, limit int) ([]entity.ReportPayload, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.payloads, nil
}

type apiFixture struct {
	rc      *service.RecoveryContext
	server  *Server
	reports *fakeReportRepository
	clock   *clockwork.FakeClock
}

func newAPIFixture(t *testing.T, checks map[string]DependencyCheck) *apiFixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	rc, err := service.NewRecoveryContext(service.DefaultRecoveryConfig(), service.RecoveryDeps{
		Logger: logging.NewBufferLogger(),
		Clock:  clock,
	})
	require.NoError(t, err)

	catalog, err := localization.DefaultCatalog("es-CL")
	require.NoError(t, err)

	reports := &fakeReportRepository{}
	builder := NewServerBuilder(config.APIConfig{Host: "127.0.0.1", Port: "0"}).
		WithRecoveryService(rc).
		WithReportRepository(reports).
		WithLogger(logging.NewBufferLogger()).
		WithTranslatorFactory(func(acceptLanguage string) outbound.MessageTranslator {
			return catalog.Translator(acceptLanguage)
		})
	for name, check := range checks {
		builder.WithDependencyCheck(name, check)
	}
	server, err := builder.Build()
	require.NoError(t, err)

	return &apiFixture{rc: rc, server: server, reports: reports, clock: clock}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}
