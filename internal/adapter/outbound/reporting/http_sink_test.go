package reporting

import (
	"context"
	"edurecovery/internal/adapter/outbound/httpclient"
	"edurecovery/internal/config"
	"edurecovery/internal/domain/entity"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() entity.ReportPayload {
	return entity.ReportPayload{
		ID: "report-1",
		Error: entity.ReportPayloadError{
			Code:     "SERVICE_UNAVAILABLE",
			Message:  "grades service returned 503",
			Severity: "high",
			Context:  "public",
		},
		Timestamp:   "2024-03-01T12:00:00Z",
		URL:         "/grades",
		SessionID:   "session-1",
		Context:     "public",
		Breadcrumbs: []entity.Breadcrumb{},
		Metadata:    map[string]any{"attempts": float64(3)},
	}
}

func TestHTTPSink_PostsPayload(t *testing.T) {
	var received entity.ReportPayload
	var reportID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/errors", r.URL.Path)
		reportID = r.Header.Get("X-Report-ID")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, err := NewHTTPSink(config.ReportingConfig{
		Endpoint: server.URL + "/errors",
		Timeout:  time.Second,
	}, httpclient.NewClient(nil, ""))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), samplePayload()))
	assert.Equal(t, SinkName, sink.Name())
	assert.Equal(t, "report-1", reportID)
	assert.Equal(t, samplePayload(), received)
}

func TestHTTPSink_CollectorFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink, err := NewHTTPSink(config.ReportingConfig{Endpoint: server.URL}, httpclient.NewClient(nil, ""))
	require.NoError(t, err)

	err = sink.Send(context.Background(), samplePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report-1")
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestNewHTTPSink_Validation(t *testing.T) {
	_, err := NewHTTPSink(config.ReportingConfig{}, httpclient.NewClient(nil, ""))
	assert.EqualError(t, err, "reporting endpoint cannot be empty")

	_, err = NewHTTPSink(config.ReportingConfig{Endpoint: "http://collector"}, nil)
	assert.EqualError(t, err, "requester cannot be nil")
}
