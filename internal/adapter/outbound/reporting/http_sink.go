// Package reporting forwards error report payloads to an HTTP collector.
package reporting

import (
	"context"
	"edurecovery/internal/config"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/port/outbound"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SinkName identifies the HTTP sink in logs and metrics.
const SinkName = "http"

// HTTPSink POSTs report payloads as JSON to the configured endpoint.
type HTTPSink struct {
	endpoint  string
	timeout   time.Duration
	requester outbound.APIRequester
}

var _ outbound.ReportSink = (*HTTPSink)(nil)

// NewHTTPSink creates a sink posting through requester.
func NewHTTPSink(cfg config.ReportingConfig, requester outbound.APIRequester) (*HTTPSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("reporting endpoint cannot be empty")
	}
	if requester == nil {
		return nil, errors.New("requester cannot be nil")
	}
	return &HTTPSink{
		endpoint:  cfg.Endpoint,
		timeout:   cfg.Timeout,
		requester: requester,
	}, nil
}

// Name implements outbound.ReportSink.
func (s *HTTPSink) Name() string {
	return SinkName
}

// Send implements outbound.ReportSink.
func (s *HTTPSink) Send(ctx context.Context, payload entity.ReportPayload) error {
	_, err := s.requester.Do(ctx, outbound.APIRequest{
		Method:  http.MethodPost,
		URL:     s.endpoint,
		Headers: http.Header{"X-Report-ID": []string{payload.ID}},
		Body:    payload,
		Timeout: s.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to forward report %s: %w", payload.ID, err)
	}
	return nil
}
