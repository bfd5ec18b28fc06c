package httpclient

import (
	"edurecovery/internal/port/inbound"
	"net/http"

	"github.com/jonboulle/clockwork"
)

// InstrumentedTransport reports every round trip to an InstrumentationPort.
type InstrumentedTransport struct {
	Base  http.RoundTripper
	Port  inbound.InstrumentationPort
	Clock clockwork.Clock
}

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	clock := t.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	start := clock.Now()
	resp, err := base.RoundTrip(req)
	if t.Port == nil {
		return resp, err
	}

	call := inbound.APICall{
		Method:   req.Method,
		URL:      req.URL.String(),
		Duration: clock.Since(start),
		Err:      err,
	}
	if resp != nil {
		call.Status = resp.StatusCode
	}
	t.Port.OnAPICall(req.Context(), call)

	return resp, err
}
