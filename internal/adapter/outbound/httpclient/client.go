// Package httpclient performs outbound JSON API calls and reports them to the
// instrumentation port as api breadcrumbs.
package httpclient

import (
	"bytes"
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/port/outbound"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// HTTPStatusError is returned for non-2xx responses.
type HTTPStatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// StatusCode exposes the response status to the error classifier.
func (e *HTTPStatusError) StatusCode() int {
	return e.Status
}

// Client implements outbound.APIRequester over net/http.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

var _ outbound.APIRequester = (*Client)(nil)

// NewClient creates a client. A nil httpClient gets pooled defaults.
func NewClient(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = createHTTPClient(nil)
	}
	if userAgent == "" {
		userAgent = "edurecovery"
	}
	return &Client{httpClient: httpClient, userAgent: userAgent}
}

// NewInstrumentedClient creates a client whose calls are reported to port.
func NewInstrumentedClient(port inbound.InstrumentationPort, clock clockwork.Clock, userAgent string) *Client {
	return NewClient(createHTTPClient(&InstrumentedTransport{Port: port, Clock: clock}), userAgent)
}

// createHTTPClient tunes the connection pool. Per-request timeouts come from the
// request context rather than http.Client.Timeout.
func createHTTPClient(wrap *InstrumentedTransport) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	var rt http.RoundTripper = transport
	if wrap != nil {
		wrap.Base = transport
		rt = wrap
	}
	return &http.Client{Transport: rt}
}

// Do sends req, encoding Body as JSON, and returns the response body.
func (c *Client) Do(ctx context.Context, req outbound.APIRequest) ([]byte, error) {
	if req.URL == "" {
		return nil, errors.New("request URL cannot be empty")
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, req.EffectiveTimeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			Method: method,
			URL:    req.URL,
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(data)), 256),
		}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
