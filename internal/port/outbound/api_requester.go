package outbound

import (
	"context"
	"net/http"
	"time"
)

// DefaultAPITimeout bounds a single API request when none is given.
const DefaultAPITimeout = 10 * time.Second

// APIRequest describes one outbound JSON call.
type APIRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    any
	Timeout time.Duration
}

// EffectiveTimeout returns the request timeout, defaulting when unset.
func (r APIRequest) EffectiveTimeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultAPITimeout
	}
	return r.Timeout
}

// APIRequester performs outbound API requests. A non-2xx response must be
// returned as an error exposing StatusCode() int.
type APIRequester interface {
	Do(ctx context.Context, req APIRequest) ([]byte, error)
}
