package inbound

import (
	"context"
	"time"
)

// UserActionKind names the interactive event a user performed.
type UserActionKind string

const (
	UserActionClick  UserActionKind = "click"
	UserActionSubmit UserActionKind = "submit"
)

// UserAction describes a click or form submission.
type UserAction struct {
	Kind   UserActionKind `json:"kind"`
	Target string         `json:"target"`
	Text   string         `json:"text,omitempty"`
}

// APICall describes a completed or failed API request.
type APICall struct {
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Status   int           `json:"status"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Failed reports whether the call errored or returned a non-2xx status.
func (c APICall) Failed() bool {
	return c.Err != nil || c.Status == 0 || c.Status >= 400
}

// InstrumentationPort receives ambient events from whatever host runs the
// resilience core. Hosts wire it into their router, transport and client
// event feed; the core never intercepts anything on its own.
type InstrumentationPort interface {
	OnNavigate(ctx context.Context, url string)
	OnUserAction(ctx context.Context, action UserAction)
	OnAPICall(ctx context.Context, call APICall)
	OnUnhandled(ctx context.Context, recovered any)
}
