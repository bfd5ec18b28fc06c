package entity

import (
	"edurecovery/internal/domain/valueobject"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

const maxBreadcrumbMessageLength = 500

// Breadcrumb is one ambient event recorded ahead of an error report.
type Breadcrumb struct {
	Timestamp time.Time                  `json:"timestamp"`
	Type      valueobject.BreadcrumbType `json:"type"`
	Message   string                     `json:"message"`
	Data      map[string]any             `json:"data,omitempty"`
}

// NewBreadcrumb validates and builds a breadcrumb. Messages longer than the
// storage limit are truncated rather than rejected.
func NewBreadcrumb(
	breadcrumbType valueobject.BreadcrumbType,
	message string,
	data map[string]any,
	at time.Time,
) (Breadcrumb, error) {
	if _, err := valueobject.NewBreadcrumbType(string(breadcrumbType)); err != nil {
		return Breadcrumb{}, err
	}
	if message == "" {
		return Breadcrumb{}, errors.New("breadcrumb: message cannot be empty")
	}
	if at.IsZero() {
		return Breadcrumb{}, fmt.Errorf("breadcrumb %q: timestamp cannot be zero", message)
	}
	message = truncateUTF8(message, maxBreadcrumbMessageLength)

	return Breadcrumb{
		Timestamp: at.UTC(),
		Type:      breadcrumbType,
		Message:   message,
		Data:      copyData(data),
	}, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func copyData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
