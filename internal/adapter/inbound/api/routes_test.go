package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteRegistry_RegisterAPIRoutes(t *testing.T) {
	fixture := newAPIFixture(t, nil)

	assert.Equal(t, 11, fixture.server.RouteCount())
	for _, pattern := range []string{
		"GET /health",
		"GET /api/v1/breakers",
		"POST /api/v1/breakers/{name}/reset",
		"DELETE /api/v1/degradation/{key}",
		"DELETE /api/v1/notifications/{id}",
		"POST /api/v1/errors",
		"POST /api/v1/instrumentation/events",
	} {
		assert.True(t, fixture.server.HasRoute(pattern), pattern)
	}
}

func TestRouteRegistry_RegisterRoute(t *testing.T) {
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name    string
		pattern string
		wantErr string
	}{
		{"valid", "GET /courses/{id}", ""},
		{"empty", " ", "route pattern cannot be empty"},
		{"missing path", "GET", "must have format 'METHOD /path'"},
		{"bad method", "FETCH /courses", "invalid HTTP method"},
		{"relative path", "GET courses", "must start with '/'"},
		{"double slash", "GET /courses//x", "double slashes"},
		{"unclosed parameter", "GET /courses/{id", "missing closing brace"},
		{"stray closing brace", "GET /courses/id}", "unmatched closing brace"},
		{"stray brace before parameter", "GET /a}/{id}", "unmatched closing brace"},
		{"bad parameter name", "GET /courses/{course-id}", "invalid parameter name"},
		{"duplicate parameter", "GET /courses/{id}/students/{id}", "duplicate parameter name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRouteRegistry().RegisterRoute(tt.pattern, noop)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRouteRegistry_RejectsDuplicates(t *testing.T) {
	registry := NewRouteRegistry()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	require.NoError(t, registry.RegisterRoute("GET /courses", noop))
	err := registry.RegisterRoute("GET /courses", noop)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "route conflict detected")
	assert.Equal(t, []string{"GET /courses"}, registry.Patterns())
}
