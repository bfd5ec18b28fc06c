package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RouteRegistry manages HTTP route registration using Go 1.22+ ServeMux patterns
type RouteRegistry struct {
	routes   map[string]http.Handler
	patterns []string
	mux      *http.ServeMux
}

// NewRouteRegistry creates a new RouteRegistry
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{
		routes: make(map[string]http.Handler),
		mux:    http.NewServeMux(),
	}
}

// RegisterAPIRoutes registers the health and recovery routes.
func (r *RouteRegistry) RegisterAPIRoutes(healthHandler *HealthHandler, recoveryHandler *RecoveryHandler) error {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /health", healthHandler.GetHealth},
		{"GET /api/v1/breakers", recoveryHandler.ListBreakers},
		{"POST /api/v1/breakers/{name}/reset", recoveryHandler.ResetBreaker},
		{"GET /api/v1/degradation", recoveryHandler.ListDegraded},
		{"GET /api/v1/degradation/{key}", recoveryHandler.GetDegradation},
		{"DELETE /api/v1/degradation/{key}", recoveryHandler.ClearDegradation},
		{"GET /api/v1/notifications", recoveryHandler.ListNotifications},
		{"DELETE /api/v1/notifications/{id}", recoveryHandler.DismissNotification},
		{"GET /api/v1/reports", recoveryHandler.ListReports},
		{"POST /api/v1/errors", recoveryHandler.SubmitClientError},
		{"POST /api/v1/instrumentation/events", recoveryHandler.RecordEvents},
	}

	for _, route := range routes {
		if err := r.RegisterRoute(route.pattern, route.handler); err != nil {
			return fmt.Errorf("failed to register route %q: %w", route.pattern, err)
		}
	}
	return nil
}

// RegisterRoute registers a single route with the given pattern and handler
func (r *RouteRegistry) RegisterRoute(pattern string, handler http.Handler) error {
	if err := validatePattern(pattern); err != nil {
		return err
	}
	if _, exists := r.routes[pattern]; exists {
		return fmt.Errorf("route conflict detected: pattern '%s' is already registered", pattern)
	}

	r.mux.Handle(pattern, handler)
	r.routes[pattern] = handler
	r.patterns = append(r.patterns, pattern)
	return nil
}

// BuildServeMux returns the configured ServeMux
func (r *RouteRegistry) BuildServeMux() *http.ServeMux {
	return r.mux
}

// HasRoute checks if a route pattern is registered
func (r *RouteRegistry) HasRoute(pattern string) bool {
	_, exists := r.routes[pattern]
	return exists
}

// RouteCount returns the number of registered routes
func (r *RouteRegistry) RouteCount() int {
	return len(r.routes)
}

// Patterns returns all registered route patterns in registration order
func (r *RouteRegistry) Patterns() []string {
	return append([]string(nil), r.patterns...)
}

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodDelete: true,
	http.MethodPatch: true, http.MethodHead: true, http.MethodOptions: true,
}

// validatePattern checks the "METHOD /path" form and path parameter syntax.
func validatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.New("route pattern cannot be empty")
	}

	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		return fmt.Errorf("invalid route pattern '%s': must have format 'METHOD /path'", pattern)
	}
	if !validMethods[method] {
		return fmt.Errorf("invalid HTTP method '%s' in pattern '%s'", method, pattern)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path '%s' in pattern '%s' must start with '/'", path, pattern)
	}
	if strings.Contains(path, "//") {
		return fmt.Errorf("path '%s' in pattern '%s' contains double slashes", path, pattern)
	}

	seen := make(map[string]bool)
	for rest := path; ; {
		open := strings.IndexByte(rest, '{')
		if open == -1 {
			if strings.Contains(rest, "}") {
				return fmt.Errorf("invalid parameter syntax in pattern '%s': unmatched closing brace", pattern)
			}
			return nil
		}
		if strings.Contains(rest[:open], "}") {
			return fmt.Errorf("invalid parameter syntax in pattern '%s': unmatched closing brace", pattern)
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing == -1 {
			return fmt.Errorf("invalid parameter syntax in pattern '%s': missing closing brace", pattern)
		}
		name := rest[open+1 : open+closing]
		if !isValidParameterName(name) {
			return fmt.Errorf("invalid parameter name '%s' in pattern '%s'", name, pattern)
		}
		if seen[name] {
			return fmt.Errorf("duplicate parameter name '%s' in pattern '%s'", name, pattern)
		}
		seen[name] = true
		rest = rest[open+closing+1:]
	}
}

// isValidParameterName checks for letters, numbers and underscores only
func isValidParameterName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
