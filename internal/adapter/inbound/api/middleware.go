package api

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/port/outbound"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// TranslatorFactory picks a translator for an Accept-Language header.
type TranslatorFactory func(acceptLanguage string) outbound.MessageTranslator

type translatorKey struct{}

// TranslatorFromContext returns the request translator, or nil.
func TranslatorFromContext(ctx context.Context) outbound.MessageTranslator {
	translator, _ := ctx.Value(translatorKey{}).(outbound.MessageTranslator)
	return translator
}

// NewRequestContextMiddleware assigns request and correlation ids and records the
// caller in the logging user context.
func NewRequestContextMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = requestID
			}

			ctx := logging.WithRequestID(r.Context(), requestID)
			ctx = logging.WithCorrelationID(ctx, correlationID)
			ctx = logging.WithUserContext(ctx, logging.UserContext{
				UserID:    r.Header.Get("X-User-ID"),
				UserRole:  r.Header.Get("X-User-Role"),
				ClientIP:  clientIP(r),
				UserAgent: r.UserAgent(),
			})

			w.Header().Set("X-Request-ID", requestID)
			w.Header().Set("X-Correlation-ID", correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewLoggingMiddleware logs one line per completed request.
func NewLoggingMiddleware(logger logging.ApplicationLogger) Middleware {
	if logger == nil {
		logger = slogger.Logger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := logging.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.statusCode,
				"duration": time.Since(start).String(),
			}
			if r.URL.RawQuery != "" {
				fields["query"] = r.URL.RawQuery
			}
			if wrapped.statusCode >= http.StatusInternalServerError {
				logger.Warn(r.Context(), "HTTP request completed", fields)
				return
			}
			logger.Info(r.Context(), "HTTP request completed", fields)
		})
	}
}

// NewLocaleMiddleware stores a translator for the request Accept-Language header.
func NewLocaleMiddleware(factory TranslatorFactory) Middleware {
	return func(next http.Handler) http.Handler {
		if factory == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			translator := factory(r.Header.Get("Accept-Language"))
			if translator != nil {
				w.Header().Set("Content-Language", translator.Locale())
				r = r.WithContext(context.WithValue(r.Context(), translatorKey{}, translator))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewInstrumentationMiddleware reports every request except health probes to port
// as an api breadcrumb.
func NewInstrumentationMiddleware(port inbound.InstrumentationPort) Middleware {
	return func(next http.Handler) http.Handler {
		if port == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			port.OnAPICall(r.Context(), inbound.APICall{
				Method:   r.Method,
				URL:      r.URL.Path,
				Status:   wrapped.statusCode,
				Duration: time.Since(start),
			})
		})
	}
}

// NewPanicRecoveryMiddleware turns handler panics into critical reports and a 500.
func NewPanicRecoveryMiddleware(port inbound.InstrumentationPort) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}

				slogger.Error(r.Context(), "Panic recovered in HTTP handler", slogger.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  fmt.Sprint(recovered),
				})
				if port != nil {
					port.OnUnhandled(r.Context(), recovered)
				}

				_ = WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
					Error:     "INTERNAL_ERROR",
					Message:   "Internal Server Error",
					RequestID: logging.RequestIDFromContext(r.Context()),
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NewCORSMiddleware adds permissive CORS headers for browser clients that report
// errors and instrumentation events.
func NewCORSMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

			allowedHeaders := "Content-Type, Accept-Language, X-Request-ID, X-Correlation-ID"
			if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				allowedHeaders += ", " + requested
			}
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewSecurityHeadersMiddleware sets the basic hardening headers.
func NewSecurityHeadersMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// NewMiddlewareChain applies middlewares so the first one is outermost.
func NewMiddlewareChain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		handler := next
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// clientIP prefers the first valid X-Forwarded-For entry, then X-Real-IP, then
// the connection address.
func clientIP(r *http.Request) string {
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := strings.TrimSpace(candidate); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
