package api

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/config"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/port/outbound"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
)

// Server is the HTTP API of the recovery service.
type Server struct {
	config        config.APIConfig
	httpServer    *http.Server
	routeRegistry *RouteRegistry
	listener      net.Listener
	isRunning     bool
	mu            sync.RWMutex
	serveErr      chan error
}

// ServerBuilder provides a fluent interface for building Server instances
type ServerBuilder struct {
	config            config.APIConfig
	service           inbound.RecoveryService
	reports           outbound.ReportRepository
	translatorFactory TranslatorFactory
	checks            map[string]DependencyCheck
	logger            logging.ApplicationLogger
	errorHandler      ErrorHandler
	middleware        []Middleware
}

// NewServerBuilder creates a new ServerBuilder
func NewServerBuilder(cfg config.APIConfig) *ServerBuilder {
	return &ServerBuilder{
		config: cfg,
		checks: make(map[string]DependencyCheck),
	}
}

// WithRecoveryService sets the recovery service
func (b *ServerBuilder) WithRecoveryService(service inbound.RecoveryService) *ServerBuilder {
	b.service = service
	return b
}

// WithReportRepository enables GET /api/v1/reports?source=stored
func (b *ServerBuilder) WithReportRepository(reports outbound.ReportRepository) *ServerBuilder {
	b.reports = reports
	return b
}

// WithTranslatorFactory localizes error responses by Accept-Language
func (b *ServerBuilder) WithTranslatorFactory(factory TranslatorFactory) *ServerBuilder {
	b.translatorFactory = factory
	return b
}

// WithDependencyCheck adds a dependency to GET /health
func (b *ServerBuilder) WithDependencyCheck(name string, check DependencyCheck) *ServerBuilder {
	b.checks[name] = check
	return b
}

// WithLogger sets the request logger
func (b *ServerBuilder) WithLogger(logger logging.ApplicationLogger) *ServerBuilder {
	b.logger = logger
	return b
}

// WithErrorHandler sets the error handler
func (b *ServerBuilder) WithErrorHandler(handler ErrorHandler) *ServerBuilder {
	b.errorHandler = handler
	return b
}

// WithMiddleware adds middleware to the chain; the first added is outermost
func (b *ServerBuilder) WithMiddleware(middleware Middleware) *ServerBuilder {
	b.middleware = append(b.middleware, middleware)
	return b
}

// Build creates the Server instance
func (b *ServerBuilder) Build() (*Server, error) {
	if b.service == nil {
		return nil, errors.New("server builder validation failed: recovery service is required")
	}
	if err := validateServerConfig(b.config); err != nil {
		return nil, err
	}
	if b.errorHandler == nil {
		b.errorHandler = NewDefaultErrorHandler()
	}

	registry := NewRouteRegistry()
	err := registry.RegisterAPIRoutes(
		NewHealthHandler(b.service, b.checks),
		NewRecoveryHandler(b.service, b.reports, b.errorHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build server: %w", err)
	}

	port := b.service.Instrumentation()
	chain := append([]Middleware{
		NewRequestContextMiddleware(),
		NewLoggingMiddleware(b.logger),
		NewSecurityHeadersMiddleware(),
		NewCORSMiddleware(),
		NewLocaleMiddleware(b.translatorFactory),
		NewInstrumentationMiddleware(port),
	}, b.middleware...)
	chain = append(chain, NewPanicRecoveryMiddleware(port))

	handler := NewMiddlewareChain(chain...)(registry.BuildServeMux())

	return &Server{
		config:        b.config,
		routeRegistry: registry,
		httpServer: &http.Server{
			Addr:         b.config.Address(),
			Handler:      handler,
			ReadTimeout:  b.config.ReadTimeout,
			WriteTimeout: b.config.WriteTimeout,
		},
	}, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("server is already running")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.isRunning = true
	s.serveErr = make(chan error, 1)

	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.serveErr <- err
	}()
	return nil
}

// Wait blocks until the server stops and returns the serve error, if any.
func (s *Server) Wait() error {
	s.mu.RLock()
	serveErr := s.serveErr
	s.mu.RUnlock()
	if serveErr == nil {
		return nil
	}
	return <-serveErr
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	running := s.isRunning
	s.mu.RUnlock()
	if !running {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Address returns the listening address, or the configured one before Start.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HasRoute checks if a specific route is registered
func (s *Server) HasRoute(pattern string) bool {
	return s.routeRegistry.HasRoute(pattern)
}

// RouteCount returns the number of registered routes
func (s *Server) RouteCount() int {
	return s.routeRegistry.RouteCount()
}

func validateServerConfig(cfg config.APIConfig) error {
	if cfg.Port != "" {
		if port, err := strconv.Atoi(cfg.Port); err != nil || port < 0 || port > 65535 {
			return errors.New("invalid port")
		}
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 {
		return errors.New("invalid timeout")
	}
	return nil
}
