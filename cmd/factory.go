package cmd

import (
	"context"
	"fmt"
	"os"

	"edurecovery/internal/adapter/inbound/api"
	"edurecovery/internal/adapter/outbound/httpclient"
	"edurecovery/internal/adapter/outbound/localization"
	"edurecovery/internal/adapter/outbound/messaging"
	"edurecovery/internal/adapter/outbound/reporting"
	"edurecovery/internal/adapter/outbound/repository"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/application/service"
	"edurecovery/internal/config"
	"edurecovery/internal/port/outbound"
	"edurecovery/internal/version"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	config *config.Config

	catalog  *localization.Catalog
	reports  *repository.PostgresReportRepository
	nats     *messaging.NATSReportPublisher
	checks   map[string]api.DependencyCheck
	closers  []func()
	requests outbound.APIRequester
}

// NewServiceFactory creates a new ServiceFactory
func NewServiceFactory(cfg *config.Config) *ServiceFactory {
	return &ServiceFactory{
		config: cfg,
		checks: make(map[string]api.DependencyCheck),
	}
}

// RecoveryConfig converts the loaded configuration into the service configuration.
func RecoveryConfig(cfg *config.Config) service.RecoveryConfig {
	rc := service.DefaultRecoveryConfig()

	rc.Retry = service.RetryPolicy{
		MaxRetries:        cfg.Retry.MaxRetries,
		RetryDelay:        cfg.Retry.RetryDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	}

	if len(cfg.CircuitBreakers) > 0 {
		rc.Breakers = make(map[string]service.CircuitBreakerConfig, len(cfg.CircuitBreakers))
		for name, breaker := range cfg.CircuitBreakers {
			rc.Breakers[name] = service.CircuitBreakerConfig{
				Name:             name,
				FailureThreshold: breaker.FailureThreshold,
				RecoveryTimeout:  breaker.RecoveryTimeout,
				SuccessThreshold: breaker.SuccessThreshold,
			}
		}
	}

	if cfg.Degradation.MaxEntries > 0 {
		rc.DegradationMaxEntries = cfg.Degradation.MaxEntries
	}
	if cfg.Notifications.MaxNotifications > 0 {
		rc.Notifications.MaxNotifications = cfg.Notifications.MaxNotifications
	}
	if cfg.Notifications.AutoDismissAfter > 0 {
		rc.Notifications.AutoDismissAfter = cfg.Notifications.AutoDismissAfter
	}

	if cfg.Reporting.MaxBreadcrumbs > 0 {
		rc.Reporter.MaxBreadcrumbs = cfg.Reporting.MaxBreadcrumbs
	}
	if cfg.Reporting.MaxReports > 0 {
		rc.Reporter.MaxReports = cfg.Reporting.MaxReports
	}
	if cfg.Reporting.MaxSessions > 0 {
		rc.Reporter.MaxSessions = cfg.Reporting.MaxSessions
	}
	if cfg.Reporting.ForwardTimeout > 0 {
		rc.Reporter.ForwardTimeout = cfg.Reporting.ForwardTimeout
	}

	return rc
}

// CreateCatalog loads the embedded message catalog once.
func (sf *ServiceFactory) CreateCatalog() (*localization.Catalog, error) {
	if sf.catalog != nil {
		return sf.catalog, nil
	}
	catalog, err := localization.DefaultCatalog(sf.config.Localization.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("failed to load message catalog: %w", err)
	}
	sf.catalog = catalog
	return catalog, nil
}

// CreateMetrics returns OpenTelemetry retry metrics when enabled, no-op metrics otherwise.
func (sf *ServiceFactory) CreateMetrics() (service.RetryMetrics, error) {
	if !sf.config.Metrics.Enabled {
		return service.NewNoopRetryMetrics(), nil
	}

	instanceID := sf.config.Metrics.InstanceID
	if instanceID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "edurecovery"
		}
		instanceID = hostname
	}
	serviceName := sf.config.Metrics.ServiceName
	if serviceName == "" {
		serviceName = version.ApplicationName
	}

	return service.NewRetryMetrics(service.RetryMetricsConfig{
		InstanceID:     instanceID,
		ServiceName:    serviceName,
		ServiceVersion: version.NewVersionInfo().Version,
	})
}

func (sf *ServiceFactory) requester() outbound.APIRequester {
	if sf.requests == nil {
		sf.requests = httpclient.NewClient(nil, version.ApplicationName+"/"+version.NewVersionInfo().Version)
	}
	return sf.requests
}

// CreateSinks opens every report sink named in reporting.sinks. Connections are
// released by Close.
func (sf *ServiceFactory) CreateSinks(ctx context.Context) ([]outbound.ReportSink, error) {
	var sinks []outbound.ReportSink

	if sf.config.Reporting.HasSink(config.SinkHTTP) {
		sink, err := reporting.NewHTTPSink(sf.config.Reporting, sf.requester())
		if err != nil {
			return nil, fmt.Errorf("failed to create http report sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if sf.config.Reporting.HasSink(config.SinkNATS) {
		publisher, err := sf.createNATSPublisher()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, publisher)
	}

	if sf.config.Reporting.HasSink(config.SinkPostgres) {
		reports, err := sf.CreateReportRepository(ctx)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, reports)
	}

	return sinks, nil
}

func (sf *ServiceFactory) createNATSPublisher() (*messaging.NATSReportPublisher, error) {
	if sf.nats != nil {
		return sf.nats, nil
	}

	publisher, err := messaging.NewNATSReportPublisher(sf.config.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to create nats report publisher: %w", err)
	}
	if err := publisher.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	sf.closers = append(sf.closers, func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.ErrorWithErrorNoCtx(err, "Failed to drain nats connection", nil)
		}
	})
	if err := publisher.EnsureStream(); err != nil {
		return nil, fmt.Errorf("failed to ensure report stream: %w", err)
	}

	sf.checks[messaging.SinkName] = func(context.Context) error {
		health := publisher.ConnectionHealth()
		if !health.Connected {
			return messaging.ErrNotConnected
		}
		return nil
	}
	sf.nats = publisher
	return publisher, nil
}

// CreateReportRepository connects to PostgreSQL and prepares the report table.
func (sf *ServiceFactory) CreateReportRepository(ctx context.Context) (*repository.PostgresReportRepository, error) {
	if sf.reports != nil {
		return sf.reports, nil
	}

	pool, err := repository.NewDatabaseConnection(ctx, sf.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	sf.closers = append(sf.closers, pool.Close)

	reports, err := repository.NewPostgresReportRepository(pool, sf.config.Database.Schema)
	if err != nil {
		return nil, err
	}
	if err := reports.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare report table: %w", err)
	}

	sf.checks[repository.SinkName] = pool.Ping
	sf.reports = reports
	return reports, nil
}

// CreateRecoveryContext builds the process-wide recovery context with every
// configured sink attached.
func (sf *ServiceFactory) CreateRecoveryContext(ctx context.Context) (*service.RecoveryContext, error) {
	catalog, err := sf.CreateCatalog()
	if err != nil {
		return nil, err
	}
	metrics, err := sf.CreateMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create retry metrics: %w", err)
	}
	sinks, err := sf.CreateSinks(ctx)
	if err != nil {
		return nil, err
	}

	return service.NewRecoveryContext(RecoveryConfig(sf.config), service.RecoveryDeps{
		Logger:     slogger.WithComponent("recovery"),
		Translator: catalog.Translator(""),
		Metrics:    metrics,
		Sinks:      sinks,
	})
}

// CreateServer builds the API server around rc.
func (sf *ServiceFactory) CreateServer(rc *service.RecoveryContext) (*api.Server, error) {
	catalog, err := sf.CreateCatalog()
	if err != nil {
		return nil, err
	}

	builder := api.NewServerBuilder(sf.config.API).
		WithRecoveryService(rc).
		WithLogger(slogger.WithComponent("api")).
		WithTranslatorFactory(func(acceptLanguage string) outbound.MessageTranslator {
			return catalog.Translator(acceptLanguage)
		})
	if sf.reports != nil {
		builder = builder.WithReportRepository(service.NewDegradedReportRepository(rc, repository.SinkName, sf.reports))
	}
	for name, check := range sf.checks {
		builder = builder.WithDependencyCheck(name, check)
	}
	return builder.Build()
}

// Close releases every connection opened by the factory, newest first.
func (sf *ServiceFactory) Close() {
	for i := len(sf.closers) - 1; i >= 0; i-- {
		sf.closers[i]()
	}
	sf.closers = nil
}
