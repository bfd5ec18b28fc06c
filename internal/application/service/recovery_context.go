package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/inbound"
	"edurecovery/internal/port/outbound"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
)

// RecoveryConfig sizes every component of a RecoveryContext.
type RecoveryConfig struct {
	Retry                 RetryPolicy
	Breakers              map[string]CircuitBreakerConfig
	DegradationMaxEntries int
	Notifications         NotificationConfig
	Reporter              ErrorReporterConfig
}

// DefaultRecoveryConfig returns the defaults of every component.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Retry:                 DefaultRetryPolicy(),
		DegradationMaxEntries: DefaultDegradationMaxEntries,
		Notifications:         DefaultNotificationConfig(),
		Reporter:              DefaultErrorReporterConfig(),
	}
}

// RecoveryDeps are the process-level collaborators shared by every component.
// All fields are optional.
type RecoveryDeps struct {
	Logger     logging.ApplicationLogger
	Translator outbound.MessageTranslator
	Clock      clockwork.Clock
	Metrics    RetryMetrics
	Sinks      []outbound.ReportSink
	Sleep      SleepFunc
}

// RecoveryContext wires one classifier, retry engine, breaker registry, degradation
// cache, notification list and error reporter together. Hosts build one per process;
// tests build their own.
type RecoveryContext struct {
	Config        RecoveryConfig
	Classifier    *Classifier
	Engine        *RetryEngine
	Breakers      *CircuitBreakerRegistry
	Degradation   *GracefulDegradation
	Notifications *NotificationManager
	Reporter      *ErrorReporter
	Metrics       RetryMetrics
	Logger        logging.ApplicationLogger

	forwarder *RetryEngine
}

var _ inbound.RecoveryService = (*RecoveryContext)(nil)

// NewRecoveryContext builds every component from config and deps.
func NewRecoveryContext(config RecoveryConfig, deps RecoveryDeps) (*RecoveryContext, error) {
	if err := config.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slogger.Logger()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewNoopRetryMetrics()
	}

	rc := &RecoveryContext{
		Config:     config,
		Classifier: NewClassifier(deps.Translator, deps.Clock),
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	}

	var err error
	rc.Breakers, err = NewCircuitBreakerRegistry(config.Breakers, CircuitBreakerDeps{
		Classifier:    rc.Classifier,
		Clock:         deps.Clock,
		Metrics:       deps.Metrics,
		Logger:        deps.Logger,
		OnStateChange: rc.breakerChanged,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker configuration: %w", err)
	}

	// Report forwarding retries on its own engine so a failing sink never files
	// reports about itself.
	rc.forwarder, err = NewRetryEngine(RetryEngineConfig{
		Classifier: rc.Classifier,
		Clock:      deps.Clock,
		Sleep:      deps.Sleep,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	rc.Reporter, err = NewErrorReporter(config.Reporter, ErrorReporterDeps{
		Classifier: rc.Classifier,
		Clock:      deps.Clock,
		Sinks:      deps.Sinks,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
		Send:       rc.sendReport,
	})
	if err != nil {
		return nil, err
	}

	rc.Engine, err = NewRetryEngine(RetryEngineConfig{
		Classifier: rc.Classifier,
		Clock:      deps.Clock,
		Sleep:      deps.Sleep,
		Metrics:    deps.Metrics,
		Recorder:   rc.Reporter,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	rc.Degradation, err = NewGracefulDegradation(rc.Engine, config.DegradationMaxEntries, deps.Metrics)
	if err != nil {
		return nil, err
	}

	rc.Notifications, err = NewNotificationManager(config.Notifications, rc.Classifier, deps.Clock, deps.Logger)
	if err != nil {
		return nil, err
	}

	return rc, nil
}

func (rc *RecoveryContext) breakerChanged(ctx context.Context, name string, from, to valueobject.CircuitState) {
	breadcrumbType := valueobject.BreadcrumbInfo
	if to == valueobject.CircuitOpen {
		breadcrumbType = valueobject.BreadcrumbError
	}
	rc.Reporter.AddBreadcrumb(ctx, breadcrumbType,
		fmt.Sprintf("Circuit breaker %s changed from %s to %s", name, from, to),
		map[string]any{"breaker": name, "from": from.String(), "to": to.String()},
	)
}

// ReportBreakerName names the breaker guarding report forwards to sink.
func ReportBreakerName(sink string) string {
	return "report-" + sink
}

// sendReport delivers payload to sink with retries, guarded by the sink's breaker.
func (rc *RecoveryContext) sendReport(ctx context.Context, sink outbound.ReportSink, payload entity.ReportPayload) error {
	opts := NewRetryOptions[struct{}](rc.Config.Retry)
	opts.OperationName = "report:" + sink.Name()
	breaker, err := rc.Breakers.Get(ReportBreakerName(sink.Name()))
	if err != nil {
		return err
	}
	opts.Breaker = breaker

	result := WithRetry(ctx, rc.forwarder, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, sink.Send(ctx, payload)
	}, opts)
	if !result.Success {
		return result.Error
	}
	return nil
}

// RetryOptionsFor returns options for T using the configured retry policy.
func RetryOptionsFor[T any](rc *RecoveryContext) RetryOptions[T] {
	return NewRetryOptions[T](rc.Config.Retry)
}

// ListBreakers returns a snapshot of every breaker, sorted by name.
func (rc *RecoveryContext) ListBreakers() []inbound.BreakerSnapshot {
	return rc.Breakers.Snapshots()
}

// ResetBreaker closes the named breaker.
func (rc *RecoveryContext) ResetBreaker(name string) error {
	return rc.Breakers.Reset(context.Background(), name)
}

// DegradedKeys lists every degraded key.
func (rc *RecoveryContext) DegradedKeys() []inbound.DegradationStatus {
	return rc.Degradation.DegradedKeys()
}

// DegradationStatus describes one cache key.
func (rc *RecoveryContext) DegradationStatus(key string) inbound.DegradationStatus {
	return rc.Degradation.Status(key)
}

// ClearDegradation drops the cached value and failures of key.
func (rc *RecoveryContext) ClearDegradation(key string) {
	rc.Degradation.Clear(key)
}

// ListNotifications returns the current notifications, newest first.
func (rc *RecoveryContext) ListNotifications() []entity.Notification {
	return rc.Notifications.Notifications()
}

// DismissNotification removes one notification.
func (rc *RecoveryContext) DismissNotification(id string) bool {
	return rc.Notifications.Dismiss(id)
}

// Reports returns the buffered error reports, oldest first.
func (rc *RecoveryContext) Reports() []*entity.ErrorReport {
	return rc.Reporter.Reports()
}

var (
	// ErrEmptyClientReport is returned for client reports without code or message.
	ErrEmptyClientReport = errors.New("client error report needs a code or a message")

	// ErrInvalidClientReport wraps every other client report validation failure.
	ErrInvalidClientReport = errors.New("invalid client error report")
)

// maxSessionIDLength bounds client supplied session ids.
const maxSessionIDLength = 128

func validSessionID(id string) error {
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("session id exceeds %d characters", maxSessionIDLength)
	}
	if strings.TrimSpace(id) != id {
		return errors.New("session id has surrounding whitespace")
	}
	return nil
}

// SubmitClientError files an error reported by a browser client, shows it as a
// notification and returns the report id. The report snapshots the breadcrumbs
// of the client's own session and the URL and browser details it sent.
func (rc *RecoveryContext) SubmitClientError(ctx context.Context, report inbound.ClientErrorReport) (string, error) {
	if strings.TrimSpace(report.Code) == "" && strings.TrimSpace(report.Message) == "" {
		return "", ErrEmptyClientReport
	}
	if report.Status < 0 {
		return "", fmt.Errorf("%w: invalid status code: %d", ErrInvalidClientReport, report.Status)
	}
	if err := validSessionID(report.SessionID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidClientReport, err)
	}
	errCtx, err := valueobject.NewErrorContext(string(report.Context))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidClientReport, err)
	}

	classified := rc.Classifier.ClassifyReported(report.Code, report.Message, report.Status)
	metadata := copyMetadata(report.Metadata)
	metadata["source"] = "client"

	session := rc.Reporter.ClientSession(report.SessionID)
	id := session.ReportError(ctx, classified, errCtx, ReportOptions{
		UserID:    report.UserID,
		UserRole:  report.UserRole,
		URL:       report.URL,
		UserAgent: report.UserAgent,
		Viewport:  report.Viewport,
		Metadata:  metadata,
	})
	rc.Notifications.Notify(classified, errCtx)
	return id, nil
}

// Instrumentation returns the port the process's own navigation, user and API
// events are fed into.
func (rc *RecoveryContext) Instrumentation() inbound.InstrumentationPort {
	return rc.Reporter
}

// ClientInstrumentation returns the port for one browser client's events and
// records the browser details that info carries.
func (rc *RecoveryContext) ClientInstrumentation(sessionID string, info inbound.ClientInfo) (inbound.InstrumentationPort, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidClientReport)
	}
	if err := validSessionID(sessionID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClientReport, err)
	}

	session := rc.Reporter.ClientSession(sessionID)
	session.mergeClientInfo(info.UserAgent, info.Viewport)
	return session, nil
}

// Shutdown waits for in-flight report forwards.
func (rc *RecoveryContext) Shutdown(ctx context.Context) error {
	return rc.Reporter.Flush(ctx)
}
