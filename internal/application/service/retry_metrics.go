package service

import (
	"context"
	"edurecovery/internal/domain/valueobject"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Metric names for retry, breaker, degradation and reporting instruments.
const (
	RetryAttemptCounterName         = "retry_attempt_total"
	RetrySuccessCounterName         = "retry_success_total"
	RetryFailureCounterName         = "retry_failure_total"
	RetryExhaustionCounterName      = "retry_exhaustion_total"
	RetryDelayHistogramName         = "retry_delay_duration_seconds"
	RetryTotalDurationHistogramName = "retry_total_duration_seconds"
	CircuitBreakerEventCounterName  = "circuit_breaker_transition_total"
	CircuitBreakerRejectCounterName = "circuit_breaker_rejected_total"
	DegradedReadCounterName         = "degradation_read_total"
	ReportForwardCounterName        = "error_report_forward_total"
)

// Common attribute keys for consistent metrics labeling.
const (
	AttrRetryAttempt   = "retry_attempt"
	AttrTotalAttempts  = "retry_total_attempts"
	AttrErrorCategory  = "error_category"
	AttrErrorCode      = "error_code"
	AttrRetryResult    = "retry_result"
	AttrOperationName  = "operation_name"
	AttrServiceName    = "service_name"
	AttrBreakerName    = "breaker_name"
	AttrFromState      = "from_state"
	AttrToState        = "to_state"
	AttrDegraded       = "degraded"
	AttrSinkName       = "sink_name"
	AttrForwardSuccess = "success"
)

// RetryMetrics records resilience observability signals.
type RetryMetrics interface {
	// RecordRetryAttempt records that attempt is about to be retried after a failure.
	RecordRetryAttempt(ctx context.Context, attempt int, category valueobject.ErrorCategory, operationName string)

	// RecordRetrySuccess records a sequence that ended with the operation succeeding.
	RecordRetrySuccess(ctx context.Context, totalAttempts int, totalDuration time.Duration, operationName string)

	// RecordRetryFailure records one failed attempt.
	RecordRetryFailure(ctx context.Context, attempt int, category valueobject.ErrorCategory, code, operationName string)

	// RecordRetryExhaustion records a sequence that ended without the operation succeeding.
	RecordRetryExhaustion(
		ctx context.Context,
		totalAttempts int,
		totalDuration time.Duration,
		fallbackUsed bool,
		operationName string,
	)

	// RecordRetryDelay records the backoff slept before the next attempt.
	RecordRetryDelay(ctx context.Context, delay time.Duration, attempt int, operationName string)

	// RecordCircuitBreakerEvent records a breaker state transition.
	RecordCircuitBreakerEvent(ctx context.Context, breaker string, from, to valueobject.CircuitState)

	// RecordCircuitBreakerRejection records a call refused by an open breaker.
	RecordCircuitBreakerRejection(ctx context.Context, breaker string)

	// RecordDegradedRead records a degradation cache read.
	RecordDegradedRead(ctx context.Context, degraded bool)

	// RecordReportForward records one delivery attempt to an external sink.
	RecordReportForward(ctx context.Context, sink string, success bool)

	// GetInstanceID returns the metrics instance identifier.
	GetInstanceID() string
}

// RetryMetricsConfig holds configuration for metrics collection.
type RetryMetricsConfig struct {
	InstanceID         string
	ServiceName        string
	ServiceVersion     string
	CustomDelayBuckets []float64
}

func (c RetryMetricsConfig) validate() error {
	if c.InstanceID == "" {
		return errors.New("instance ID cannot be empty")
	}
	if c.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	return nil
}

// DefaultRetryMetrics implements RetryMetrics using OpenTelemetry.
type DefaultRetryMetrics struct {
	config RetryMetricsConfig

	attemptCounter         metric.Int64Counter
	successCounter         metric.Int64Counter
	failureCounter         metric.Int64Counter
	exhaustionCounter      metric.Int64Counter
	delayHistogram         metric.Float64Histogram
	totalDurationHistogram metric.Float64Histogram
	breakerCounter         metric.Int64Counter
	rejectCounter          metric.Int64Counter
	degradedCounter        metric.Int64Counter
	forwardCounter         metric.Int64Counter
}

// NewRetryMetrics creates metrics backed by an SDK meter provider with a manual reader.
func NewRetryMetrics(config RetryMetricsConfig) (*DefaultRetryMetrics, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewManualReader()),
	)

	return NewRetryMetricsWithProvider(config, provider)
}

// NewNoopRetryMetrics returns metrics that discard every measurement.
func NewNoopRetryMetrics() *DefaultRetryMetrics {
	metrics, err := NewRetryMetricsWithProvider(
		RetryMetricsConfig{InstanceID: "noop", ServiceName: "edurecovery"},
		noop.NewMeterProvider(),
	)
	if err != nil {
		panic("noop meter provider rejected instrument: " + err.Error())
	}
	return metrics
}

// NewRetryMetricsWithProvider creates metrics with a custom meter provider.
func NewRetryMetricsWithProvider(config RetryMetricsConfig, provider metric.MeterProvider) (*DefaultRetryMetrics, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	meter := provider.Meter("edurecovery/resilience")
	m := &DefaultRetryMetrics{config: config}

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&m.attemptCounter, RetryAttemptCounterName, "Total number of retry attempts"},
		{&m.successCounter, RetrySuccessCounterName, "Total number of successful retry sequences"},
		{&m.failureCounter, RetryFailureCounterName, "Total number of failed attempts"},
		{&m.exhaustionCounter, RetryExhaustionCounterName, "Total number of retry exhaustions"},
		{&m.breakerCounter, CircuitBreakerEventCounterName, "Total number of circuit breaker transitions"},
		{&m.rejectCounter, CircuitBreakerRejectCounterName, "Total number of calls rejected by open breakers"},
		{&m.degradedCounter, DegradedReadCounterName, "Total number of degradation cache reads"},
		{&m.forwardCounter, ReportForwardCounterName, "Total number of error report deliveries"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	delayOptions := []metric.Float64HistogramOption{
		metric.WithDescription("Retry delay duration in seconds"),
		metric.WithUnit("s"),
	}
	if len(config.CustomDelayBuckets) > 0 {
		delayOptions = append(delayOptions, metric.WithExplicitBucketBoundaries(config.CustomDelayBuckets...))
	}

	var err error
	m.delayHistogram, err = meter.Float64Histogram(RetryDelayHistogramName, delayOptions...)
	if err != nil {
		return nil, err
	}

	m.totalDurationHistogram, err = meter.Float64Histogram(RetryTotalDurationHistogramName,
		metric.WithDescription("Total retry operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *DefaultRetryMetrics) RecordRetryAttempt(
	ctx context.Context,
	attempt int,
	category valueobject.ErrorCategory,
	operationName string,
) {
	if attempt <= 0 {
		return
	}

	m.attemptCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int(AttrRetryAttempt, attempt),
			attribute.String(AttrErrorCategory, category.String()),
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

func (m *DefaultRetryMetrics) RecordRetrySuccess(
	ctx context.Context,
	totalAttempts int,
	totalDuration time.Duration,
	operationName string,
) {
	m.successCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int(AttrTotalAttempts, totalAttempts),
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)

	m.totalDurationHistogram.Record(ctx, totalDuration.Seconds(),
		metric.WithAttributes(
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrRetryResult, "success"),
		),
	)
}

func (m *DefaultRetryMetrics) RecordRetryFailure(
	ctx context.Context,
	attempt int,
	category valueobject.ErrorCategory,
	code string,
	operationName string,
) {
	m.failureCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int(AttrRetryAttempt, attempt),
			attribute.String(AttrErrorCategory, category.String()),
			attribute.String(AttrErrorCode, code),
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

func (m *DefaultRetryMetrics) RecordRetryExhaustion(
	ctx context.Context,
	totalAttempts int,
	totalDuration time.Duration,
	fallbackUsed bool,
	operationName string,
) {
	result := "failed"
	if fallbackUsed {
		result = "fallback"
	}

	m.exhaustionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int(AttrTotalAttempts, totalAttempts),
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrServiceName, m.config.ServiceName),
			attribute.String(AttrRetryResult, result),
		),
	)

	m.totalDurationHistogram.Record(ctx, totalDuration.Seconds(),
		metric.WithAttributes(
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrRetryResult, result),
		),
	)
}

func (m *DefaultRetryMetrics) RecordRetryDelay(
	ctx context.Context,
	delay time.Duration,
	attempt int,
	operationName string,
) {
	m.delayHistogram.Record(ctx, delay.Seconds(),
		metric.WithAttributes(
			attribute.Int(AttrRetryAttempt, attempt),
			attribute.String(AttrOperationName, operationName),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

func (m *DefaultRetryMetrics) RecordCircuitBreakerEvent(
	ctx context.Context,
	breaker string,
	from, to valueobject.CircuitState,
) {
	m.breakerCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrBreakerName, breaker),
			attribute.String(AttrFromState, from.String()),
			attribute.String(AttrToState, to.String()),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

func (m *DefaultRetryMetrics) RecordCircuitBreakerRejection(ctx context.Context, breaker string) {
	m.rejectCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrBreakerName, breaker),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

func (m *DefaultRetryMetrics) RecordDegradedRead(ctx context.Context, degraded bool) {
	m.degradedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Bool(AttrDegraded, degraded),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

func (m *DefaultRetryMetrics) RecordReportForward(ctx context.Context, sink string, success bool) {
	m.forwardCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrSinkName, sink),
			attribute.Bool(AttrForwardSuccess, success),
			attribute.String(AttrServiceName, m.config.ServiceName),
		),
	)
}

// GetInstanceID returns the metrics instance identifier.
func (m *DefaultRetryMetrics) GetInstanceID() string {
	return m.config.InstanceID
}
