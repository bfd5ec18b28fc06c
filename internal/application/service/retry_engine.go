package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryAttempt records one attempt of a retry sequence.
type RetryAttempt struct {
	Index int                     `json:"index"`
	Err   *entity.ClassifiedError `json:"error,omitempty"`
	Delay time.Duration           `json:"delay"`
}

// RecoveryResult is what every retried operation returns instead of an error.
type RecoveryResult[T any] struct {
	Success      bool                    `json:"success"`
	Data         T                       `json:"data"`
	Error        *entity.ClassifiedError `json:"error,omitempty"`
	Attempts     int                     `json:"attempts"`
	Recovered    bool                    `json:"recovered"`
	FallbackUsed bool                    `json:"fallbackUsed"`
	History      []RetryAttempt          `json:"history,omitempty"`
}

// RetryOptions configures a single WithRetry call.
type RetryOptions[T any] struct {
	RetryPolicy

	// Fallback is returned as a successful result when every attempt fails.
	Fallback *T

	// OnRetry runs before sleeping, with the index of the attempt that just failed.
	OnRetry func(attempt int, err *entity.ClassifiedError)

	// OnFailure runs when the sequence fails and no fallback is available.
	OnFailure func(err *entity.ClassifiedError)

	// Breaker guards every attempt when set.
	Breaker *CircuitBreaker

	// OperationName labels logs, metrics and reports.
	OperationName string

	// Context tags the report filed for a failed sequence.
	Context valueobject.ErrorContext
}

// NewRetryOptions returns options using policy and no fallback.
func NewRetryOptions[T any](policy RetryPolicy) RetryOptions[T] {
	return RetryOptions[T]{RetryPolicy: policy, Context: valueobject.ContextPublic}
}

// WithFallback returns a copy of the options carrying value as fallback.
func (o RetryOptions[T]) WithFallback(value T) RetryOptions[T] {
	o.Fallback = &value
	return o
}

// FailureRecorder receives breadcrumbs and final errors from resilience components.
type FailureRecorder interface {
	AddBreadcrumb(ctx context.Context, breadcrumbType valueobject.BreadcrumbType, message string, data map[string]any)
	ReportError(ctx context.Context, err any, errCtx valueobject.ErrorContext, opts ReportOptions) string
}

// RetryEngineConfig holds the collaborators of a RetryEngine.
type RetryEngineConfig struct {
	Classifier *Classifier
	Clock      clockwork.Clock
	Sleep      SleepFunc
	Metrics    RetryMetrics
	Recorder   FailureRecorder
	Logger     logging.ApplicationLogger
}

// RetryEngine runs operations with classified, exponentially backed-off retries.
// It keeps no per-call state, so one engine serves any number of concurrent calls.
type RetryEngine struct {
	classifier *Classifier
	clock      clockwork.Clock
	sleep      SleepFunc
	metrics    RetryMetrics
	recorder   FailureRecorder
	logger     logging.ApplicationLogger
}

// NewRetryEngine creates a retry engine. Only the classifier is required.
func NewRetryEngine(config RetryEngineConfig) (*RetryEngine, error) {
	if config.Classifier == nil {
		return nil, errors.New("retry engine: classifier cannot be nil")
	}

	engine := &RetryEngine{
		classifier: config.Classifier,
		clock:      config.Clock,
		sleep:      config.Sleep,
		metrics:    config.Metrics,
		recorder:   config.Recorder,
		logger:     config.Logger,
	}
	if engine.clock == nil {
		engine.clock = clockwork.NewRealClock()
	}
	if engine.sleep == nil {
		engine.sleep = ClockSleep(engine.clock)
	}
	if engine.metrics == nil {
		engine.metrics = NewNoopRetryMetrics()
	}
	if engine.logger == nil {
		engine.logger = slogger.Logger()
	}
	engine.logger = engine.logger.WithComponent("retry-engine")

	return engine, nil
}

// Classifier returns the classifier failures are mapped with.
func (e *RetryEngine) Classifier() *Classifier {
	return e.classifier
}

// ClockSleep returns a SleepFunc driven by clock.
func ClockSleep(clock clockwork.Clock) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := clock.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.Chan():
			return nil
		}
	}
}

// WithRetry invokes operation until it succeeds, fails with a non-retryable error,
// or MaxRetries+1 attempts have been made. Attempts run strictly one after another.
// Failures never escape as errors: the outcome is always described by the result.
func WithRetry[T any](
	ctx context.Context,
	engine *RetryEngine,
	operation func(ctx context.Context) (T, error),
	opts RetryOptions[T],
) RecoveryResult[T] {
	policy := opts.RetryPolicy.normalized()
	name := opts.OperationName
	if name == "" {
		name = "operation"
	}
	start := engine.clock.Now()
	maxAttempts := policy.MaxRetries + 1

	var (
		result  RecoveryResult[T]
		lastErr *entity.ClassifiedError
		delay   time.Duration
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		data, err := invokeGuarded(ctx, operation, opts.Breaker)
		if err == nil {
			result.History = append(result.History, RetryAttempt{Index: attempt, Delay: delay})
			result.Success = true
			result.Data = data
			result.Recovered = attempt > 1
			engine.succeeded(ctx, name, attempt, start)
			return result
		}

		classified := engine.classifier.Classify(err)
		if classified == nil {
			classified = engine.classifier.NewUnknownError("operation returned a nil *ClassifiedError as error")
		}
		lastErr = classified
		result.History = append(result.History, RetryAttempt{Index: attempt, Err: classified, Delay: delay})
		engine.attemptFailed(ctx, name, attempt, classified)

		if !classified.Retryable() || attempt == maxAttempts {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, classified)
		}

		delay = policy.DelayAfter(attempt)
		engine.metrics.RecordRetryAttempt(ctx, attempt, classified.Category(), name)
		engine.metrics.RecordRetryDelay(ctx, delay, attempt, name)

		if sleepErr := engine.sleep(ctx, delay); sleepErr != nil {
			lastErr = engine.classifier.Classify(sleepErr)
			break
		}
	}

	result.Error = lastErr
	if opts.Fallback != nil {
		result.Success = true
		result.Data = *opts.Fallback
		result.FallbackUsed = true
	} else if opts.OnFailure != nil {
		opts.OnFailure(lastErr)
	}

	engine.exhausted(ctx, name, opts.Context, result.Attempts, result.FallbackUsed, lastErr, start)
	return result
}

func invokeGuarded[T any](
	ctx context.Context,
	operation func(ctx context.Context) (T, error),
	breaker *CircuitBreaker,
) (T, error) {
	if breaker == nil {
		return operation(ctx)
	}

	var data T
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		data, opErr = operation(ctx)
		return opErr
	})
	return data, err
}

func (e *RetryEngine) succeeded(ctx context.Context, name string, attempts int, start time.Time) {
	e.metrics.RecordRetrySuccess(ctx, attempts, e.clock.Since(start), name)
	if attempts == 1 {
		return
	}

	e.logger.Info(ctx, "Operation recovered after retries", logging.Fields{
		"operation": name,
		"attempts":  attempts,
	})
	if e.recorder != nil {
		e.recorder.AddBreadcrumb(ctx, valueobject.BreadcrumbInfo, name+" recovered", map[string]any{
			"attempts": attempts,
		})
	}
}

func (e *RetryEngine) attemptFailed(ctx context.Context, name string, attempt int, err *entity.ClassifiedError) {
	e.metrics.RecordRetryFailure(ctx, attempt, err.Category(), err.Code(), name)
	e.logger.Debug(ctx, "Attempt failed", logging.Fields{
		"operation": name,
		"attempt":   attempt,
		"code":      err.Code(),
		"retryable": err.Retryable(),
	})
	if e.recorder != nil {
		e.recorder.AddBreadcrumb(ctx, valueobject.BreadcrumbError, name+" failed: "+err.Code(), map[string]any{
			"attempt":   attempt,
			"severity":  err.Severity().String(),
			"retryable": err.Retryable(),
		})
	}
}

func (e *RetryEngine) exhausted(
	ctx context.Context,
	name string,
	errCtx valueobject.ErrorContext,
	attempts int,
	fallbackUsed bool,
	err *entity.ClassifiedError,
	start time.Time,
) {
	e.metrics.RecordRetryExhaustion(ctx, attempts, e.clock.Since(start), fallbackUsed, name)
	e.logger.Warn(ctx, "Operation did not succeed", logging.Fields{
		"operation":     name,
		"attempts":      attempts,
		"fallback_used": fallbackUsed,
		"code":          err.Code(),
		"severity":      err.Severity().String(),
	})
	if e.recorder != nil {
		e.recorder.ReportError(ctx, err, errCtx, ReportOptions{
			Metadata: map[string]any{
				"operation":     name,
				"attempts":      attempts,
				"fallback_used": fallbackUsed,
			},
		})
	}
}
