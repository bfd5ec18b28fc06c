package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/inbound"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultSuccessThreshold = 1
)

// StandardBreakerNames returns the logical services that always get their own breaker.
func StandardBreakerNames() []string {
	return []string{"api", "calendar", "upload", "auth"}
}

// ErrBreakerNotFound is returned for operations on unknown breaker names.
var ErrBreakerNotFound = errors.New("circuit breaker not found")

// StateChangeFunc observes breaker transitions. It runs after the breaker lock is released.
type StateChangeFunc func(ctx context.Context, name string, from, to valueobject.CircuitState)

// CircuitBreakerConfig holds per-breaker thresholds.
type CircuitBreakerConfig struct {
	Name             string        `mapstructure:"-"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
}

// DefaultCircuitBreakerConfig returns the default thresholds for name.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		SuccessThreshold: DefaultSuccessThreshold,
	}
}

// Validate checks the thresholds.
func (c CircuitBreakerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("circuit breaker: name cannot be empty")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("circuit breaker %s: failure threshold must be at least 1", c.Name)
	}
	if c.RecoveryTimeout < 0 {
		return fmt.Errorf("circuit breaker %s: recovery timeout cannot be negative", c.Name)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("circuit breaker %s: success threshold must be at least 1", c.Name)
	}
	return nil
}

// CircuitBreakerDeps are the collaborators shared by every breaker of a registry.
type CircuitBreakerDeps struct {
	Classifier    *Classifier
	Clock         clockwork.Clock
	Metrics       RetryMetrics
	Logger        logging.ApplicationLogger
	OnStateChange StateChangeFunc
}

type stateTransition struct {
	from, to valueobject.CircuitState
}

// CircuitBreaker guards one logical service. Its state is owned by this instance
// and never shared.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	deps   CircuitBreakerDeps

	mu           sync.Mutex
	state        valueobject.CircuitState
	failureCount int
	successCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig, deps CircuitBreakerDeps) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Classifier == nil {
		return nil, errors.New("circuit breaker: classifier cannot be nil")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewNoopRetryMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slogger.Logger()
	}
	deps.Logger = deps.Logger.WithComponent("circuit-breaker")

	return &CircuitBreaker{
		config: config,
		deps:   deps,
		state:  valueobject.CircuitClosed,
	}, nil
}

// Execute runs operation unless the breaker is open. A rejected call returns a
// non-retryable SERVICE_CIRCUIT_OPEN error without invoking operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	allowed, transition := cb.acquire()
	cb.notify(ctx, transition)

	if !allowed {
		cb.deps.Metrics.RecordCircuitBreakerRejection(ctx, cb.config.Name)
		return cb.deps.Classifier.NewCircuitOpenError(cb.config.Name)
	}

	err := operation(ctx)
	cb.notify(ctx, cb.record(err))
	return err
}

func (cb *CircuitBreaker) acquire() (bool, *stateTransition) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case valueobject.CircuitClosed, valueobject.CircuitHalfOpen:
		return true, nil
	case valueobject.CircuitOpen:
		if cb.deps.Clock.Since(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.successCount = 0
			return true, cb.transitionLocked(valueobject.CircuitHalfOpen)
		}
		return false, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(err error) *stateTransition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		return cb.recordFailureLocked()
	}
	return cb.recordSuccessLocked()
}

func (cb *CircuitBreaker) recordFailureLocked() *stateTransition {
	cb.failureCount++
	cb.lastFailure = cb.deps.Clock.Now()

	switch cb.state {
	case valueobject.CircuitClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			return cb.transitionLocked(valueobject.CircuitOpen)
		}
	case valueobject.CircuitHalfOpen:
		if cb.failureCount < cb.config.FailureThreshold {
			cb.failureCount = cb.config.FailureThreshold
		}
		return cb.transitionLocked(valueobject.CircuitOpen)
	case valueobject.CircuitOpen:
		// A call admitted before another goroutine reopened the breaker.
	}
	return nil
}

func (cb *CircuitBreaker) recordSuccessLocked() *stateTransition {
	switch cb.state {
	case valueobject.CircuitClosed:
		cb.failureCount = 0
	case valueobject.CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			return cb.transitionLocked(valueobject.CircuitClosed)
		}
	case valueobject.CircuitOpen:
	}
	return nil
}

func (cb *CircuitBreaker) transitionLocked(to valueobject.CircuitState) *stateTransition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	return &stateTransition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(ctx context.Context, transition *stateTransition) {
	if transition == nil {
		return
	}

	cb.deps.Metrics.RecordCircuitBreakerEvent(ctx, cb.config.Name, transition.from, transition.to)
	fields := logging.Fields{
		"breaker": cb.config.Name,
		"from":    transition.from.String(),
		"to":      transition.to.String(),
	}
	if transition.to == valueobject.CircuitOpen {
		cb.deps.Logger.Warn(ctx, "Circuit breaker opened", fields)
	} else {
		cb.deps.Logger.Info(ctx, "Circuit breaker state changed", fields)
	}

	if cb.deps.OnStateChange != nil {
		cb.deps.OnStateChange(ctx, cb.config.Name, transition.from, transition.to)
	}
}

// Name returns the logical service name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Config returns the breaker thresholds.
func (cb *CircuitBreaker) Config() CircuitBreakerConfig {
	return cb.config
}

// State returns the current state without applying time-based transitions; an
// open breaker moves to half-open only when a call is attempted.
func (cb *CircuitBreaker) State() valueobject.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the failures counted since the last reset.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}

// LastFailure returns the time of the most recent failure, zero if none.
func (cb *CircuitBreaker) LastFailure() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailure
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset(ctx context.Context) {
	cb.mu.Lock()
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastFailure = time.Time{}
	transition := cb.transitionLocked(valueobject.CircuitClosed)
	cb.mu.Unlock()

	cb.notify(ctx, transition)
}

// Snapshot returns a point-in-time view for reporting.
func (cb *CircuitBreaker) Snapshot() inbound.BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snapshot := inbound.BreakerSnapshot{
		Name:             cb.config.Name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		FailureThreshold: cb.config.FailureThreshold,
	}
	if !cb.lastFailure.IsZero() {
		last := cb.lastFailure
		snapshot.LastFailure = &last
	}
	return snapshot
}

// CircuitBreakerRegistry owns one independent breaker per logical service name.
type CircuitBreakerRegistry struct {
	deps    CircuitBreakerDeps
	configs map[string]CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerRegistry creates breakers for the standard services plus every
// configured name. Names without configuration use the defaults.
func NewCircuitBreakerRegistry(
	configs map[string]CircuitBreakerConfig,
	deps CircuitBreakerDeps,
) (*CircuitBreakerRegistry, error) {
	registry := &CircuitBreakerRegistry{
		deps:     deps,
		configs:  make(map[string]CircuitBreakerConfig, len(configs)),
		breakers: make(map[string]*CircuitBreaker),
	}

	for name, cfg := range configs {
		cfg.Name = name
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		registry.configs[name] = cfg
	}

	names := StandardBreakerNames()
	for name := range registry.configs {
		names = append(names, name)
	}
	for _, name := range names {
		if _, err := registry.getOrCreate(name); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Get returns the breaker for name, creating it with default thresholds if needed.
func (r *CircuitBreakerRegistry) Get(name string) (*CircuitBreaker, error) {
	return r.getOrCreate(name)
}

// Lookup returns an existing breaker without creating one.
func (r *CircuitBreakerRegistry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

func (r *CircuitBreakerRegistry) getOrCreate(name string) (*CircuitBreaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb, nil
	}

	cfg, ok := r.configs[name]
	if !ok {
		cfg = DefaultCircuitBreakerConfig(name)
	}
	cb, err := NewCircuitBreaker(cfg, r.deps)
	if err != nil {
		return nil, err
	}
	r.breakers[name] = cb
	return cb, nil
}

// Names returns the registered breaker names in sorted order.
func (r *CircuitBreakerRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots returns the state of every breaker, sorted by name.
func (r *CircuitBreakerRegistry) Snapshots() []inbound.BreakerSnapshot {
	names := r.Names()
	snapshots := make([]inbound.BreakerSnapshot, 0, len(names))
	for _, name := range names {
		if cb, ok := r.Lookup(name); ok {
			snapshots = append(snapshots, cb.Snapshot())
		}
	}
	return snapshots
}

// Reset closes the named breaker.
func (r *CircuitBreakerRegistry) Reset(ctx context.Context, name string) error {
	cb, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBreakerNotFound, name)
	}
	cb.Reset(ctx)
	return nil
}
