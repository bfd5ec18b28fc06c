package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu          sync.Mutex
	transitions []string
}

func (l *transitionLog) record(_ context.Context, name string, from, to valueobject.CircuitState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, name+":"+from.String()+"->"+to.String())
}

func (l *transitionLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.transitions...)
}

func newTestBreaker(t *testing.T, config CircuitBreakerConfig) (*CircuitBreaker, *clockwork.FakeClock, *transitionLog) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	transitions := &transitionLog{}
	breaker, err := NewCircuitBreaker(config, CircuitBreakerDeps{
		Classifier:    NewClassifier(nil, clock),
		Clock:         clock,
		Logger:        logging.NewBufferLogger(),
		OnStateChange: transitions.record,
	})
	require.NoError(t, err)
	return breaker, clock, transitions
}

func failing(context.Context) error { return errors.New("service busy") }

func succeeding(context.Context) error { return nil }

func TestCircuitBreakerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  CircuitBreakerConfig
		wantErr bool
	}{
		{"defaults", DefaultCircuitBreakerConfig("api"), false},
		{"missing name", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1}, true},
		{"zero failure threshold", CircuitBreakerConfig{Name: "api", SuccessThreshold: 1}, true},
		{"negative timeout", CircuitBreakerConfig{Name: "api", FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: -time.Second}, true},
		{"zero success threshold", CircuitBreakerConfig{Name: "api", FailureThreshold: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	breaker, _, transitions := newTestBreaker(t, CircuitBreakerConfig{
		Name: "calendar", FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.Error(t, breaker.Execute(ctx, failing))
		assert.Equal(t, valueobject.CircuitClosed, breaker.State())
	}
	assert.Error(t, breaker.Execute(ctx, failing))
	assert.Equal(t, valueobject.CircuitOpen, breaker.State())
	assert.Equal(t, 3, breaker.FailureCount())
	assert.Equal(t, []string{"calendar:closed->open"}, transitions.all())

	invoked := false
	err := breaker.Execute(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	assert.False(t, invoked)
	classified, ok := entity.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, entity.CodeCircuitOpen, classified.Code())
	assert.False(t, classified.Retryable())
}

func TestCircuitBreaker_SuccessResetsFailureCountWhenClosed(t *testing.T) {
	breaker, _, _ := newTestBreaker(t, CircuitBreakerConfig{
		Name: "api", FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1,
	})
	ctx := context.Background()

	_ = breaker.Execute(ctx, failing)
	_ = breaker.Execute(ctx, failing)
	require.NoError(t, breaker.Execute(ctx, succeeding))

	assert.Equal(t, 0, breaker.FailureCount())
	assert.Equal(t, valueobject.CircuitClosed, breaker.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	breaker, clock, transitions := newTestBreaker(t, CircuitBreakerConfig{
		Name: "upload", FailureThreshold: 1, RecoveryTimeout: 30 * time.Second, SuccessThreshold: 1,
	})
	ctx := context.Background()

	_ = breaker.Execute(ctx, failing)
	require.Equal(t, valueobject.CircuitOpen, breaker.State())

	clock.Advance(29 * time.Second)
	assert.Error(t, breaker.Execute(ctx, succeeding))
	assert.Equal(t, valueobject.CircuitOpen, breaker.State())

	clock.Advance(time.Second)
	require.NoError(t, breaker.Execute(ctx, succeeding))
	assert.Equal(t, valueobject.CircuitClosed, breaker.State())
	assert.Equal(t, 0, breaker.FailureCount())
	assert.Equal(t, []string{
		"upload:closed->open",
		"upload:open->half_open",
		"upload:half_open->closed",
	}, transitions.all())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	breaker, clock, _ := newTestBreaker(t, CircuitBreakerConfig{
		Name: "auth", FailureThreshold: 2, RecoveryTimeout: time.Second, SuccessThreshold: 1,
	})
	ctx := context.Background()

	_ = breaker.Execute(ctx, failing)
	_ = breaker.Execute(ctx, failing)
	clock.Advance(time.Second)

	assert.Error(t, breaker.Execute(ctx, failing))
	assert.Equal(t, valueobject.CircuitOpen, breaker.State())
	assert.Equal(t, clock.Now(), breaker.LastFailure())
}

func TestCircuitBreaker_SuccessThreshold(t *testing.T) {
	breaker, clock, _ := newTestBreaker(t, CircuitBreakerConfig{
		Name: "api", FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 2,
	})
	ctx := context.Background()

	_ = breaker.Execute(ctx, failing)
	clock.Advance(time.Second)

	require.NoError(t, breaker.Execute(ctx, succeeding))
	assert.Equal(t, valueobject.CircuitHalfOpen, breaker.State())
	require.NoError(t, breaker.Execute(ctx, succeeding))
	assert.Equal(t, valueobject.CircuitClosed, breaker.State())
}

func TestCircuitBreaker_ResetAndSnapshot(t *testing.T) {
	breaker, _, _ := newTestBreaker(t, CircuitBreakerConfig{
		Name: "calendar", FailureThreshold: 1, RecoveryTimeout: time.Hour, SuccessThreshold: 1,
	})
	ctx := context.Background()
	_ = breaker.Execute(ctx, failing)

	snapshot := breaker.Snapshot()
	assert.Equal(t, valueobject.CircuitOpen, snapshot.State)
	assert.Equal(t, 1, snapshot.FailureCount)
	require.NotNil(t, snapshot.LastFailure)

	breaker.Reset(ctx)
	snapshot = breaker.Snapshot()
	assert.Equal(t, valueobject.CircuitClosed, snapshot.State)
	assert.Zero(t, snapshot.FailureCount)
	assert.Nil(t, snapshot.LastFailure)
}

func TestCircuitBreakerRegistry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	registry, err := NewCircuitBreakerRegistry(map[string]CircuitBreakerConfig{
		"calendar": {FailureThreshold: 2, RecoveryTimeout: time.Second, SuccessThreshold: 1},
		"grades":   {FailureThreshold: 4, RecoveryTimeout: time.Minute, SuccessThreshold: 1},
	}, CircuitBreakerDeps{Classifier: NewClassifier(nil, clock), Clock: clock, Logger: logging.NewBufferLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{"api", "auth", "calendar", "grades", "upload"}, registry.Names())

	calendar, ok := registry.Lookup("calendar")
	require.True(t, ok)
	assert.Equal(t, 2, calendar.Config().FailureThreshold)

	api, err := registry.Get("api")
	require.NoError(t, err)
	assert.Equal(t, DefaultFailureThreshold, api.Config().FailureThreshold)

	t.Run("breakers are independent", func(t *testing.T) {
		ctx := context.Background()
		_ = calendar.Execute(ctx, failing)
		_ = calendar.Execute(ctx, failing)

		assert.Equal(t, valueobject.CircuitOpen, calendar.State())
		assert.Equal(t, valueobject.CircuitClosed, api.State())
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, registry.Reset(context.Background(), "calendar"))
		assert.Equal(t, valueobject.CircuitClosed, calendar.State())
		assert.ErrorIs(t, registry.Reset(context.Background(), "missing"), ErrBreakerNotFound)
	})

	t.Run("get creates unknown names with defaults", func(t *testing.T) {
		_, ok := registry.Lookup("reports")
		assert.False(t, ok)
		_, err := registry.Get("reports")
		require.NoError(t, err)
		assert.Len(t, registry.Snapshots(), 6)
	})
}

func TestCircuitBreakerRegistry_InvalidConfig(t *testing.T) {
	_, err := NewCircuitBreakerRegistry(map[string]CircuitBreakerConfig{
		"calendar": {FailureThreshold: 0, SuccessThreshold: 1},
	}, CircuitBreakerDeps{Classifier: newTestClassifier()})
	assert.Error(t, err)
}
