package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/domain/entity"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSleep records requested delays and returns immediately.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// fakeSink collects forwarded payloads.
type fakeSink struct {
	name string
	err  error

	mu       sync.Mutex
	payloads []entity.ReportPayload
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(_ context.Context, payload entity.ReportPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.err
}

func (s *fakeSink) Payloads() []entity.ReportPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.ReportPayload(nil), s.payloads...)
}

type testMetrics struct {
	*DefaultRetryMetrics
	reader *sdkmetric.ManualReader
}

func newTestMetrics(t *testing.T) *testMetrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewRetryMetricsWithProvider(RetryMetricsConfig{
		InstanceID:  "test-instance",
		ServiceName: "edurecovery-test",
	}, provider)
	require.NoError(t, err)
	return &testMetrics{DefaultRetryMetrics: metrics, reader: reader}
}

func (m *testMetrics) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, m.reader.Collect(context.Background(), &rm))
	return rm
}

func (m *testMetrics) find(t *testing.T, name string) (metricdata.Metrics, bool) {
	t.Helper()
	for _, scope := range m.collect(t).ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name == name {
				return metric, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// counterTotal sums every data point of an int64 counter.
func (m *testMetrics) counterTotal(t *testing.T, name string) int64 {
	t.Helper()
	metric, ok := m.find(t, name)
	if !ok {
		return 0
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

type recoveryFixture struct {
	clock *clockwork.FakeClock
	sleep *recordingSleep
	rc    *RecoveryContext
}

func newRecoveryFixture(t *testing.T, config RecoveryConfig, sinks ...*fakeSink) *recoveryFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	sleep := &recordingSleep{}

	deps := RecoveryDeps{
		Logger: logging.NewBufferLogger(),
		Clock:  clock,
		Sleep:  sleep.Sleep,
	}
	for _, sink := range sinks {
		deps.Sinks = append(deps.Sinks, sink)
	}

	rc, err := NewRecoveryContext(config, deps)
	require.NoError(t, err)
	return &recoveryFixture{clock: clock, sleep: sleep, rc: rc}
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, RetryDelay: 100 * time.Millisecond, BackoffMultiplier: 2}
}
