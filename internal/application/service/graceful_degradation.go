package service

import (
	"context"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/port/inbound"
	"errors"
	"sort"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultDegradationMaxEntries bounds the last-known-good cache. Zero means unbounded.
const DefaultDegradationMaxEntries = 512

// DegradedResult is what GetData returns: fresh data, a cached or explicit
// fallback, or nothing, together with the error that caused degradation.
type DegradedResult[T any] struct {
	Data     T                       `json:"data"`
	Error    *entity.ClassifiedError `json:"error,omitempty"`
	Degraded bool                    `json:"degraded"`
}

type degradationEntry struct {
	value    any
	hasValue bool
	failures int
}

// GracefulDegradation remembers the last successful payload per key and serves it
// when fresh fetches fail.
type GracefulDegradation struct {
	engine  *RetryEngine
	metrics RetryMetrics

	mu       sync.Mutex
	cache    *lru.Cache
	degraded map[string]struct{}
}

// NewGracefulDegradation creates a cache holding at most maxEntries keys, evicting
// the least recently used. maxEntries 0 means unbounded.
func NewGracefulDegradation(engine *RetryEngine, maxEntries int, metrics RetryMetrics) (*GracefulDegradation, error) {
	if engine == nil {
		return nil, errors.New("graceful degradation: retry engine cannot be nil")
	}
	if maxEntries < 0 {
		return nil, errors.New("graceful degradation: max entries cannot be negative")
	}
	if metrics == nil {
		metrics = NewNoopRetryMetrics()
	}

	gd := &GracefulDegradation{
		engine:   engine,
		metrics:  metrics,
		cache:    lru.New(maxEntries),
		degraded: make(map[string]struct{}),
	}
	gd.cache.OnEvicted = func(key lru.Key, _ interface{}) {
		if k, ok := key.(string); ok {
			delete(gd.degraded, k)
		}
	}
	return gd, nil
}

// GetData fetches key through the retry engine. The fallback is the explicit
// fallback argument, else opts.Fallback, else the last cached value for key.
// Cached values stored under a different type are ignored.
func GetData[T any](
	ctx context.Context,
	gd *GracefulDegradation,
	key string,
	fetcher func(ctx context.Context) (T, error),
	fallback *T,
	opts RetryOptions[T],
) DegradedResult[T] {
	if fallback == nil {
		fallback = opts.Fallback
	}
	if fallback == nil {
		if cached, ok := gd.cachedValue(key); ok {
			if typed, ok := cached.(T); ok {
				fallback = &typed
			}
		}
	}
	opts.Fallback = fallback
	if opts.OperationName == "" {
		opts.OperationName = "degradation:" + key
	}

	result := WithRetry(ctx, gd.engine, fetcher, opts)

	if result.Success && !result.FallbackUsed {
		gd.storeSuccess(key, result.Data)
		gd.metrics.RecordDegradedRead(ctx, false)
		return DegradedResult[T]{Data: result.Data}
	}

	gd.recordFailure(key)
	gd.metrics.RecordDegradedRead(ctx, true)
	return DegradedResult[T]{
		Data:     result.Data,
		Error:    result.Error,
		Degraded: true,
	}
}

func (gd *GracefulDegradation) cachedValue(key string) (any, bool) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	entry, ok := gd.entryLocked(key)
	if !ok || !entry.hasValue {
		return nil, false
	}
	return entry.value, true
}

func (gd *GracefulDegradation) entryLocked(key string) (*degradationEntry, bool) {
	value, ok := gd.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry, ok := value.(*degradationEntry)
	return entry, ok
}

func (gd *GracefulDegradation) storeSuccess(key string, value any) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if entry, ok := gd.entryLocked(key); ok {
		entry.value = value
		entry.hasValue = true
		entry.failures = 0
	} else {
		gd.cache.Add(key, &degradationEntry{value: value, hasValue: true})
	}
	delete(gd.degraded, key)
}

func (gd *GracefulDegradation) recordFailure(key string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	entry, ok := gd.entryLocked(key)
	if !ok {
		entry = &degradationEntry{}
		gd.cache.Add(key, entry)
	}
	entry.failures++
	gd.degraded[key] = struct{}{}
}

// IsDegraded reports whether the last fetch of key failed.
func (gd *GracefulDegradation) IsDegraded(key string) bool {
	return gd.FailureCount(key) > 0
}

// FailureCount returns the failures recorded for key since its last success.
func (gd *GracefulDegradation) FailureCount(key string) int {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if entry, ok := gd.entryLocked(key); ok {
		return entry.failures
	}
	return 0
}

// ClearFailures resets the failure counter for key, keeping any cached value.
func (gd *GracefulDegradation) ClearFailures(key string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if entry, ok := gd.entryLocked(key); ok {
		entry.failures = 0
	}
	delete(gd.degraded, key)
}

// Clear drops key entirely, value and counter.
func (gd *GracefulDegradation) Clear(key string) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	gd.cache.Remove(key)
	delete(gd.degraded, key)
}

// Len returns the number of cached keys.
func (gd *GracefulDegradation) Len() int {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	return gd.cache.Len()
}

// Status describes key for UI indicators.
func (gd *GracefulDegradation) Status(key string) inbound.DegradationStatus {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	status := inbound.DegradationStatus{Key: key}
	if entry, ok := gd.entryLocked(key); ok {
		status.FailureCount = entry.failures
		status.Degraded = entry.failures > 0
		status.HasValue = entry.hasValue
	}
	return status
}

// DegradedKeys lists every key currently served from fallback, sorted by key.
func (gd *GracefulDegradation) DegradedKeys() []inbound.DegradationStatus {
	gd.mu.Lock()
	keys := make([]string, 0, len(gd.degraded))
	for key := range gd.degraded {
		keys = append(keys, key)
	}
	gd.mu.Unlock()

	sort.Strings(keys)
	statuses := make([]inbound.DegradationStatus, 0, len(keys))
	for _, key := range keys {
		statuses = append(statuses, gd.Status(key))
	}
	return statuses
}
