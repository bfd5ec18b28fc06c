package service

import (
	"context"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"edurecovery/internal/port/outbound"
	"fmt"
)

// DegradedReportRepository serves stored report reads through the degradation
// cache, guarded by the store's report breaker. While the store is failing the
// last successful listing for the same limit is returned.
type DegradedReportRepository struct {
	rc    *RecoveryContext
	name  string
	store outbound.ReportRepository
}

var _ outbound.ReportRepository = (*DegradedReportRepository)(nil)

// NewDegradedReportRepository wraps store, named name in breakers and cache keys.
func NewDegradedReportRepository(rc *RecoveryContext, name string, store outbound.ReportRepository) *DegradedReportRepository {
	return &DegradedReportRepository{rc: rc, name: name, store: store}
}

// Save stores payload directly.
func (d *DegradedReportRepository) Save(ctx context.Context, payload entity.ReportPayload) error {
	return d.store.Save(ctx, payload)
}

// ListRecent returns the newest stored payloads, or the cached listing when the
// store cannot be read. It fails only when nothing was cached yet.
func (d *DegradedReportRepository) ListRecent(ctx context.Context, limit int) ([]entity.ReportPayload, error) {
	key := fmt.Sprintf("reports:%s:recent:%d", d.name, limit)

	opts := RetryOptionsFor[[]entity.ReportPayload](d.rc)
	opts.MaxRetries = min(opts.MaxRetries, 1)
	opts.OperationName = "list reports from " + d.name
	opts.Context = valueobject.ContextAdmin
	breaker, err := d.rc.Breakers.Get(ReportBreakerName(d.name))
	if err != nil {
		return nil, err
	}
	opts.Breaker = breaker

	result := GetData(ctx, d.rc.Degradation, key, func(ctx context.Context) ([]entity.ReportPayload, error) {
		return d.store.ListRecent(ctx, limit)
	}, nil, opts)

	if result.Degraded && !d.rc.Degradation.Status(key).HasValue {
		return nil, result.Error
	}
	return result.Data, nil
}
