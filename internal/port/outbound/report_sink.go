package outbound

import (
	"context"
	"edurecovery/internal/domain/entity"
)

// ReportSink receives forwarded error reports. Delivery is best-effort: the
// reporter logs and discards any error a sink returns.
type ReportSink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Send delivers one report payload
	Send(ctx context.Context, payload entity.ReportPayload) error
}

// ReportRepository persists forwarded reports for later inspection.
type ReportRepository interface {
	// Save stores a report payload, ignoring duplicates by id
	Save(ctx context.Context, payload entity.ReportPayload) error

	// ListRecent returns the newest stored payloads, newest first
	ListRecent(ctx context.Context, limit int) ([]entity.ReportPayload, error)
}
