package repository

import (
	"context"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/port/outbound"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// SinkName identifies the PostgreSQL sink in logs and metrics.
	SinkName = "postgres"

	reportsTable     = "error_reports"
	defaultListLimit = 50
	maxListLimit     = 500
)

// DBExecutor is the subset of *pgxpool.Pool the report repository needs.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresReportRepository stores report payloads as JSONB rows.
type PostgresReportRepository struct {
	db    DBExecutor
	table string
}

var (
	_ outbound.ReportRepository = (*PostgresReportRepository)(nil)
	_ outbound.ReportSink       = (*PostgresReportRepository)(nil)
)

// NewPostgresReportRepository creates a repository writing to schema.error_reports.
// An empty schema uses the connection search path.
func NewPostgresReportRepository(db DBExecutor, schema string) (*PostgresReportRepository, error) {
	if db == nil {
		return nil, errors.New("database executor cannot be nil")
	}
	identifier := pgx.Identifier{reportsTable}
	if schema != "" {
		identifier = pgx.Identifier{schema, reportsTable}
	}
	return &PostgresReportRepository{db: db, table: identifier.Sanitize()}, nil
}

// EnsureSchema creates the reports table and its index.
func (r *PostgresReportRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL,
	severity    TEXT NOT NULL,
	context     TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS error_reports_occurred_at_idx ON %s (occurred_at DESC)`, r.table),
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return WrapError(err, "ensure error report schema")
		}
	}
	return nil
}

// Save implements outbound.ReportRepository. Saving an id twice is a no-op.
func (r *PostgresReportRepository) Save(ctx context.Context, payload entity.ReportPayload) error {
	if payload.ID == "" {
		return errors.New("report id cannot be empty")
	}

	document, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, payload.Timestamp)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, code, severity, context, session_id, occurred_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`, r.table)

	_, err = r.db.Exec(ctx, query,
		payload.ID,
		payload.Error.Code,
		payload.Error.Severity,
		payload.Context,
		payload.SessionID,
		occurredAt,
		document,
	)
	if err != nil {
		return WrapError(err, "save error report")
	}
	return nil
}

// ListRecent implements outbound.ReportRepository.
func (r *PostgresReportRepository) ListRecent(ctx context.Context, limit int) ([]entity.ReportPayload, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY occurred_at DESC, received_at DESC LIMIT $1`, r.table)
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, WrapError(err, "list error reports")
	}
	defer rows.Close()

	payloads := make([]entity.ReportPayload, 0, limit)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, WrapError(err, "scan error report")
		}
		var payload entity.ReportPayload
		if err := json.Unmarshal(document, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode stored report: %w", err)
		}
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "list error reports")
	}
	return payloads, nil
}

// Name implements outbound.ReportSink.
func (r *PostgresReportRepository) Name() string {
	return SinkName
}

// Send implements outbound.ReportSink by saving the payload.
func (r *PostgresReportRepository) Send(ctx context.Context, payload entity.ReportPayload) error {
	return r.Save(ctx, payload)
}
