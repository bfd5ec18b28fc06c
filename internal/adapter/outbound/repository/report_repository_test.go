package repository

import (
	"context"
	"edurecovery/internal/domain/entity"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecutor struct {
	execs    []execCall
	queries  []execCall
	execErr  error
	queryErr error
	rows     *fakeRows
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecutor) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, execCall{sql: sql, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

type fakeRows struct {
	documents [][]byte
	index     int
	err       error
	closed    bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.index >= len(r.documents) {
		return false
	}
	r.index++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	target, ok := dest[0].(*[]byte)
	if !ok {
		return errors.New("unexpected scan target")
	}
	*target = r.documents[r.index-1]
	return nil
}

func reportPayload(id, severity, timestamp string) entity.ReportPayload {
	return entity.ReportPayload{
		ID:          id,
		Error:       entity.ReportPayloadError{Code: "SERVICE_UNAVAILABLE", Message: "down", Severity: severity},
		Timestamp:   timestamp,
		SessionID:   "session-1",
		Context:     "public",
		Breadcrumbs: []entity.Breadcrumb{},
		Metadata:    map[string]any{},
	}
}

func TestPostgresReportRepository_EnsureSchema(t *testing.T) {
	db := &fakeExecutor{}
	repo, err := NewPostgresReportRepository(db, "edu")
	require.NoError(t, err)

	require.NoError(t, repo.EnsureSchema(context.Background()))

	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0].sql, `CREATE TABLE IF NOT EXISTS "edu"."error_reports"`)
	assert.Contains(t, db.execs[0].sql, "payload     JSONB NOT NULL")
	assert.Contains(t, db.execs[1].sql, "CREATE INDEX IF NOT EXISTS")
}

func TestPostgresReportRepository_Save(t *testing.T) {
	db := &fakeExecutor{}
	repo, err := NewPostgresReportRepository(db, "")
	require.NoError(t, err)

	payload := reportPayload("report-1", "high", "2024-03-01T12:00:00Z")
	require.NoError(t, repo.Send(context.Background(), payload))

	require.Len(t, db.execs, 1)
	call := db.execs[0]
	assert.True(t, strings.HasPrefix(call.sql, `INSERT INTO "error_reports"`))
	assert.Contains(t, call.sql, "ON CONFLICT (id) DO NOTHING")
	require.Len(t, call.args, 7)
	assert.Equal(t, "report-1", call.args[0])
	assert.Equal(t, "SERVICE_UNAVAILABLE", call.args[1])
	assert.Equal(t, "high", call.args[2])
	assert.True(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Equal(call.args[5].(time.Time)))

	var stored entity.ReportPayload
	require.NoError(t, json.Unmarshal(call.args[6].([]byte), &stored))
	assert.Equal(t, payload, stored)
	assert.Equal(t, SinkName, repo.Name())
}

func TestPostgresReportRepository_SaveErrors(t *testing.T) {
	t.Run("empty id", func(t *testing.T) {
		repo, err := NewPostgresReportRepository(&fakeExecutor{}, "")
		require.NoError(t, err)
		assert.Error(t, repo.Save(context.Background(), entity.ReportPayload{}))
	})

	t.Run("connection failure is wrapped", func(t *testing.T) {
		db := &fakeExecutor{execErr: &pgconn.PgError{Code: "08006", Message: "connection failure"}}
		repo, err := NewPostgresReportRepository(db, "")
		require.NoError(t, err)

		err = repo.Save(context.Background(), reportPayload("r", "high", "2024-03-01T12:00:00Z"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "save error report failed")
	})
}

func TestPostgresReportRepository_ListRecent(t *testing.T) {
	newer, err := json.Marshal(reportPayload("report-2", "critical", "2024-03-01T12:05:00Z"))
	require.NoError(t, err)
	older, err := json.Marshal(reportPayload("report-1", "high", "2024-03-01T12:00:00Z"))
	require.NoError(t, err)

	rows := &fakeRows{documents: [][]byte{newer, older}}
	db := &fakeExecutor{rows: rows}
	repo, err := NewPostgresReportRepository(db, "")
	require.NoError(t, err)

	payloads, err := repo.ListRecent(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "report-2", payloads[0].ID)
	assert.Equal(t, "report-1", payloads[1].ID)
	assert.True(t, rows.closed)
	require.Len(t, db.queries, 1)
	assert.Equal(t, []any{defaultListLimit}, db.queries[0].args)
	assert.Contains(t, db.queries[0].sql, "ORDER BY occurred_at DESC")
}

func TestPostgresReportRepository_ListRecentLimits(t *testing.T) {
	db := &fakeExecutor{rows: &fakeRows{}}
	repo, err := NewPostgresReportRepository(db, "")
	require.NoError(t, err)

	payloads, err := repo.ListRecent(context.Background(), 10_000)
	require.NoError(t, err)
	assert.Empty(t, payloads)
	assert.Equal(t, []any{maxListLimit}, db.queries[0].args)
}

func TestPostgresReportRepository_ListRecentErrors(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		repo, err := NewPostgresReportRepository(&fakeExecutor{queryErr: errors.New("boom")}, "")
		require.NoError(t, err)
		_, err = repo.ListRecent(context.Background(), 5)
		assert.EqualError(t, err, "list error reports failed: boom")
	})

	t.Run("missing table", func(t *testing.T) {
		db := &fakeExecutor{queryErr: &pgconn.PgError{Code: "42P01", Message: `relation "edurecovery.error_reports" does not exist`}}
		repo, err := NewPostgresReportRepository(db, "")
		require.NoError(t, err)
		_, err = repo.ListRecent(context.Background(), 5)
		assert.ErrorIs(t, err, ErrReportTableMissing)
	})

	t.Run("rows error", func(t *testing.T) {
		rows := &fakeRows{err: errors.New("stream interrupted")}
		repo, err := NewPostgresReportRepository(&fakeExecutor{rows: rows}, "")
		require.NoError(t, err)
		_, err = repo.ListRecent(context.Background(), 5)
		assert.Error(t, err)
	})

	t.Run("corrupt document", func(t *testing.T) {
		rows := &fakeRows{documents: [][]byte{[]byte("{")}}
		repo, err := NewPostgresReportRepository(&fakeExecutor{rows: rows}, "")
		require.NoError(t, err)
		_, err = repo.ListRecent(context.Background(), 5)
		assert.ErrorContains(t, err, "failed to decode stored report")
	})
}

func TestNewPostgresReportRepository_NilExecutor(t *testing.T) {
	_, err := NewPostgresReportRepository(nil, "")
	assert.Error(t, err)
}
