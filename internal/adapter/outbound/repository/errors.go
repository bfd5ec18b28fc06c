package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Report store failures callers can branch on.
var (
	// ErrStoreUnavailable means PostgreSQL could not be reached or is shutting down.
	ErrStoreUnavailable = errors.New("report store unavailable")

	// ErrReportTableMissing means the schema or table was never created; run migrate.
	ErrReportTableMissing = errors.New("error report table missing")
)

// sqlState returns the SQLSTATE carried by err, or "".
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsStoreUnavailable reports whether err is a dial failure or an SQLSTATE of
// class 08 (connection exception) or 57 (operator intervention).
func IsStoreUnavailable(err error) bool {
	if errors.Is(err, ErrStoreUnavailable) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	code := sqlState(err)
	return len(code) >= 2 && (code[:2] == "08" || code[:2] == "57")
}

// IsReportTableMissing reports whether err is an undefined table (42P01) or
// undefined schema (3F000).
func IsReportTableMissing(err error) bool {
	if errors.Is(err, ErrReportTableMissing) {
		return true
	}
	switch sqlState(err) {
	case "42P01", "3F000":
		return true
	}
	return false
}

// WrapError annotates err with the failed operation and tags store failures.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	switch {
	case IsStoreUnavailable(err):
		return fmt.Errorf("%s failed: %w: %w", operation, ErrStoreUnavailable, err)
	case IsReportTableMissing(err):
		return fmt.Errorf("%s failed: %w: %w", operation, ErrReportTableMissing, err)
	default:
		return fmt.Errorf("%s failed: %w", operation, err)
	}
}
