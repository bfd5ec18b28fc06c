// Package repository stores forwarded error reports in PostgreSQL.
package repository

import (
	"context"
	"edurecovery/internal/config"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConnections = 10
	pingTimeout           = 5 * time.Second
)

// NewDatabaseConnection creates a connection pool and verifies it with a ping.
func NewDatabaseConnection(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if pingErr := pool.Ping(pingCtx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return pool, nil
}

func newPoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}

	settings := []string{
		"host=" + cfg.Host,
		"port=" + strconv.Itoa(cfg.Port),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
		"sslmode=" + cfg.SSLMode,
	}
	if cfg.Password != "" {
		settings = append(settings, "password="+cfg.Password)
	}
	if cfg.Schema != "" {
		settings = append(settings, "search_path="+cfg.Schema)
	}

	poolConfig, err := pgxpool.ParseConfig(strings.Join(settings, " "))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConnections
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 && int32(cfg.MaxIdleConnections) <= poolConfig.MaxConns {
		poolConfig.MinConns = int32(cfg.MaxIdleConnections)
	}
	return poolConfig, nil
}

// HealthMetrics represents database pool health.
type HealthMetrics struct {
	Healthy           bool          `json:"healthy"`
	TotalConnections  int32         `json:"total_connections"`
	ActiveConnections int32         `json:"active_connections"`
	IdleConnections   int32         `json:"idle_connections"`
	ResponseTime      time.Duration `json:"response_time"`
}

// DatabaseHealthChecker pings the pool and reports its statistics.
type DatabaseHealthChecker struct {
	pool *pgxpool.Pool
}

// NewDatabaseHealthChecker creates a health checker for pool.
func NewDatabaseHealthChecker(pool *pgxpool.Pool) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{pool: pool}
}

// Metrics pings the database and returns pool statistics.
func (h *DatabaseHealthChecker) Metrics(ctx context.Context) HealthMetrics {
	if h == nil || h.pool == nil {
		return HealthMetrics{}
	}

	start := time.Now()
	err := h.pool.Ping(ctx)
	stats := h.pool.Stat()

	return HealthMetrics{
		Healthy:           err == nil,
		TotalConnections:  stats.TotalConns(),
		ActiveConnections: stats.AcquiredConns(),
		IdleConnections:   stats.IdleConns(),
		ResponseTime:      time.Since(start),
	}
}
