package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Report sink names accepted in reporting.sinks.
const (
	SinkHTTP     = "http"
	SinkNATS     = "nats"
	SinkPostgres = "postgres"
)

// Config holds the complete application configuration.
type Config struct {
	API             APIConfig                       `mapstructure:"api"`
	Log             LogConfig                       `mapstructure:"log"`
	Retry           RetryConfig                     `mapstructure:"retry"`
	CircuitBreakers map[string]CircuitBreakerConfig `mapstructure:"circuit_breakers"`
	Degradation     DegradationConfig               `mapstructure:"degradation"`
	Notifications   NotificationsConfig             `mapstructure:"notifications"`
	Reporting       ReportingConfig                 `mapstructure:"reporting"`
	NATS            NATSConfig                      `mapstructure:"nats"`
	Database        DatabaseConfig                  `mapstructure:"database"`
	Localization    LocalizationConfig              `mapstructure:"localization"`
	Metrics         MetricsConfig                   `mapstructure:"metrics"`
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns host:port.
func (a APIConfig) Address() string {
	return a.Host + ":" + a.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RetryConfig holds the default retry policy.
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// CircuitBreakerConfig holds the thresholds of one named breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
}

// DegradationConfig bounds the last-known-good cache.
type DegradationConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// NotificationsConfig holds in-app notification limits.
type NotificationsConfig struct {
	MaxNotifications int           `mapstructure:"max_notifications"`
	AutoDismissAfter time.Duration `mapstructure:"auto_dismiss_after"`
}

// ReportingConfig holds error reporting configuration.
type ReportingConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ForwardTimeout time.Duration `mapstructure:"forward_timeout"`
	MaxBreadcrumbs int           `mapstructure:"max_breadcrumbs"`
	MaxReports     int           `mapstructure:"max_reports"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	Sinks          []string      `mapstructure:"sinks"`
}

// HasSink reports whether name is an enabled sink.
func (r ReportingConfig) HasSink(name string) bool {
	for _, sink := range r.Sinks {
		if strings.EqualFold(strings.TrimSpace(sink), name) {
			return true
		}
	}
	return false
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	Schema             string `mapstructure:"schema"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// LocalizationConfig selects the message catalog locale.
type LocalizationConfig struct {
	DefaultLocale string `mapstructure:"default_locale"`
}

// MetricsConfig holds OpenTelemetry metrics configuration.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	InstanceID  string `mapstructure:"instance_id"`
	ServiceName string `mapstructure:"service_name"`
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// New creates a new Config instance from Viper. It panics on invalid configuration.
func New(v *viper.Viper) *Config {
	config, err := Load(v)
	if err != nil {
		panic(err)
	}
	return config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.validateLog(); err != nil {
		return err
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries cannot be negative")
	}
	if c.Retry.RetryDelay < 0 {
		return errors.New("retry.retry_delay cannot be negative")
	}
	if c.Retry.BackoffMultiplier <= 0 {
		return errors.New("retry.backoff_multiplier must be positive")
	}

	for name, breaker := range c.CircuitBreakers {
		if breaker.FailureThreshold < 1 {
			return fmt.Errorf("circuit_breakers.%s.failure_threshold must be at least 1", name)
		}
		if breaker.SuccessThreshold < 1 {
			return fmt.Errorf("circuit_breakers.%s.success_threshold must be at least 1", name)
		}
		if breaker.RecoveryTimeout < 0 {
			return fmt.Errorf("circuit_breakers.%s.recovery_timeout cannot be negative", name)
		}
	}

	if c.Degradation.MaxEntries < 0 {
		return errors.New("degradation.max_entries cannot be negative")
	}
	if c.Notifications.MaxNotifications < 1 {
		return errors.New("notifications.max_notifications must be at least 1")
	}

	if c.Localization.DefaultLocale == "" {
		return errors.New("localization.default_locale is required")
	}

	return c.validateSinks()
}

func (c *Config) validateLog() error {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", c.Log.Format)
	}
	return nil
}

func (c *Config) validateSinks() error {
	for _, sink := range c.Reporting.Sinks {
		switch strings.ToLower(strings.TrimSpace(sink)) {
		case SinkHTTP:
			if c.Reporting.Endpoint == "" {
				return errors.New("reporting.endpoint is required when the http sink is enabled")
			}
		case SinkNATS:
			if !strings.HasPrefix(c.NATS.URL, "nats://") {
				return errors.New("nats.url must use the nats:// scheme when the nats sink is enabled")
			}
		case SinkPostgres:
			if err := c.Database.Validate(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("reporting.sinks: unknown sink %q", sink)
		}
	}
	return nil
}

// Validate checks the fields needed to open a connection.
func (d DatabaseConfig) Validate() error {
	if d.User == "" {
		return errors.New("database.user is required")
	}
	if d.Name == "" {
		return errors.New("database.name is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}
	return nil
}
