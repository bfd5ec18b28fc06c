package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "EDURECOVERY"

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "edurecovery",
	Short: "Error recovery and reporting service for the education platform",
	Long: `EduRecovery classifies failures, retries transient ones, trips circuit
breakers around failing backends and forwards error reports.

The service provides:
- An HTTP API exposing breaker, degradation and notification state
- Client error intake with breadcrumb context
- Report forwarding to HTTP, NATS JetStream and PostgreSQL sinks
- A probe command exercising the retry pipeline against any URL`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")
}

func initConfig() {
	v, err := newViper(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}

	// Bind flags to viper
	if err := v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}

	cfg = config.New(v)

	logger, err := logging.NewApplicationLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		return
	}
	slogger.SetGlobalLogger(logger)
}

// newViper returns a viper instance carrying defaults, the config file when one
// exists and EDURECOVERY_ environment overrides. A missing config file is not an error.
func newViper(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return v, err
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "10s")
	v.SetDefault("api.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", "1s")
	v.SetDefault("retry.backoff_multiplier", 2.0)

	// Circuit breaker defaults
	v.SetDefault("circuit_breakers", map[string]any{
		"api":      map[string]any{"failure_threshold": 5, "recovery_timeout": "60s", "success_threshold": 1},
		"calendar": map[string]any{"failure_threshold": 3, "recovery_timeout": "30s", "success_threshold": 1},
		"upload":   map[string]any{"failure_threshold": 2, "recovery_timeout": "120s", "success_threshold": 1},
		"auth":     map[string]any{"failure_threshold": 3, "recovery_timeout": "300s", "success_threshold": 1},
	})

	// Degradation and notification defaults
	v.SetDefault("degradation.max_entries", 512)
	v.SetDefault("notifications.max_notifications", 10)
	v.SetDefault("notifications.auto_dismiss_after", "5s")

	// Reporting defaults
	v.SetDefault("reporting.timeout", "10s")
	v.SetDefault("reporting.forward_timeout", "10s")
	v.SetDefault("reporting.max_breadcrumbs", 50)
	v.SetDefault("reporting.max_reports", 100)
	v.SetDefault("reporting.max_sessions", 1000)
	v.SetDefault("reporting.sinks", []string{})

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream", "ERROR_REPORTS")
	v.SetDefault("nats.subject_prefix", "errors.reports")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "edurecovery")
	v.SetDefault("database.schema", "edurecovery")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_idle_connections", 2)

	// Localization defaults
	v.SetDefault("localization.default_locale", "es-CL")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.service_name", "edurecovery")
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}
