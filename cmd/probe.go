package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"edurecovery/internal/adapter/outbound/httpclient"
	"edurecovery/internal/application/service"
	"edurecovery/internal/port/outbound"
	"edurecovery/internal/version"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// ErrProbeFailed is returned when the probed endpoint could not be reached after every retry.
var ErrProbeFailed = errors.New("probe failed")

type probeOptions struct {
	Method    string
	Body      string
	Timeout   time.Duration
	Retries   int
	Breaker   string
	Operation string
	Headers   []string
}

func newProbeCmd() *cobra.Command {
	opts := probeOptions{Retries: -1}

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Call a JSON endpoint through the retry pipeline",
		Long: `Call a JSON endpoint with retries, circuit breaking and error classification,
then print the recovery result as JSON.

The command exits non-zero when every attempt failed. Failures are reported to
the sinks listed in reporting.sinks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			factory := NewServiceFactory(GetConfig())
			defer factory.Close()

			rc, err := factory.CreateRecoveryContext(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create recovery context: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), GetConfig().Reporting.ForwardTimeout)
				defer cancel()
				_ = rc.Shutdown(flushCtx)
			}()

			requester := httpclient.NewInstrumentedClient(
				rc.Instrumentation(),
				clockwork.NewRealClock(),
				version.ApplicationName+"-probe/"+version.NewVersionInfo().Version,
			)
			return runProbe(cmd.Context(), cmd.OutOrStdout(), rc, requester, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&opts.Body, "data", "d", "", "JSON request body")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Per-attempt timeout (default 10s)")
	cmd.Flags().IntVar(&opts.Retries, "retries", -1, "Retries after the first attempt (default from retry.max_retries)")
	cmd.Flags().StringVar(&opts.Breaker, "breaker", service.APIBreakerName, "Circuit breaker guarding the call")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "Operation name used in logs and reports")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "Extra request header as 'Name: value'")
	return cmd
}

func runProbe(
	ctx context.Context,
	w io.Writer,
	rc *service.RecoveryContext,
	requester outbound.APIRequester,
	url string,
	opts probeOptions,
) error {
	req := outbound.APIRequest{
		Method:  strings.ToUpper(opts.Method),
		URL:     url,
		Timeout: opts.Timeout,
	}
	if opts.Body != "" {
		if !json.Valid([]byte(opts.Body)) {
			return errors.New("request body is not valid JSON")
		}
		req.Body = json.RawMessage(opts.Body)
	}
	if len(opts.Headers) > 0 {
		req.Headers = make(http.Header, len(opts.Headers))
		for _, header := range opts.Headers {
			name, value, ok := strings.Cut(header, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return fmt.Errorf("invalid header %q, expected 'Name: value'", header)
			}
			req.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}

	retryOpts := service.RetryOptionsFor[json.RawMessage](rc)
	if opts.Retries >= 0 {
		retryOpts.MaxRetries = opts.Retries
	}
	retryOpts.OperationName = opts.Operation
	if opts.Breaker != "" {
		breaker, err := rc.Breakers.Get(opts.Breaker)
		if err != nil {
			return err
		}
		retryOpts.Breaker = breaker
	}

	result := service.APIWithRecovery(ctx, rc, requester, req, retryOpts)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if !result.Success {
		if result.Error != nil {
			return fmt.Errorf("%w: %s", ErrProbeFailed, result.Error.Code())
		}
		return ErrProbeFailed
	}
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newProbeCmd())
}
