package service

import (
	"bytes"
	"context"
	"edurecovery/internal/port/outbound"
	"encoding/json"
	"fmt"
	"strings"
)

// APIBreakerName is the breaker guarding APIWithRecovery unless options name another.
const APIBreakerName = "api"

// APIWithRecovery performs req through requester with retries, guarded by the "api"
// breaker, and decodes the JSON response body into T. An empty body yields the zero
// value of T.
func APIWithRecovery[T any](
	ctx context.Context,
	rc *RecoveryContext,
	requester outbound.APIRequester,
	req outbound.APIRequest,
	opts RetryOptions[T],
) RecoveryResult[T] {
	if req.Method == "" {
		req.Method = "GET"
	}
	if opts.OperationName == "" {
		opts.OperationName = fmt.Sprintf("api:%s %s", strings.ToUpper(req.Method), req.URL)
	}
	if opts.Breaker == nil {
		breaker, err := rc.Breakers.Get(APIBreakerName)
		if err == nil {
			opts.Breaker = breaker
		}
	}

	return WithRetry(ctx, rc.Engine, func(ctx context.Context) (T, error) {
		var out T

		body, err := requester.Do(ctx, req)
		if err != nil {
			return out, err
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return out, rc.Classifier.NewServiceError(
				"decode response from "+req.URL+": "+err.Error(), false,
				WithCause(err), WithRetryable(false),
			)
		}
		return out, nil
	}, opts)
}
