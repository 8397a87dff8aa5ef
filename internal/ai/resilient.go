package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/reviewloop/internal/retry"
)

// Resilient wraps a Provider with a per-call timeout, retry with exponential
// backoff, and a bound on concurrent in-flight calls. The concurrency bound
// is shared by every review using the same Resilient instance, which is how
// the process-wide rate budget of the backing API is enforced.
type Resilient struct {
	inner       Provider
	retryConfig retry.Config
	timeout     time.Duration
	calls       *semaphore.Weighted
}

// ResilientConfig configures the Resilient wrapper.
type ResilientConfig struct {
	Timeout            time.Duration // per-call deadline, 0 disables
	MaxRetries         int
	MaxConcurrentCalls int64
}

// NewResilient wraps a provider.
func NewResilient(inner Provider, config ResilientConfig) *Resilient {
	retryConfig := retry.LLMConfig()
	if config.MaxRetries >= 0 {
		retryConfig.MaxRetries = config.MaxRetries
	}

	maxCalls := config.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = 1
	}

	return &Resilient{
		inner:       inner,
		retryConfig: retryConfig,
		timeout:     config.Timeout,
		calls:       semaphore.NewWeighted(maxCalls),
	}
}

// Invoke acquires a concurrency slot, then runs the wrapped call with
// timeout and retries. Timeout expiry surfaces as an error to the caller;
// the caller decides whether that is fatal.
func (r *Resilient) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := r.calls.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("reasoning call canceled while queued: %w", err)
	}
	defer r.calls.Release(1)

	var response string
	result := retry.Do(ctx, r.retryConfig, func() error {
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		out, err := r.inner.Invoke(callCtx, prompt)
		if err != nil {
			return err
		}
		response = out
		return nil
	})

	if !result.Success {
		log.Warn().
			Err(result.LastError).
			Int("attempts", result.Attempts).
			Dur("duration", result.TotalDuration).
			Msg("Reasoning call failed after retries")
		return "", fmt.Errorf("reasoning call failed after %d attempts: %w", result.Attempts, result.LastError)
	}

	return response, nil
}

// Name returns the wrapped provider's name.
func (r *Resilient) Name() string {
	return r.inner.Name()
}
