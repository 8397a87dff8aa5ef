package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	result := Do(context.Background(), fastConfig(), func() error { return nil })
	if !result.Success || result.Attempts != 1 {
		t.Errorf("result = %+v, want success on attempt 1", result)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if !result.Success {
		t.Errorf("expected eventual success, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid api key")
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return permanent
	})
	if result.Success {
		t.Error("expected failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for a non-retryable error", calls)
	}
	if !errors.Is(result.LastError, permanent) {
		t.Errorf("LastError = %v, want the original error", result.LastError)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("503 service unavailable")
	})
	if result.Success {
		t.Error("expected failure")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want MaxRetries+1 = 4", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	result := Do(ctx, cfg, func() error { return errors.New("timeout") })
	if result.Success {
		t.Error("expected failure")
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("LastError = %v, want context.Canceled", result.LastError)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Do waited %s after cancellation", elapsed)
	}
}

func TestCalculateDelayGrowth(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0}

	if d := calculateDelay(cfg, 0); d != time.Second {
		t.Errorf("attempt 0 delay = %s, want 1s", d)
	}
	if d := calculateDelay(cfg, 2); d != 4*time.Second {
		t.Errorf("attempt 2 delay = %s, want 4s", d)
	}
}

func TestCalculateDelayCapped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10.0}
	if d := calculateDelay(cfg, 5); d != 5*time.Second {
		t.Errorf("delay = %s, want the 5s cap", d)
	}
}

func TestCalculateDelayJitterBounded(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2.0, Jitter: true}
	for i := 0; i < 50; i++ {
		d := calculateDelay(cfg, 1)
		if d < 1800*time.Millisecond || d > 2200*time.Millisecond {
			t.Fatalf("jittered delay %s outside +-10%% of 2s", d)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []string{
		"connection refused",
		"dial tcp: i/o timeout",
		"429 Too Many Requests",
		"rate limit exceeded",
		"Service Unavailable",
		"unexpected status 502",
	}
	for _, msg := range retryable {
		if !IsRetryable(errors.New(msg)) {
			t.Errorf("IsRetryable(%q) = false, want true", msg)
		}
	}

	permanent := []string{
		"invalid api key",
		"404 not found",
		"malformed request body",
	}
	for _, msg := range permanent {
		if IsRetryable(errors.New(msg)) {
			t.Errorf("IsRetryable(%q) = true, want false", msg)
		}
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
}
