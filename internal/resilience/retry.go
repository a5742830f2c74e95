package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behaviour with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// 1 disables retries. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps any single delay. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction randomises each delay by ±fraction. Default: 0.25.
	JitterFraction float64

	// ShouldRetry overrides the transient-error check. Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the retry policy used for catalog and asset
// requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// DoVal runs fn until it succeeds or returns an error that should not be
// retried, stopping early after MaxAttempts or when ctx is done. The value of
// the successful attempt is returned; on failure the last error is returned.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	d := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = d.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = d.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = d.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	return time.Duration(math.Max(delay, 0))
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying request",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
