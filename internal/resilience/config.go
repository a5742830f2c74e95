package resilience

import "time"

// FromRetryConfig builds a RetryConfig from plain config values. Zero or
// negative values keep the defaults.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromCircuitConfig builds a CircuitBreakerConfig from plain config values.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
