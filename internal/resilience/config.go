package resilience

import "time"

// FromRetryConfig converts configuration values to a RetryConfig. Zero values
// keep the defaults.
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

// FromCircuitConfig converts configuration values to a CircuitBreakerConfig.
// A negative threshold disables the breaker.
func FromCircuitConfig(failureThreshold, resetTimeoutMins int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	switch {
	case failureThreshold < 0:
		cfg.FailureThreshold = 0
	case failureThreshold > 0:
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutMins > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutMins) * time.Minute
	}
	return cfg
}
