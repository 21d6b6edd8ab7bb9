package arbiter

import (
	"fmt"
	"time"
)

const (
	DEFAULT_MAX_RETRIES            = 3
	DEFAULT_RETRY_INITIAL_INTERVAL = 10 * time.Millisecond
	DEFAULT_RETRY_MAX_INTERVAL     = 100 * time.Millisecond
	DEFAULT_IDEMPOTENCY_WINDOW     = 2 * time.Minute
	DEFAULT_IDEMPOTENCY_CACHE_SIZE = 100_000
	DEFAULT_TIMEOUT                = 5 * time.Second
)

// Config holds the claim arbitration configuration
type Config struct {
	// MaxRetries is how many times a lost compare-and-swap is retried
	MaxRetries int `mapstructure:"max_retries"`
	// RetryInitialInterval and RetryMaxInterval bound the jittered backoff between retries
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	// IdempotencyWindow is how long an outcome is replayed for a repeated idempotency key
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
	// IdempotencyCacheSize bounds the number of remembered outcomes
	IdempotencyCacheSize int `mapstructure:"idempotency_cache_size"`
	// Timeout bounds one arbitration. Callers going away do not cut it short.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the default arbitration configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:           DEFAULT_MAX_RETRIES,
		RetryInitialInterval: DEFAULT_RETRY_INITIAL_INTERVAL,
		RetryMaxInterval:     DEFAULT_RETRY_MAX_INTERVAL,
		IdempotencyWindow:    DEFAULT_IDEMPOTENCY_WINDOW,
		IdempotencyCacheSize: DEFAULT_IDEMPOTENCY_CACHE_SIZE,
		Timeout:              DEFAULT_TIMEOUT,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetryInitialInterval <= 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf("retry intervals must satisfy 0 < initial (%s) <= max (%s)", c.RetryInitialInterval, c.RetryMaxInterval)
	}
	if c.IdempotencyWindow <= 0 {
		return fmt.Errorf("idempotency_window must be positive, got %s", c.IdempotencyWindow)
	}
	if c.IdempotencyCacheSize <= 0 {
		return fmt.Errorf("idempotency_cache_size must be positive, got %d", c.IdempotencyCacheSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
