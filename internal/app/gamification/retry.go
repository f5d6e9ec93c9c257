package gamification

import "time"

// RetryConfig bounds how a mutation is replayed after another process
// stored a newer version of the same profile. Each replay reloads the
// snapshot and applies the operation again.
type RetryConfig struct {
	MaxRetries int           // 0 picks the default; negative disables
	BaseDelay  time.Duration // backoff before the first replay, doubled after
	MaxDelay   time.Duration // cap on backoff delay
}

// DefaultRetryConfig returns the production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   250 * time.Millisecond,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// backoff returns the wait before replay number attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return min(d, c.MaxDelay)
}
