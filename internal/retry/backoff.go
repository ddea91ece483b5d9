package retry

import (
	"context"
	"math/rand"
	"time"

	"swimnotify/internal/models"
)

// Config controls exponential backoff
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

func DefaultConfig() Config {
	return Config{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// FromModel builds a Config from the retry block of the app config,
// keeping defaults for unset fields.
func FromModel(rc models.RetryConfig) Config {
	c := DefaultConfig()
	if rc.InitialBackoffMs > 0 {
		c.InitialDelay = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		c.MaxDelay = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.MaxAttempts > 0 {
		c.MaxAttempts = rc.MaxAttempts
	}
	return c
}

type Backoff struct {
	config Config
}

func NewBackoff(config Config) *Backoff {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &Backoff{config: config}
}

// Retry runs op until it succeeds, the attempts run out or ctx ends.
// The last error is returned.
func (b *Backoff) Retry(ctx context.Context, op func() error) error {
	return b.RetryWithPredicate(ctx, op, func(error) bool { return true })
}

// RetryWithPredicate is Retry but stops at the first error isRetryable rejects
func (b *Backoff) RetryWithPredicate(ctx context.Context, op func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == b.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}

	return lastErr
}

// Delay returns the wait after the given failed attempt (1-based)
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.config.Multiplier
		if delay >= float64(b.config.MaxDelay) {
			break
		}
	}

	if b.config.Jitter {
		// +/-25%
		delay += (rand.Float64() - 0.5) * 0.5 * delay
	}

	delay = max(delay, float64(b.config.InitialDelay)/2)
	delay = min(delay, float64(b.config.MaxDelay))
	return time.Duration(delay)
}
