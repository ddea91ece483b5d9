package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"swimnotify/internal/models"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	}
}

func TestFromModel(t *testing.T) {
	c := FromModel(models.RetryConfig{InitialBackoffMs: 200, MaxAttempts: 7})
	assert.Equal(t, 200*time.Millisecond, c.InitialDelay)
	assert.Equal(t, time.Minute, c.MaxDelay)
	assert.Equal(t, 7, c.MaxAttempts)
}

func TestRetry_SucceedsEventually(t *testing.T) {
	calls := 0
	err := NewBackoff(fastConfig()).Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := NewBackoff(fastConfig()).Retry(context.Background(), func() error {
		calls++
		return errors.New("still down")
	})
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestRetryWithPredicate_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad credentials")
	calls := 0
	err := NewBackoff(fastConfig()).RetryWithPredicate(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewBackoff(fastConfig()).Retry(ctx, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	b := NewBackoff(Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2, MaxAttempts: 10})

	assert.Equal(t, 10*time.Millisecond, b.Delay(1))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2))
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
	assert.Equal(t, 50*time.Millisecond, b.Delay(4))
	assert.Equal(t, 50*time.Millisecond, b.Delay(20))
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	b := NewBackoff(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 5, Jitter: true})

	for i := 0; i < 100; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestNewBackoff_ClampsConfig(t *testing.T) {
	calls := 0
	_ = NewBackoff(Config{}).Retry(context.Background(), func() error {
		calls++
		return errors.New("x")
	})
	assert.Equal(t, 1, calls)
}
