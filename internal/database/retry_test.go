package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableDBOperation(t *testing.T) {
	t.Run("succeeds after lock contention", func(t *testing.T) {
		calls := 0
		err := retryableDBOperationNoReturn(context.Background(), func() error {
			calls++
			if calls < 2 {
				return errors.New("database is locked")
			}
			return nil
		}, "test")
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("non-retryable fails fast", func(t *testing.T) {
		calls := 0
		err := retryableDBOperationNoReturn(context.Background(), func() error {
			calls++
			return errors.New("UNIQUE constraint failed")
		}, "test")
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := retryableDBOperationNoReturn(ctx, func() error { return nil }, "test")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryableDBError(t *testing.T) {
	assert.False(t, isRetryableDBError(nil))
	assert.False(t, isRetryableDBError(context.DeadlineExceeded))
	assert.True(t, isRetryableDBError(errors.New("database table is locked")))
	assert.True(t, isRetryableDBError(errors.New("disk I/O error")))
	assert.False(t, isRetryableDBError(errors.New("syntax error")))
}
