package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fleetwatch/internal/logging"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), logging.NewDiscard(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	cause := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), logging.NewDiscard(), 2, time.Millisecond, func() error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, calls)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, logging.NewDiscard(), 5, time.Hour, func() error {
		calls++
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
