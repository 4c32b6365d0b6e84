package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "operation should run exactly three times")
}

func TestDoReturnsLastErrorAfterBudget(t *testing.T) {
	calls := 0
	final := errors.New("still broken")
	err := Do(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return final
	})
	assert.ErrorIs(t, err, final)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestDoNoRetryOnImmediateSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Hour, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, 3, time.Hour, func() error {
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValueReturnsResult(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), 3, time.Millisecond, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}
