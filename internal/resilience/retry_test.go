package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), DefaultRetryConfig(), func(_ context.Context) (int, error) {
		calls++
		return calls, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, calls)
}

func TestDoVal_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	got, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("catalog overloaded"), 503)
		}
		return "items", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "items", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (struct{}, error) {
		calls++
		return struct{}{}, NewTransientError(errors.New("always down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoVal_PermanentErrorNotRetried(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), fastRetry(5), func(_ context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	done := make(chan error, 1)
	go func() {
		_, err := DoVal(ctx, cfg, func(_ context.Context) (struct{}, error) {
			calls++
			return struct{}{}, NewTransientError(errors.New("timeout"), 504)
		})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("DoVal did not return after cancellation")
	}
}

func TestBackoff_CappedAndGrowing(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2})
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, backoff(5, cfg))
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 250, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
}
