package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-app/pensieve/internal/syncerr"
)

func noSleep() (func(ctx context.Context, d time.Duration) error, *[]time.Duration) {
	var slept []time.Duration
	return func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}, &slept
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	sleep, slept := noSleep()
	calls := 0
	res, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}, Options{MaxRetries: 3, sleep: sleep})

	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestDo_RetriesNetworkErrorsUntilSuccess(t *testing.T) {
	sleep, slept := noSleep()
	calls := 0
	var retries []int
	res, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", syncerr.New(syncerr.KindNetwork, "flaky")
		}
		return "ok", nil
	}, Options{
		MaxRetries: 5,
		OnRetry:    func(n int) { retries = append(retries, n) },
		sleep:      sleep,
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *slept)
}

func TestDo_DoesNotRetryValidationErrors(t *testing.T) {
	sleep, _ := noSleep()
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, syncerr.New(syncerr.KindValidation, "rejected")
	}, Options{MaxRetries: 5, sleep: sleep})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
}

func TestDo_ExhaustsRetries_ReturnsLastError(t *testing.T) {
	sleep, _ := noSleep()
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, syncerr.New(syncerr.KindNetwork, "still down")
	}, Options{MaxRetries: 2, sleep: sleep})

	require.Error(t, err)
	// MaxRetries+1 total attempts.
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, syncerr.New(syncerr.KindNetwork, "down")
	}, Options{MaxRetries: 10, sleep: defaultSleep})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
