package retry

import (
	"context"
	"time"

	"github.com/pensieve-app/pensieve/internal/syncerr"
)

// Options controls RetryWithBackoff.
type Options struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// OnRetry, when set, is invoked before each retry (not before the first
	// attempt) with the 1-based retry number.
	OnRetry func(attempt int)

	// Jitter enables randomized backoff delays.
	Jitter bool

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, fails terminally, or retries are exhausted.
// The last result and error are returned as-is: failures travel through the
// operation's own result, never through panics. Only errors classified as
// retryable by syncerr.Retryable trigger another attempt, and context
// cancellation cuts the backoff sleep short.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	sleep := opts.sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var res T
	var err error
	for attempt := 0; ; attempt++ {
		res, err = op(ctx)
		if err == nil || !syncerr.Retryable(err) || attempt >= opts.MaxRetries {
			return res, err
		}
		if serr := sleep(ctx, BackoffDelay(attempt, opts.Jitter)); serr != nil {
			return res, err
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt + 1)
		}
	}
}
