package notify

import (
	"context"
	"time"
)

// withRetry calls fn until it succeeds, returns an error retryable rejects,
// or maxRetries extra attempts have been made. A zero delay retries at once.
func withRetry(ctx context.Context, maxRetries int, delay time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay *= 2
	}
}
