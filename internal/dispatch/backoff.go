/**
 * @description
 * Retry delay computation shared by the submission engine and the receipt
 * poller: exponential growth with a random jitter component so concurrent
 * workers do not synchronize their retry storms. Attempt counts are bounded
 * by configuration; the delay magnitude itself is not capped.
 *
 * @dependencies
 * - context, math/rand, time: Standard Go libraries.
 */

package dispatch

import (
	"context"
	"math/rand"
	"time"
)

// backoffDelay returns base * 2^(attempt-1) plus 100-800ms of jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << uint(attempt-1)
	jitter := time.Duration(100+rand.Intn(700)) * time.Millisecond
	return delay + jitter
}

// sleep waits for the duration or until the run is cancelled, whichever
// comes first. Every retry sleep in the pipeline goes through here so
// cancellation is observed within one backoff interval.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
