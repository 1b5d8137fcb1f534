// Package retry is the single retry policy wrapped around every blob and
// store call: a bounded number of attempts with exponential backoff.
//
// Errors that will never succeed on a second try (validation, integrity,
// "object does not exist") must be wrapped with Permanent so the loop stops
// immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	// Values below 1 are treated as 1.
	Attempts int
	// InitialInterval is the wait before the second attempt; later waits grow
	// exponentially with jitter up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// DefaultPolicy returns 3 attempts starting at 200ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Do runs op until it succeeds, returns a Permanent error, the attempts are
// used up, or ctx is done. The last error from op is returned; a Permanent
// error is returned unwrapped.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0 // bounded by attempts, not wall time

	retries := 0
	if p.Attempts > 1 {
		retries = p.Attempts - 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, wait)
		}
	}
	return backoff.RetryNotify(func() error { return op(ctx) }, bo, notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
