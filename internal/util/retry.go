package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// BaseBackoff is the delay before the first retry. It doubles on every attempt.
	BaseBackoff = time.Second
	// MaxBackoff caps any single wait, including server supplied hints.
	MaxBackoff  = 30 * time.Second
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. RetryWithBackoff returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type delayedError struct {
	err   error
	delay time.Duration
}

func (e *delayedError) Error() string { return e.err.Error() }
func (e *delayedError) Unwrap() error { return e.err }

// RetryAfter marks err as retryable after d instead of the exponential delay,
// for servers that say when to come back.
func RetryAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayedError{err: err, delay: d}
}

// backoffFor picks the wait before the attempt following attempt.
func backoffFor(err error, attempt int) time.Duration {
	wait := time.Duration(1<<attempt) * BaseBackoff
	var d *delayedError
	if errors.As(err, &d) && d.delay > 0 {
		wait = d.delay
	}
	if MaxBackoff > 0 && wait > MaxBackoff {
		wait = MaxBackoff
	}
	return wait
}

// RetryWithBackoff calls fn up to maxRetries+1 times with exponential backoff.
// fn receives the 0-indexed attempt number. Errors marked Permanent stop the
// loop at once; a cancelled context returns the context error.
func RetryWithBackoff(ctx context.Context, maxRetries int, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		timer := time.NewTimer(backoffFor(lastErr, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
