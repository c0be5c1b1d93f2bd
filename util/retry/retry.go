// SPDX-License-Identifier: MPL-2.0

// Package retry polls a predicate at a fixed interval with a bounded number
// of attempts.
package retry

import (
	"context"
	"errors"
	"time"
)

var ErrExhausted = errors.New("retry attempts exhausted")

// Predicate reports whether the awaited condition holds. A non-nil error
// stops polling immediately.
type Predicate func(ctx context.Context, attempt int) (bool, error)

// Poll evaluates fn every interval until it returns true, returns an error,
// ctx is done, or attempts evaluations have failed. The first evaluation
// happens after one interval.
func Poll(ctx context.Context, interval time.Duration, attempts int, fn Predicate) error {
	if attempts <= 0 {
		return ErrExhausted
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrExhausted
}
