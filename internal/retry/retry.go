// Package retry provides a bounded, fixed-delay retry wrapper for fallible
// steps against the reservation site. The target pages render elements
// asynchronously after postbacks, so almost every DOM interaction in the
// booking flow goes through this.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Policy controls how often and how quickly an operation is redriven.
// The delay is constant: no jitter, no backoff growth.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Default matches the pacing the reservation site tolerates.
var Default = Policy{Attempts: 5, Delay: time.Second}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = Default.Attempts
	}
	if p.Delay < 0 {
		p.Delay = Default.Delay
	}
	return p
}

// Do runs op until it succeeds or the policy is exhausted. The last
// attempt's error is returned unchanged. Each failure is logged with its
// attempt number.
func Do(ctx context.Context, log *zerolog.Logger, name string, p Policy, op func(context.Context) error) error {
	_, err := Value(ctx, log, name, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, log *zerolog.Logger, name string, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if log != nil {
			log.Warn().Str("step", name).Int("attempt", attempt).Err(err).Msg("attempt failed")
		}
		if attempt == p.Attempts {
			break
		}
		if err := Sleep(ctx, p.Delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// Sleep pauses for d unless the context dies first. A non-positive d only
// checks the context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
