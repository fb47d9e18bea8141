// Package retry runs an operation under a bounded exponential backoff
// schedule. The schedule comes from cenkalti/backoff; the decision of what
// is retryable is made per error so marketplace calls and warehouse writes
// can share one policy type.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

// Decision tells Do what to do with a failed attempt.
type Decision struct {
	Retry bool
	// MinDelay is a lower bound for the next wait, e.g. a server Retry-After.
	MinDelay time.Duration
}

// Classifier inspects an attempt error.
type Classifier func(err error) Decision

// Policy is a retry schedule: at most MaxAttempts calls, waiting BaseDelay,
// then doubling up to MaxDelay, each wait randomized by Jitter (0..1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	// Classify decides which errors are retried. Defaults to ClassifyAPI.
	Classify Classifier
	// Sleep waits between attempts. Tests replace it with a fake clock.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, if set, observes every scheduled retry.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns the policy used for marketplace calls when nothing is
// configured.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Jitter:      0.2,
	}
}

// Once returns a policy that retries any non-context error a single time.
// Warehouse writes use it to ride out transient lock contention.
func Once(delay time.Duration) Policy {
	return Policy{
		MaxAttempts: 2,
		BaseDelay:   delay,
		MaxDelay:    delay,
		Classify:    ClassifyAny,
	}
}

// ExhaustedError wraps the last error once the attempt budget is spent. It
// counts as a transient failure whatever the last error was, so a run that
// kept hitting 429 surfaces the same way as one that kept hitting 503.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is makes ExhaustedError match domain.ErrTransient.
func (e *ExhaustedError) Is(target error) bool { return target == domain.ErrTransient }

// Do calls op until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = ClassifyAPI
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	schedule := p.schedule()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		d := classify(err)
		if !d.Retry {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		if d.MinDelay > delay {
			delay = d.MinDelay
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry: interrupted after attempt %d: %w", attempt, errors.Join(err, lastErr))
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func (p Policy) schedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ClassifyAPI retries transient failures and rate limiting and stops on auth
// and validation errors. Unknown errors are treated as transient; context
// errors are never retried.
func ClassifyAPI(err error) Decision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) && !isAPIError(err) {
		return Decision{}
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case domain.KindTransient:
			return Decision{Retry: true}
		case domain.KindRateLimit:
			return Decision{Retry: true, MinDelay: apiErr.RetryAfter}
		default:
			return Decision{}
		}
	}
	if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrValidation) {
		return Decision{}
	}
	return Decision{Retry: true}
}

// ClassifyAny retries everything except context cancellation.
func ClassifyAny(err error) Decision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Decision{}
	}
	return Decision{Retry: true}
}

func isAPIError(err error) bool {
	var apiErr *domain.APIError
	return errors.As(err, &apiErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
