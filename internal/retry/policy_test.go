package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mpimport/internal/domain"
)

type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func testPolicy(clock *fakeClock) Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    300 * time.Millisecond,
		Sleep:       clock.Sleep,
	}
}

func TestPolicy_RetriesTransientWithBackoff(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return &domain.APIError{Kind: domain.KindTransient, Status: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, clock.slept)
}

func TestPolicy_Exhausted(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), func(context.Context) error {
		calls++
		return &domain.APIError{Kind: domain.KindTransient, Status: 502}
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Len(t, clock.slept, 3)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestPolicy_RateLimitHonoursRetryAfter(t *testing.T) {
	clock := &fakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &domain.APIError{Kind: domain.KindRateLimit, Status: 429, RetryAfter: 5 * time.Second}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.slept)
}

func TestPolicy_RateLimitExhaustionIsTransient(t *testing.T) {
	clock := &fakeClock{}
	err := testPolicy(clock).Do(context.Background(), func(context.Context) error {
		return &domain.APIError{Kind: domain.KindRateLimit, Status: 429}
	})

	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPolicy_NoRetryOnAuthOrValidation(t *testing.T) {
	for _, kind := range []domain.APIErrorKind{domain.KindAuth, domain.KindValidation} {
		t.Run(kind.String(), func(t *testing.T) {
			clock := &fakeClock{}
			calls := 0
			err := testPolicy(clock).Do(context.Background(), func(context.Context) error {
				calls++
				return &domain.APIError{Kind: kind, Status: 401}
			})

			require.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, clock.slept)

			var exhausted *ExhaustedError
			assert.False(t, errors.As(err, &exhausted))
		})
	}
}

func TestPolicy_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{}
	calls := 0
	err := testPolicy(clock).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return &domain.APIError{Kind: domain.KindTransient}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnce(t *testing.T) {
	clock := &fakeClock{}
	p := Once(50 * time.Millisecond)
	p.Sleep = clock.Sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("deadlock detected")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, clock.slept)
}

func TestPolicy_OnRetry(t *testing.T) {
	clock := &fakeClock{}
	p := testPolicy(clock)
	var seen []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { seen = append(seen, attempt) }

	_ = p.Do(context.Background(), func(context.Context) error {
		return &domain.APIError{Kind: domain.KindTransient}
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
}
