package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/triage/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func transient(msg string) error {
	return fmt.Errorf("%w: %s", core.ErrTransientProvider, msg)
}

func TestDo_Success(t *testing.T) {
	calls := 0
	n, err := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(),
		func(context.Context, int) error {
			calls++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls, "should succeed on first try")
}

func TestDo_TwoTransientFailuresThenSuccess(t *testing.T) {
	calls := 0
	n, err := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}.Do(context.Background(),
		func(_ context.Context, attempt int) error {
			calls++
			assert.Equal(t, calls, attempt)
			if calls <= 2 {
				return transient("rate limited")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	n, err := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}.Do(context.Background(),
		func(context.Context, int) error {
			calls++
			return transient("unavailable")
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientProvider)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls, "should attempt exactly MaxAttempts times")
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"validation", fmt.Errorf("%w: bad input", core.ErrValidation)},
		{"dispatch conflict", core.ErrDispatchConflict},
		{"unclassified error", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			n, err := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}.Do(context.Background(),
				func(context.Context, int) error {
					calls++
					return tt.err
				})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, n)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_LogicFailuresBoundedSeparately(t *testing.T) {
	calls := 0
	n, err := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}.Do(context.Background(),
		func(context.Context, int) error {
			calls++
			return fmt.Errorf("%w: unparseable output", core.ErrGeneration)
		})
	assert.ErrorIs(t, err, core.ErrGeneration)
	assert.Equal(t, 2, n, "logic failures are retried once by default")
	assert.Equal(t, 2, calls)
}

func TestDo_CallTimeoutIsTransient(t *testing.T) {
	calls := 0
	n, err := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, CallTimeout: 20 * time.Millisecond}.Do(
		context.Background(),
		func(ctx context.Context, _ int) error {
			calls++
			if calls == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDo_CallTimeoutExhausted(t *testing.T) {
	_, err := Policy{MaxAttempts: 1, CallTimeout: 10 * time.Millisecond}.Do(context.Background(),
		func(ctx context.Context, _ int) error {
			<-ctx.Done()
			return ctx.Err()
		})
	assert.ErrorIs(t, err, core.ErrTransientProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Policy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond}.Do(ctx,
		func(context.Context, int) error {
			calls++
			if calls == 2 {
				cancel()
			}
			return transient("error")
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2, "should stop when context is canceled")
}

func TestDo_InvalidMaxAttempts(t *testing.T) {
	_, err := Policy{}.Do(context.Background(), func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestBackoff(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(10))

	uncapped := Policy{BaseDelay: 10 * time.Millisecond}
	assert.Equal(t, 80*time.Millisecond, uncapped.Backoff(4))
}
