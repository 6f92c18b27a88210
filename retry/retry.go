// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry runs provider calls under a bounded exponential backoff.
//
// Transient provider errors are retried up to MaxAttempts. Classification and
// generation failures are bounded separately by LogicAttempts, since asking a
// model the same question many times rarely changes its answer. Validation
// errors and dispatch conflicts are never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/triage/core"
)

var (
	// ErrInvalidMaxAttempts indicates a policy with no attempts at all.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")
)

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries for transient failures.
	MaxAttempts int

	// LogicAttempts is the total number of tries for classification and
	// generation failures. Zero means 2.
	LogicAttempts int

	// BaseDelay is the delay before the second attempt. It doubles each retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means uncapped.
	MaxDelay time.Duration

	// CallTimeout bounds each individual attempt. Zero disables it.
	// An attempt that runs out of time is reported as a transient failure.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Operation is a single attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Do runs op until it succeeds, fails permanently, or exhausts its attempts.
// It returns the number of attempts made and the last error.
// If ctx ends between attempts, ctx.Err() is returned.
func (p Policy) Do(ctx context.Context, op Operation) (int, error) {
	if p.MaxAttempts <= 0 {
		return 0, ErrInvalidMaxAttempts
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logicAttempts := p.LogicAttempts
	if logicAttempts <= 0 {
		logicAttempts = 2
	}

	var lastErr error
	logicFailures := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = p.attempt(ctx, op, attempt)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !core.IsRetryable(lastErr) {
			return attempt, lastErr
		}
		if core.IsLogicFailure(lastErr) {
			logicFailures++
			if logicFailures >= logicAttempts {
				return attempt, lastErr
			}
		}
		if attempt == p.MaxAttempts {
			break
		}

		logger.Debug("operation failed, will retry",
			"attempt", attempt,
			"maxAttempts", p.MaxAttempts,
			"error", lastErr)

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return p.MaxAttempts, lastErr
}

func (p Policy) attempt(ctx context.Context, op Operation, attempt int) error {
	if p.CallTimeout <= 0 {
		return op(ctx, attempt)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()

	err := op(callCtx, attempt)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		if !errors.Is(err, core.ErrTransientProvider) {
			err = fmt.Errorf("%w: call timed out after %s: %w", core.ErrTransientProvider, p.CallTimeout, err)
		}
	}
	return err
}

// Backoff returns the delay after the given failed attempt:
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
