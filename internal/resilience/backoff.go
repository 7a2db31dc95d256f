// Copyright 2024 AI SA Assistant Project
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

// Package resilience provides the bounded retry, timeout and error taxonomy
// helpers used by the portfolio assistant.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the default number of total attempts (first try included)
	DefaultMaxAttempts = 2
	// DefaultRetryDelay is the default fixed delay between attempts
	DefaultRetryDelay = 1500 * time.Millisecond
)

// RetryPolicy holds configuration for one class of retryable failure.
type RetryPolicy struct {
	// Name identifies the policy in logs
	Name string
	// MaxAttempts bounds the total number of calls to the retried function
	MaxAttempts int
	// Delay is the fixed wait between attempts; zero retries immediately
	Delay time.Duration
	// IsRetryable decides whether an error earns another attempt
	IsRetryable func(error) bool
}

// DefaultRetryPolicy returns a two-attempt policy with the default delay.
func DefaultRetryPolicy(name string, isRetryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		Name:        name,
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		IsRetryable: isRetryable,
	}
}

// RetryExhaustedError is returned when every attempt failed with a retryable error.
type RetryExhaustedError struct {
	Policy   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Policy, e.Attempts, e.Err)
}

// Unwrap returns the error from the final attempt
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// RetryFunc is the unit of work passed to Retry. attempt starts at 0.
type RetryFunc func(ctx context.Context, attempt int) error

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy's attempt budget is spent. The wait between attempts respects ctx.
func Retry(ctx context.Context, logger *zap.Logger, policy RetryPolicy, fn RetryFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	isRetryable := policy.IsRetryable
	if isRetryable == nil {
		isRetryable = DefaultRetryOnFunc
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					zap.String("policy", policy.Name),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.String("policy", policy.Name),
				zap.Error(err),
				zap.Int("attempt", attempt+1))
			return err
		}

		if attempt == maxAttempts-1 {
			break
		}

		logger.Warn("Retrying after retryable error",
			zap.String("policy", policy.Name),
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", policy.Delay))

		if err := Sleep(ctx, policy.Delay); err != nil {
			return err
		}
	}

	logger.Error("All retry attempts exhausted",
		zap.String("policy", policy.Name),
		zap.Error(lastErr),
		zap.Int("total_attempts", maxAttempts))

	return &RetryExhaustedError{Policy: policy.Name, Attempts: maxAttempts, Err: lastErr}
}

// DefaultRetryOnFunc retries everything except context cancellation.
func DefaultRetryOnFunc(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
