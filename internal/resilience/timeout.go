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

package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeoutSeconds is the default overall request deadline in seconds
	DefaultTimeoutSeconds = 30
)

type timeoutResult[T any] struct {
	value T
	err   error
}

// CallWithTimeout runs fn under a deadline. If fn does not return before the
// deadline, a TIMEOUT ServiceError is returned without waiting for fn; fn still
// sees a cancelled context and its result is discarded. A panic in fn is
// returned as an INTERNAL_ERROR ServiceError.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds * time.Second
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan timeoutResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered from panic",
					zap.Any("panic", r),
					zap.Stack("stack"))
				done <- timeoutResult[T]{err: NewInternalError("Internal error", fmt.Errorf("panic: %v", r))}
			}
		}()
		value, err := fn(timeoutCtx)
		done <- timeoutResult[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && deadlineHit(ctx, timeoutCtx) {
			return res.value, timedOut(logger, timeout, timeoutCtx.Err())
		}
		return res.value, res.err
	case <-timeoutCtx.Done():
		var zero T
		if ctx.Err() != nil {
			// caller went away; not our deadline
			return zero, ctx.Err()
		}
		return zero, timedOut(logger, timeout, timeoutCtx.Err())
	}
}

// deadlineHit reports whether the derived deadline, not the caller, ended the call.
func deadlineHit(parent, derived context.Context) bool {
	return parent.Err() == nil && errors.Is(derived.Err(), context.DeadlineExceeded)
}

func timedOut(logger *zap.Logger, timeout time.Duration, cause error) error {
	logger.Warn("Operation timed out",
		zap.Duration("timeout", timeout),
		zap.Error(cause))
	return NewTimeoutError("Request timed out", cause)
}
