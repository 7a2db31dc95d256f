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

package llm

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/your-org/portfolio-assistant/internal/resilience"
)

// rateLimitPattern matches provider messages that signal throttling even
// when no 429 status is attached.
var rateLimitPattern = regexp.MustCompile(`(?i)too many requests|quota|rate limit`)

// StatusError is a failure reported by the generative language service,
// normalised across providers.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "model service error"
}

// ModelError is returned by Client.Generate when no answer could be produced.
// Message carries the upstream reason and is safe to show to callers.
type ModelError struct {
	Message string
	Model   string
	Err     error
}

func (e *ModelError) Error() string {
	return e.Message
}

// Unwrap returns the underlying failure
func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the requested model does not exist.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is a 429 or reads like a quota or
// throttling failure.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return rateLimitPattern.MatchString(err.Error())
}

// rootMessage strips retry bookkeeping so callers see the provider's words.
func rootMessage(err error) string {
	var exhausted *resilience.RetryExhaustedError
	for errors.As(err, &exhausted) {
		err = exhausted.Err
	}
	return err.Error()
}
