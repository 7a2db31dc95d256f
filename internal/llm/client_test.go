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
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeService scripts GenerateContent results per call and records every call.
type fakeService struct {
	mu        sync.Mutex
	results   []result
	models    []ModelInfo
	listErr   error
	calls     []string
	listCalls int
}

type result struct {
	text string
	err  error
}

func (f *fakeService) GenerateContent(_ context.Context, model, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, model)
	if len(f.results) == 0 {
		return "", errors.New("unexpected call")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.text, r.err
}

func (f *fakeService) ListModels(_ context.Context) ([]ModelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	return f.models, f.listErr
}

var (
	errNotFound    = &StatusError{StatusCode: http.StatusNotFound, Message: "models/gemini-1.5-flash-latest is not found for API version v1"}
	errRateLimited = &StatusError{StatusCode: http.StatusTooManyRequests, Message: "Resource has been exhausted"}
	errServer      = &StatusError{StatusCode: http.StatusInternalServerError, Message: "internal error"}
)

func discoverableModels() []ModelInfo {
	return []ModelInfo{
		{Name: "models/embedding-001", SupportedActions: []string{"embedContent"}},
		{Name: "models/gemini-1.5-pro", SupportedActions: []string{GenerateContentAction}},
		{Name: "models/gemini-1.5-flash-002", SupportedActions: []string{"countTokens", GenerateContentAction}},
	}
}

func newTestClient(service Service, backoff time.Duration) *Client {
	return NewClient(service, Options{
		Model:            "gemini-1.5-flash-latest",
		RateLimitBackoff: backoff,
		MaxAttempts:      2,
	}, zap.NewNop())
}

func TestGenerate_Success(t *testing.T) {
	service := &fakeService{results: []result{{text: "Hello from the model"}}}
	client := newTestClient(service, time.Millisecond)

	answer, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, Answer{Text: "Hello from the model", Model: "gemini-1.5-flash-latest"}, answer)
	assert.Equal(t, []string{"gemini-1.5-flash-latest"}, service.calls)
	assert.Zero(t, service.listCalls)
}

func TestGenerate_EmptyTextIsValid(t *testing.T) {
	service := &fakeService{results: []result{{text: ""}}}

	answer, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "", answer.Text)
}

func TestGenerate_RateLimitedTwice(t *testing.T) {
	service := &fakeService{results: []result{{err: errRateLimited}, {err: errRateLimited}, {text: "never"}}}
	client := newTestClient(service, 20*time.Millisecond)

	start := time.Now()
	_, err := client.Generate(context.Background(), "prompt")
	elapsed := time.Since(start)

	require.Error(t, err)
	var modelErr *ModelError
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "Resource has been exhausted", modelErr.Message)
	assert.Len(t, service.calls, 2)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestGenerate_RateLimitedThenSuccess(t *testing.T) {
	service := &fakeService{results: []result{{err: errRateLimited}, {text: "second time lucky"}}}

	answer, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", answer.Text)
	assert.Len(t, service.calls, 2)
}

func TestGenerate_RateLimitByMessage(t *testing.T) {
	quota := &StatusError{StatusCode: http.StatusBadRequest, Message: "Quota exceeded for quota metric"}
	service := &fakeService{results: []result{{err: quota}, {text: "ok"}}}

	answer, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Text)
	assert.Len(t, service.calls, 2)
}

func TestGenerate_NotFoundDiscoversOnce(t *testing.T) {
	service := &fakeService{
		results: []result{{err: errNotFound}, {text: "answer from discovered model"}},
		models:  discoverableModels(),
	}

	answer, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, 1, service.listCalls)
	assert.Equal(t, []string{"gemini-1.5-flash-latest", "gemini-1.5-flash-002"}, service.calls)
	assert.Equal(t, Answer{Text: "answer from discovered model", Model: "gemini-1.5-flash-002"}, answer)
}

func TestGenerate_NotFoundDiscoveryFails(t *testing.T) {
	service := &fakeService{
		results: []result{{err: errNotFound}},
		listErr: &StatusError{StatusCode: http.StatusForbidden, Message: "API key not valid"},
	}

	_, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")

	var modelErr *ModelError
	require.True(t, errors.As(err, &modelErr))
	assert.Contains(t, modelErr.Message, "API key not valid")
	assert.Equal(t, 1, service.listCalls)
	assert.Len(t, service.calls, 1)
}

func TestGenerate_NotFoundNoCapableModel(t *testing.T) {
	service := &fakeService{
		results: []result{{err: errNotFound}},
		models:  []ModelInfo{{Name: "models/embedding-001", SupportedActions: []string{"embedContent"}}},
	}

	_, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCapableModel))
	assert.Len(t, service.calls, 1)
}

func TestGenerate_NotFoundTwice(t *testing.T) {
	service := &fakeService{
		results: []result{{err: errNotFound}, {err: &StatusError{StatusCode: http.StatusNotFound, Message: "still missing"}}},
		models:  discoverableModels(),
	}

	_, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")

	var modelErr *ModelError
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "still missing", modelErr.Message)
	assert.Equal(t, 1, service.listCalls)
	assert.Len(t, service.calls, 2)
}

func TestGenerate_RateLimitOnDiscoveredModel(t *testing.T) {
	service := &fakeService{
		results: []result{
			{err: errNotFound},
			{err: errRateLimited},
			{err: errNotFound},
			{text: "recovered"},
		},
		models: discoverableModels(),
	}

	answer, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, "recovered", answer.Text)
	assert.Equal(t, "gemini-1.5-flash-002", answer.Model)
	assert.Equal(t, 2, service.listCalls)
	assert.Len(t, service.calls, 4)
}

func TestGenerate_OtherErrorNotRetried(t *testing.T) {
	service := &fakeService{results: []result{{err: errServer}, {text: "never"}}, models: discoverableModels()}

	_, err := newTestClient(service, time.Millisecond).Generate(context.Background(), "prompt")

	var modelErr *ModelError
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "internal error", modelErr.Error())
	assert.Equal(t, "gemini-1.5-flash-latest", modelErr.Model)
	assert.True(t, errors.Is(err, errServer))
	assert.Len(t, service.calls, 1)
	assert.Zero(t, service.listCalls)
}

func TestGenerate_CancelledDuringBackoff(t *testing.T) {
	service := &fakeService{results: []result{{err: errRateLimited}, {text: "never"}}}
	client := newTestClient(service, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, "prompt")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, service.calls, 1)
}

func TestGenerate_LogsDiscovery(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	service := &fakeService{
		results: []result{{err: errNotFound}, {text: "ok"}},
		models:  discoverableModels(),
	}
	client := NewClient(service, Options{Model: "models/gemini-1.5-flash-latest"}, zap.New(core))

	_, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("Model not found, discovering alternatives").Len())
	assert.Equal(t, 1, logs.FilterMessage("Using discovered model").Len())
	assert.Equal(t, "gemini-1.5-flash-latest", client.Model())
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(&fakeService{}, Options{Model: "m"}, nil)

	assert.Equal(t, DefaultModelPriority, client.priority)
	assert.Equal(t, 2, client.maxAttempts)
	assert.Equal(t, 1500*time.Millisecond, client.backoff)
}

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name     string
		models   []ModelInfo
		priority []string
		expected string
		found    bool
	}{
		{
			name:     "priority wins over service order",
			models:   discoverableModels(),
			priority: DefaultModelPriority,
			expected: "gemini-1.5-flash-002",
			found:    true,
		},
		{
			name: "first capable when no priority match",
			models: []ModelInfo{
				{Name: "models/embedding-001", SupportedActions: []string{"embedContent"}},
				{Name: "models/gemini-2.0-flash", SupportedActions: []string{GenerateContentAction}},
				{Name: "models/gemini-2.0-pro", SupportedActions: []string{GenerateContentAction}},
			},
			priority: DefaultModelPriority,
			expected: "gemini-2.0-flash",
			found:    true,
		},
		{
			name:     "priority entries with prefix",
			models:   discoverableModels(),
			priority: []string{"models/gemini-1.5-pro"},
			expected: "gemini-1.5-pro",
			found:    true,
		},
		{
			name:   "capability required even for priority names",
			models: []ModelInfo{{Name: "gemini-1.5-flash-002"}},
			found:  false,
		},
		{
			name:  "no models",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, ok := SelectModel(tt.models, tt.priority)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, model)
		})
	}
}

func TestNormalizeModelName(t *testing.T) {
	assert.Equal(t, "gemini-1.5-pro", NormalizeModelName("models/gemini-1.5-pro"))
	assert.Equal(t, "gemini-1.5-pro", NormalizeModelName(" gemini-1.5-pro "))
	assert.Equal(t, "gpt-4o", NormalizeModelName("gpt-4o"))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFound(errNotFound))
	assert.True(t, IsNotFound(&ModelError{Err: errNotFound}))
	assert.False(t, IsNotFound(errRateLimited))

	assert.True(t, IsRateLimited(errRateLimited))
	assert.True(t, IsRateLimited(errors.New("429 Too Many Requests")))
	assert.True(t, IsRateLimited(errors.New("You exceeded your current QUOTA")))
	assert.True(t, IsRateLimited(errors.New("rate limit reached")))
	assert.False(t, IsRateLimited(errServer))
	assert.False(t, IsRateLimited(nil))

	assert.Equal(t, "Not Found", (&StatusError{StatusCode: http.StatusNotFound}).Error())
	assert.Equal(t, "model service error", (&StatusError{}).Error())
}
