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

package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/portfolio-assistant/internal/content"
	"github.com/your-org/portfolio-assistant/internal/fallback"
	"github.com/your-org/portfolio-assistant/internal/llm"
	"github.com/your-org/portfolio-assistant/internal/prompt"
	"github.com/your-org/portfolio-assistant/internal/resilience"
	"github.com/your-org/portfolio-assistant/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGenerator struct {
	mu      sync.Mutex
	model   string
	answer  llm.Answer
	err     error
	block   bool
	// stuck ignores the context and waits for the channel to close
	stuck   chan struct{}
	panics  any
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (llm.Answer, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.panics != nil {
		panic(f.panics)
	}
	if f.stuck != nil {
		<-f.stuck
		return llm.Answer{Text: "too late", Model: f.model}, nil
	}
	if f.block {
		<-ctx.Done()
		return llm.Answer{}, ctx.Err()
	}
	return f.answer, f.err
}

func (f *fakeGenerator) Model() string {
	return f.model
}

func (f *fakeGenerator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// scriptedService is a Generative Language Service that always fails the same way
type scriptedService struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *scriptedService) GenerateContent(_ context.Context, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "", s.err
}

func (s *scriptedService) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return nil, nil
}

func portfolioFixtures() *store.Fixtures {
	return &store.Fixtures{Tables: map[string][]content.Row{
		"projects": {
			{"title": "Alpha", "published": true, "sort_order": 2},
			{"title": "Beta", "sort_order": 1},
			{"title": "Gamma", "published": false},
		},
		"certs": {
			{"name": "CKA", "issuer": "CNCF"},
		},
	}}
}

func newTestService(t *testing.T, fixtures *store.Fixtures, generator Generator, opts Options) *Service {
	t.Helper()
	logger := zaptest.NewLogger(t)

	composer, err := prompt.NewComposer("Vidya", "")
	require.NoError(t, err)

	return NewService(
		content.NewAdapter(store.NewMemoryStore(fixtures), logger),
		composer,
		generator,
		fallback.NewSynthesizer("Vidya", nil),
		NewMetricsCollector(logger, nil),
		opts,
		logger,
	)
}

func TestAnswer_BlankMessage(t *testing.T) {
	generator := &fakeGenerator{model: "gemini-1.5-flash"}
	svc := newTestService(t, portfolioFixtures(), generator, Options{})

	for _, message := range []string{"", "   ", "\n\t"} {
		_, err := svc.Answer(context.Background(), message)
		require.Error(t, err)

		var serviceErr *resilience.ServiceError
		require.True(t, resilience.AsServiceError(err, &serviceErr))
		assert.Equal(t, resilience.ErrorCodeBadRequest, serviceErr.Code)
		assert.Equal(t, http.StatusBadRequest, resilience.StatusCode(err))
		assert.Equal(t, MessageRequired, serviceErr.Message)
	}

	assert.Empty(t, generator.calls(), "blank messages must not reach the model")
	assert.Equal(t, int64(3), svc.Metrics().Snapshot().ByOutcome[OutcomeBadRequest])
}

func TestAnswer_ModelSuccess(t *testing.T) {
	generator := &fakeGenerator{
		model:  "gemini-1.5-flash",
		answer: llm.Answer{Text: "Vidya built Alpha and Beta.", Model: "gemini-1.5-flash"},
	}
	svc := newTestService(t, portfolioFixtures(), generator, Options{})

	result, err := svc.Answer(context.Background(), "What projects have you built?")
	require.NoError(t, err)

	assert.Equal(t, "Vidya built Alpha and Beta.", result.Response)
	assert.Equal(t, "gemini-1.5-flash", result.Model)
	assert.False(t, result.Fallback)

	prompts := generator.calls()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], prompt.ContextLabel)
	assert.Contains(t, prompts[0], `"title":"Beta"`)
	assert.NotContains(t, prompts[0], "Gamma")
	assert.Contains(t, prompts[0], prompt.QuestionLabel+"What projects have you built?")
	assert.Less(t, strings.Index(prompts[0], "Beta"), strings.Index(prompts[0], "Alpha"), "rows follow sort_order")
}

func TestAnswer_NoModelUsesSynthesizer(t *testing.T) {
	svc := newTestService(t, portfolioFixtures(), nil, Options{})
	assert.False(t, svc.ModelEnabled())

	result, err := svc.Answer(context.Background(), "What projects have you built?")
	require.NoError(t, err)

	assert.True(t, result.Fallback)
	assert.Empty(t, result.Model)
	assert.Equal(t, "**Projects**:\n- Beta\n- Alpha", result.Response)
}

func TestAnswer_ModelErrorCarriesFallback(t *testing.T) {
	generator := &fakeGenerator{
		model: "gemini-1.5-flash",
		err:   &llm.ModelError{Message: "upstream exploded", Model: "gemini-1.5-flash", Err: errors.New("boom")},
	}
	svc := newTestService(t, portfolioFixtures(), generator, Options{})

	_, err := svc.Answer(context.Background(), "Do you have any certifications?")
	require.Error(t, err)

	var fallbackErr *FallbackError
	require.ErrorAs(t, err, &fallbackErr)
	assert.Equal(t, "upstream exploded", fallbackErr.Error())
	assert.Equal(t, "**Certifications**:\n- CKA - CNCF", fallbackErr.Fallback)

	var modelErr *llm.ModelError
	assert.ErrorAs(t, err, &modelErr)
	assert.Equal(t, int64(1), svc.Metrics().Snapshot().ByOutcome[OutcomeModelError])
}

func TestAnswer_RateLimitedTwice(t *testing.T) {
	service := &scriptedService{err: &llm.StatusError{StatusCode: http.StatusTooManyRequests, Message: "Too Many Requests"}}
	client := llm.NewClient(service, llm.Options{
		Model:            "gemini-1.5-flash",
		RateLimitBackoff: 10 * time.Millisecond,
		MaxAttempts:      2,
	}, zaptest.NewLogger(t))
	svc := newTestService(t, portfolioFixtures(), client, Options{})

	_, err := svc.Answer(context.Background(), "What projects have you built?")

	var fallbackErr *FallbackError
	require.ErrorAs(t, err, &fallbackErr)
	assert.Contains(t, fallbackErr.Error(), "Too Many Requests")
	assert.Contains(t, fallbackErr.Fallback, "**Projects**:")
	assert.Equal(t, 2, service.calls)
}

func TestAnswer_OtherErrorPassesThrough(t *testing.T) {
	cause := errors.New("unexpected")
	generator := &fakeGenerator{model: "m", err: cause}
	svc := newTestService(t, portfolioFixtures(), generator, Options{})

	_, err := svc.Answer(context.Background(), "hello")

	assert.ErrorIs(t, err, cause)
	var fallbackErr *FallbackError
	assert.False(t, errors.As(err, &fallbackErr))
	assert.Equal(t, int64(1), svc.Metrics().Snapshot().ByOutcome[OutcomeError])
}

func TestAnswer_EmptyStoreSummary(t *testing.T) {
	svc := newTestService(t, nil, nil, Options{})

	result, err := svc.Answer(context.Background(), "What projects have you built?")
	require.NoError(t, err)

	assert.Equal(t, "**Vidya's Assistant**: 0 project(s), 0 experience item(s), 0 certification(s), "+
		"0 publication(s), 0 skill(s). Ask about role fit (AI/ML, Full-Stack, Cloud/DevOps, Data/SQL), "+
		"or request summaries and evidence.", result.Response)
}

func TestAnswer_RequestDeadline(t *testing.T) {
	generator := &fakeGenerator{model: "m", block: true}
	svc := newTestService(t, portfolioFixtures(), generator, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := svc.Answer(context.Background(), "hello")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	var fallbackErr *FallbackError
	require.ErrorAs(t, err, &fallbackErr)
	assert.Contains(t, fallbackErr.Fallback, "Vidya's Assistant")
	assert.Equal(t, int64(1), svc.Metrics().Snapshot().ByOutcome[OutcomeModelError])
}

func TestAnswer_ModelIgnoringDeadlineStillFallsBack(t *testing.T) {
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	generator := &fakeGenerator{model: "m", stuck: stuck}
	svc := newTestService(t, portfolioFixtures(), generator, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := svc.Answer(context.Background(), "Any certifications?")
	assert.Less(t, time.Since(start), 2*time.Second)

	var fallbackErr *FallbackError
	require.ErrorAs(t, err, &fallbackErr)
	assert.Equal(t, "Request timed out", fallbackErr.Error())
	assert.Equal(t, "**Certifications**:\n- CKA - CNCF", fallbackErr.Fallback)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnswer_GeneratorPanicIsInternalError(t *testing.T) {
	generator := &fakeGenerator{model: "m", panics: "nil map write"}
	svc := newTestService(t, portfolioFixtures(), generator, Options{})

	_, err := svc.Answer(context.Background(), "hello")

	var serviceErr *resilience.ServiceError
	require.True(t, resilience.AsServiceError(err, &serviceErr))
	assert.Equal(t, resilience.ErrorCodeInternalError, serviceErr.Code)
	assert.Equal(t, int64(1), svc.Metrics().Snapshot().ByOutcome[OutcomeError])
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, Options{}, nil)

	assert.Equal(t, content.DefaultCategories(), svc.opts.Categories)
	assert.Equal(t, content.DefaultFetchLimit, svc.opts.FetchLimit)
	assert.Equal(t, content.DefaultMaxPerCategory, svc.opts.MaxPerCategory)
	assert.Equal(t, 30*time.Second, svc.opts.Timeout)
	assert.NotNil(t, svc.Metrics())
}
