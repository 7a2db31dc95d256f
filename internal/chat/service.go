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

// Package chat answers visitor questions about the portfolio owner from the
// content store, through the language model when one is configured and
// through the rule-based synthesizer otherwise.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/content"
	"github.com/your-org/portfolio-assistant/internal/fallback"
	"github.com/your-org/portfolio-assistant/internal/llm"
	"github.com/your-org/portfolio-assistant/internal/prompt"
	"github.com/your-org/portfolio-assistant/internal/resilience"
)

// MessageRequired is returned for a missing or blank message
const MessageRequired = "Message is required"

// Generator produces an answer for a composed prompt. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (llm.Answer, error)
	Model() string
}

// Result is a successful answer.
type Result struct {
	Response string
	// Model is empty when the answer came from the synthesizer
	Model    string
	Fallback bool
}

// FallbackError is returned when the model failed. Fallback holds the
// synthesized answer built from the same context.
type FallbackError struct {
	Err      error
	Fallback string
}

func (e *FallbackError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the model failure
func (e *FallbackError) Unwrap() error {
	return e.Err
}

// Options configures a Service
type Options struct {
	Categories     []content.Category
	FetchLimit     int
	MaxPerCategory int
	Timeout        time.Duration
}

// Service runs the fetch, assemble, compose and generate pipeline for one
// question. It holds no per-request state.
type Service struct {
	adapter     *content.Adapter
	composer    *prompt.Composer
	generator   Generator
	synthesizer *fallback.Synthesizer
	metrics     *MetricsCollector
	opts        Options
	logger      *zap.Logger
}

// NewService creates a chat service. A nil generator means no model is
// configured and every answer is synthesized.
func NewService(
	adapter *content.Adapter,
	composer *prompt.Composer,
	generator Generator,
	synthesizer *fallback.Synthesizer,
	metrics *MetricsCollector,
	opts Options,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetricsCollector(logger, nil)
	}
	if len(opts.Categories) == 0 {
		opts.Categories = content.DefaultCategories()
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = content.DefaultFetchLimit
	}
	if opts.MaxPerCategory <= 0 {
		opts.MaxPerCategory = content.DefaultMaxPerCategory
	}
	if opts.Timeout <= 0 {
		opts.Timeout = resilience.DefaultTimeoutSeconds * time.Second
	}

	return &Service{
		adapter:     adapter,
		composer:    composer,
		generator:   generator,
		synthesizer: synthesizer,
		metrics:     metrics,
		opts:        opts,
		logger:      logger,
	}
}

// Metrics returns the service's metrics collector
func (s *Service) Metrics() *MetricsCollector {
	return s.metrics
}

// ModelEnabled reports whether answers go through the language model
func (s *Service) ModelEnabled() bool {
	return s.generator != nil
}

// Answer answers message. A blank message is a BAD_REQUEST ServiceError.
// A model failure, including a model call still running at the deadline, is
// a *FallbackError carrying the synthesized answer.
func (s *Service) Answer(ctx context.Context, message string) (result Result, err error) {
	start := time.Now()
	outcome := OutcomeError
	defer func() { s.metrics.RecordRequest(outcome, time.Since(start)) }()

	if strings.TrimSpace(message) == "" {
		outcome = OutcomeBadRequest
		return Result{}, resilience.NewBadRequestError(MessageRequired, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	raw := s.adapter.FetchAll(ctx, s.opts.Categories, s.opts.FetchLimit)
	assembled := content.BuildContext(s.opts.Categories, raw, s.opts.MaxPerCategory)

	model := ""
	if s.generator != nil {
		model = s.generator.Model()
	}
	s.logger.Info("Context assembled",
		zap.Any("counts", assembled.Counts()),
		zap.Bool("has_api_key", s.generator != nil),
		zap.String("model", model))

	if s.generator == nil {
		outcome = OutcomeFallback
		return Result{Response: s.synthesizer.Synthesize(message, assembled), Fallback: true}, nil
	}

	composed, err := s.composer.Compose(assembled, message)
	if err != nil {
		return Result{}, resilience.NewInternalError("Failed to compose prompt", err)
	}

	answer, err := resilience.CallWithTimeout(ctx, s.opts.Timeout, s.logger,
		func(ctx context.Context) (llm.Answer, error) {
			return s.generator.Generate(ctx, composed)
		})
	if err != nil {
		var modelErr *llm.ModelError
		if !errors.As(err, &modelErr) && errors.Is(err, context.DeadlineExceeded) {
			modelErr = &llm.ModelError{Message: "Request timed out", Model: model, Err: err}
		}
		if modelErr != nil {
			outcome = OutcomeModelError
			s.logger.Warn("Model failed, returning synthesized answer", zap.Error(err))
			return Result{}, &FallbackError{
				Err:      modelErr,
				Fallback: s.synthesizer.Synthesize(message, assembled),
			}
		}
		return Result{}, err
	}

	outcome = OutcomeModel
	return Result{Response: answer.Text, Model: answer.Model}, nil
}
