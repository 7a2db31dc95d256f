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

// Package llm calls a hosted generative language model with two bounded
// recovery steps: one model rediscovery after a 404 and one fixed backoff
// retry after a rate limit.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/resilience"
)

// GenerateContentAction is the capability a model must advertise to be
// chosen during discovery.
const GenerateContentAction = "generateContent"

// DefaultModelPriority is the preference order used during discovery.
var DefaultModelPriority = []string{
	"gemini-1.5-flash-002",
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
	"gemini-1.5-pro-latest",
	"gemini-1.5-pro",
}

// ErrNoCapableModel is returned when discovery finds nothing that can generate content
var ErrNoCapableModel = errors.New("no model supporting generateContent is available")

// ModelInfo describes one model offered by the service
type ModelInfo struct {
	Name             string
	SupportedActions []string
}

// Supports reports whether the model advertises action.
func (m ModelInfo) Supports(action string) bool {
	for _, a := range m.SupportedActions {
		if a == action {
			return true
		}
	}
	return false
}

// Service is a generative language provider. Implementations return
// *StatusError for HTTP-level failures.
type Service interface {
	GenerateContent(ctx context.Context, model, prompt string) (string, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Answer is the model's reply and the model that produced it
type Answer struct {
	Text  string
	Model string
}

// Options configures a Client
type Options struct {
	Model            string
	ModelPriority    []string
	RateLimitBackoff time.Duration
	MaxAttempts      int

	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
}

// Client generates answers through a Service. It keeps no state between
// calls and is safe for concurrent use.
type Client struct {
	service     Service
	model       string
	priority    []string
	backoff     time.Duration
	maxAttempts int
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewClient creates a Client. Zero options fall back to the defaults.
func NewClient(service Service, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	priority := opts.ModelPriority
	if len(priority) == 0 {
		priority = DefaultModelPriority
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = resilience.DefaultMaxAttempts
	}
	backoff := opts.RateLimitBackoff
	if backoff <= 0 {
		backoff = resilience.DefaultRetryDelay
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Client{
		service:     service,
		model:       NormalizeModelName(opts.Model),
		priority:    priority,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		tracer:      tp.Tracer(instrumentationName),
		logger:      logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt to the configured model. A rate-limited attempt is
// retried once after the backoff. A 404 triggers one discovery and one retry
// with the discovered model. Any failure is returned as *ModelError.
func (c *Client) Generate(ctx context.Context, prompt string) (answer Answer, err error) {
	ctx, span := c.startSpan(ctx, "generate",
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_length", len(prompt)))
	defer func() { endSpan(span, err) }()

	policy := resilience.RetryPolicy{
		Name:        "rate_limit",
		MaxAttempts: c.maxAttempts,
		Delay:       c.backoff,
		IsRetryable: IsRateLimited,
	}

	err = resilience.Retry(ctx, c.logger, policy, func(ctx context.Context, _ int) error {
		a, err := c.attempt(ctx, prompt)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	if err != nil {
		c.logger.Error("Model generation failed",
			zap.String("model", c.model),
			traceIDField(ctx),
			zap.Error(err))
		return Answer{}, &ModelError{Message: rootMessage(err), Model: c.model, Err: err}
	}

	span.SetAttributes(attribute.String("llm.answer_model", answer.Model))
	return answer, nil
}

// attempt calls the configured model, falling back to a discovered one if
// the configured model does not exist.
func (c *Client) attempt(ctx context.Context, prompt string) (Answer, error) {
	policy := resilience.RetryPolicy{
		Name:        "model_discovery",
		MaxAttempts: 2,
		IsRetryable: IsNotFound,
	}

	model := c.model
	var text string
	err := resilience.Retry(ctx, c.logger, policy, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.logger.Warn("Model not found, discovering alternatives", zap.String("model", model))
			discovered, err := c.DiscoverModel(ctx)
			if err != nil {
				return fmt.Errorf("model discovery failed: %w", err)
			}
			model = discovered
			c.logger.Info("Using discovered model", zap.String("model", model))
		}

		out, err := c.generateContent(ctx, model, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return Answer{}, err
	}

	return Answer{Text: text, Model: model}, nil
}

func (c *Client) generateContent(ctx context.Context, model, prompt string) (text string, err error) {
	ctx, span := c.startSpan(ctx, "generate_content",
		attribute.String("llm.model", model),
		attribute.Int("llm.prompt_length", len(prompt)))
	defer func() { endSpan(span, err) }()

	return c.service.GenerateContent(ctx, model, prompt)
}

// DiscoverModel lists the service's models and picks one that can
// generate content, preferring the priority list.
func (c *Client) DiscoverModel(ctx context.Context) (model string, err error) {
	ctx, span := c.startSpan(ctx, "list_models")
	defer func() { endSpan(span, err) }()

	models, err := c.service.ListModels(ctx)
	if err != nil {
		return "", err
	}

	selected, ok := SelectModel(models, c.priority)
	if !ok {
		return "", ErrNoCapableModel
	}
	span.SetAttributes(attribute.String("llm.model", selected))
	return selected, nil
}

// SelectModel returns the first priority entry offered among the capable
// models, else the first capable model in service order.
func SelectModel(models []ModelInfo, priority []string) (string, bool) {
	capable := make([]string, 0, len(models))
	offered := make(map[string]bool, len(models))
	for _, m := range models {
		if !m.Supports(GenerateContentAction) {
			continue
		}
		name := NormalizeModelName(m.Name)
		if name == "" {
			continue
		}
		capable = append(capable, name)
		offered[name] = true
	}

	for _, name := range priority {
		if offered[NormalizeModelName(name)] {
			return NormalizeModelName(name), true
		}
	}
	if len(capable) > 0 {
		return capable[0], true
	}
	return "", false
}

// NormalizeModelName strips the "models/" resource prefix.
func NormalizeModelName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "models/")
}
