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

package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/chat"
	"github.com/your-org/portfolio-assistant/internal/config"
	"github.com/your-org/portfolio-assistant/internal/content"
	"github.com/your-org/portfolio-assistant/internal/fallback"
	"github.com/your-org/portfolio-assistant/internal/gemini"
	"github.com/your-org/portfolio-assistant/internal/health"
	"github.com/your-org/portfolio-assistant/internal/llm"
	"github.com/your-org/portfolio-assistant/internal/openai"
	"github.com/your-org/portfolio-assistant/internal/prompt"
	"github.com/your-org/portfolio-assistant/internal/store"
)

const (
	serviceName = "portfolio-assistant"
	version     = "1.0.0"
)

// application wires the content store, the model client and the chat service
type application struct {
	cfg      *config.Config
	logger   *zap.Logger
	backend  store.Backend
	provider llm.Service
	client   *llm.Client
	service  *chat.Service
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	backend, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open content store: %w", err)
	}

	composer, err := prompt.NewComposer(cfg.Owner.Name, cfg.Prompt.PersonaTemplate)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	app := &application{cfg: cfg, logger: logger, backend: backend}

	// stays a nil interface without an API key
	var generator chat.Generator
	if cfg.LLM.Enabled() {
		app.provider, err = newProvider(ctx, cfg.LLM, logger)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		app.client = llm.NewClient(app.provider, llm.Options{
			Model:            cfg.LLM.Model,
			ModelPriority:    cfg.LLM.ModelPriority,
			RateLimitBackoff: cfg.LLM.RateLimitBackoff,
			MaxAttempts:      cfg.LLM.MaxAttempts,
		}, logger)
		generator = app.client
	} else {
		logger.Warn("No language model API key configured, answers will come from the fallback synthesizer")
	}

	app.service = chat.NewService(
		content.NewAdapter(backend, logger),
		composer,
		generator,
		fallback.NewSynthesizer(cfg.Owner.Name, cfg.Fallback.MaxLines),
		chat.NewMetricsCollector(logger, nil),
		chat.Options{
			Categories:     cfg.Content.CategoryList(),
			FetchLimit:     cfg.Content.FetchLimit,
			MaxPerCategory: cfg.Content.MaxPerCategory,
			Timeout:        cfg.Server.RequestTimeout,
		},
		logger,
	)

	return app, nil
}

// newProvider builds the Generative Language Service for the configured provider
func newProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.Service, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.Endpoint,
			APIVersion:  cfg.APIVersion,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}, logger)
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.Endpoint,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func (a *application) healthManager() *health.Manager {
	manager := health.NewManager(serviceName, version, a.cfg.Environment, a.logger)

	manager.AddChecker("content_store", health.StoreChecker(a.cfg.Store.Driver, a.backend.Ping))

	var modelCheck func(ctx context.Context) error
	if a.provider != nil {
		modelCheck = func(ctx context.Context) error {
			_, err := a.provider.ListModels(ctx)
			return err
		}
	}
	manager.AddChecker("language_model", health.ModelChecker(a.cfg.LLM.Model, modelCheck))
	manager.AddChecker("chat", health.MetricsChecker(a.service.Metrics().HealthCheck))

	return manager
}

// router builds the HTTP routes: POST /api/chat and GET /health
func (a *application) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	chat.NewAPIHandler(a.service, a.logger).RegisterRoutes(router)
	a.healthManager().RegisterRoutes(router)

	return router
}

func (a *application) Close() error {
	return a.backend.Close()
}
