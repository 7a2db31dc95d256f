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

// Package gemini adapts the Google Gen AI SDK to the llm.Service interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/your-org/portfolio-assistant/internal/llm"
)

const (
	// DefaultAPIVersion is the Gemini API version used when none is configured
	DefaultAPIVersion = "v1beta"

	listPageSize = 100
	maxListPages = 10
)

// Config holds Gemini connection and generation settings
type Config struct {
	APIKey      string
	BaseURL     string
	APIVersion  string
	MaxTokens   int
	Temperature float64
}

var _ llm.Service = (*Client)(nil)

// Client implements llm.Service on top of genai.Client
type Client struct {
	client   *genai.Client
	generate *genai.GenerateContentConfig
	logger   *zap.Logger
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	generate := &genai.GenerateContentConfig{}
	if cfg.MaxTokens > 0 {
		generate.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if cfg.Temperature > 0 {
		temperature := float32(cfg.Temperature)
		generate.Temperature = &temperature
	}

	return &Client{client: client, generate: generate, logger: logger}, nil
}

// GenerateContent sends prompt as a single user turn and returns the text of
// the first candidate's first text part, or "" when the response has none.
func (c *Client) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, c.generate)
	if err != nil {
		return "", normalizeError(err)
	}

	text := extractText(resp)
	c.logger.Debug("Gemini response received",
		zap.String("model", model),
		zap.Int("candidates", len(resp.Candidates)),
		zap.Int("text_length", len(text)))
	return text, nil
}

// ListModels pages through the models visible to the API key.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	page, err := c.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: listPageSize})
	if err != nil {
		return nil, normalizeError(err)
	}

	var models []llm.ModelInfo
	for i := 0; i < maxListPages; i++ {
		for _, m := range page.Items {
			if m == nil {
				continue
			}
			models = append(models, llm.ModelInfo{
				Name:             m.Name,
				SupportedActions: m.SupportedActions,
			})
		}

		page, err = page.Next(ctx)
		if errors.Is(err, genai.ErrPageDone) {
			break
		}
		if err != nil {
			return nil, normalizeError(err)
		}
	}

	return models, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// normalizeError maps SDK errors onto llm.StatusError so the client can
// classify them without knowing the provider.
func normalizeError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{StatusCode: apiErr.Code, Message: apiMessage(apiErr)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &llm.StatusError{StatusCode: apiErrPtr.Code, Message: apiMessage(*apiErrPtr)}
	}
	return err
}

func apiMessage(apiErr genai.APIError) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if apiErr.Status != "" {
		return apiErr.Status
	}
	return http.StatusText(apiErr.Code)
}
