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

// Package openai adapts OpenAI-compatible chat completion APIs to the
// llm.Service interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/llm"
)

// nonGenerativeMarkers identify model ids that cannot answer chat prompts
var nonGenerativeMarkers = []string{"embedding", "tts", "whisper", "dall-e", "moderation", "transcribe"}

// Config holds OpenAI connection and generation settings
type Config struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

var _ llm.Service = (*Client)(nil)

// Client wraps the go-openai client as an llm.Service
type Client struct {
	client      *openai.Client
	logger      *zap.Logger
	maxTokens   int
	temperature float32
}

// NewClient creates a new OpenAI client. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		logger:      logger,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

// GenerateContent sends prompt as a single user message and returns the
// first choice's content, or "" when there is none.
func (c *Client) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	c.logger.Debug("Sending chat completion request",
		zap.String("model", model),
		zap.String("prompt_preview", truncateText(prompt, 100)))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.handleAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	c.logger.Debug("Chat completion received",
		zap.String("model", resp.Model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the provider's models. OpenAI does not advertise
// capabilities, so every model except known non-chat families is reported
// as able to generate content.
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, c.handleAPIError(err)
	}

	models := make([]llm.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		info := llm.ModelInfo{Name: m.ID}
		if isGenerative(m.ID) {
			info.SupportedActions = []string{llm.GenerateContentAction}
		}
		models = append(models, info)
	}
	return models, nil
}

// handleAPIError maps go-openai errors onto llm.StatusError
func (c *Client) handleAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Debug("OpenAI API error",
			zap.Int("status_code", apiErr.HTTPStatusCode),
			zap.String("message", apiErr.Message))
		return &llm.StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := reqErr.Error()
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return &llm.StatusError{StatusCode: reqErr.HTTPStatusCode, Message: message}
	}

	return fmt.Errorf("OpenAI client error: %w", err)
}

func isGenerative(id string) bool {
	lower := strings.ToLower(id)
	for _, marker := range nonGenerativeMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// truncateText truncates text to a maximum length for logging
func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	return text[:maxLength] + "..."
}
