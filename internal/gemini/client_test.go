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

package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/your-org/portfolio-assistant/internal/llm"
)

// mockGemini serves the generateContent and models endpoints of the Gemini REST API.
func mockGemini(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Config{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/",
		APIVersion: "v1beta",
		MaxTokens:  256,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestGenerateContent(t *testing.T) {
	var path atomic.Value
	client := mockGemini(t, func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Alpha and Beta"}]}}]}`)
	})

	text, err := client.GenerateContent(context.Background(), "gemini-1.5-flash-latest", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Alpha and Beta", text)
	assert.Equal(t, "/v1beta/models/gemini-1.5-flash-latest:generateContent", path.Load())
}

func TestGenerateContent_NoCandidates(t *testing.T) {
	client := mockGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"candidates":[]}`)
	})

	text, err := client.GenerateContent(context.Background(), "gemini-1.5-flash", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestGenerateContent_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		notFound   bool
		rateLimits bool
	}{
		{
			name:     "model not found",
			status:   http.StatusNotFound,
			body:     `{"error":{"code":404,"message":"models/gemini-1.5-flash-latest is not found","status":"NOT_FOUND"}}`,
			notFound: true,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`,
			rateLimits: true,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mockGemini(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.GenerateContent(context.Background(), "gemini-1.5-flash-latest", "prompt")
			require.Error(t, err)

			var statusErr *llm.StatusError
			require.True(t, errors.As(err, &statusErr), "expected StatusError, got %T: %v", err, err)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.notFound, llm.IsNotFound(err))
			assert.Equal(t, tt.rateLimits, llm.IsRateLimited(err))
		})
	}
}

func TestListModels(t *testing.T) {
	var pages atomic.Int32
	client := mockGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models"), r.URL.Path)
		pages.Add(1)
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, `{"models":[
				{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]},
				{"name":"models/gemini-1.5-pro","supportedGenerationMethods":["generateContent","countTokens"]}
			],"nextPageToken":"page-2"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"models":[
			{"name":"models/gemini-1.5-flash-002","supportedGenerationMethods":["generateContent"]}
		]}`)
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, int32(2), pages.Load())

	selected, ok := llm.SelectModel(models, llm.DefaultModelPriority)
	require.True(t, ok)
	assert.Equal(t, "gemini-1.5-flash-002", selected)
}

func TestListModels_Error(t *testing.T) {
	client := mockGemini(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"permission denied","status":"PERMISSION_DENIED"}}`)
	})

	_, err := client.ListModels(context.Background())

	var statusErr *llm.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "permission denied", statusErr.Message)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		resp     *genai.GenerateContentResponse
		expected string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{
			"skips empty parts",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: ""}, {Text: "second"}}},
			}}},
			"second",
		},
		{
			"first candidate only",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{{Text: "first"}}}},
				{Content: &genai.Content{Parts: []*genai.Part{{Text: "other"}}}},
			}},
			"first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractText(tt.resp))
		})
	}
}

func TestNormalizeError(t *testing.T) {
	err := normalizeError(fmt.Errorf("wrapped: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}))

	var statusErr *llm.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 429, statusErr.StatusCode)
	assert.Equal(t, "RESOURCE_EXHAUSTED", statusErr.Message)

	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, normalizeError(plain))
}
