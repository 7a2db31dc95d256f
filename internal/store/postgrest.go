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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/content"
)

// DefaultPostgRESTTimeout bounds a single REST call
const DefaultPostgRESTTimeout = 10 * time.Second

// PostgRESTStore reads content rows from a PostgREST endpoint such as the
// one Supabase exposes under /rest/v1.
type PostgRESTStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// PostgRESTError represents an error body returned by PostgREST
type PostgRESTError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Hint       string `json:"hint"`
}

func (e *PostgRESTError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest error [%s] (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("postgrest returned status %d: %s", e.StatusCode, e.Message)
}

// NewPostgRESTStore creates a REST-backed store. baseURL is the project URL
// without the /rest/v1 suffix.
func NewPostgRESTStore(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*PostgRESTStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultPostgRESTTimeout
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid postgrest url %q", baseURL)
	}

	return &PostgRESTStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Select fetches up to limit rows with select=*.
func (p *PostgRESTStore) Select(ctx context.Context, source string, limit int) ([]content.Row, error) {
	if err := ValidateSourceName(source); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("select", "*")
	query.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", p.baseURL, source, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.makeRequest(req)
	if err != nil {
		var pgErr *PostgRESTError
		if errors.As(err, &pgErr) && pgErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, source, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var rows []content.Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", source, err)
	}
	if rows == nil {
		rows = []content.Row{}
	}
	return rows, nil
}

// Ping checks that the REST root answers.
func (p *PostgRESTStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.makeRequest(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close releases idle connections
func (p *PostgRESTStore) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *PostgRESTStore) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

// makeRequest performs an HTTP request and decodes error bodies
func (p *PostgRESTStore) makeRequest(req *http.Request) (*http.Response, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

		pgErr := &PostgRESTError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, pgErr) != nil || pgErr.Message == "" {
			pgErr.Message = strings.TrimSpace(string(body))
		}
		p.logger.Debug("PostgREST request failed",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", pgErr.Code))
		return nil, pgErr
	}

	return resp, nil
}
