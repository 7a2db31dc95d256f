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

package content

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchLimit bounds each read from the store
const DefaultFetchLimit = 12

// Store is the read-only view of the structured content store.
// Select fails when source is not a valid table/collection in the deployment.
type Store interface {
	Select(ctx context.Context, source string, limit int) ([]Row, error)
}

// Adapter resolves logical categories against a Store, tolerating sources
// that do not exist in a given deployment.
type Adapter struct {
	store  Store
	logger *zap.Logger
}

// NewAdapter creates a new content store adapter
func NewAdapter(store Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{store: store, logger: logger}
}

// FetchCategory tries each candidate source in order and returns the rows of
// the first one that resolves, which may be empty. A failing candidate is
// logged and skipped. When every candidate fails the result is empty; the
// error is never surfaced.
func (a *Adapter) FetchCategory(ctx context.Context, candidates []string, limit int) []Row {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	for _, name := range candidates {
		rows, err := a.store.Select(ctx, name, limit)
		if err != nil {
			a.logger.Warn("Content source failed, trying next candidate",
				zap.String("candidate", name),
				zap.Error(err))
			continue
		}
		if rows == nil {
			rows = []Row{}
		}
		return rows
	}

	a.logger.Warn("No content source resolved for category",
		zap.Strings("candidates", candidates))
	return []Row{}
}

// FetchAll fetches every category concurrently and waits for all of them.
// The result is keyed by preferred category name.
func (a *Adapter) FetchAll(ctx context.Context, categories []Category, limit int) map[string][]Row {
	results := make([][]Row, len(categories))

	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			results[i] = a.FetchCategory(ctx, category.Sources, limit)
			return nil
		})
	}
	// FetchCategory never fails, so Wait only synchronizes.
	_ = g.Wait()

	raw := make(map[string][]Row, len(categories))
	for i, category := range categories {
		raw[category.Name] = results[i]
	}
	return raw
}
