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
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/your-org/portfolio-assistant/internal/content"
)

// Fixtures is a set of named source tables, each an ordered list of rows.
//
//	tables:
//	  projects:
//	    - title: Alpha
//	      sort_order: 1
type Fixtures struct {
	Tables map[string][]content.Row `yaml:"tables"`
}

// LoadFixtures reads a YAML fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes YAML fixtures.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fixtures Fixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	for name := range fixtures.Tables {
		if err := ValidateSourceName(name); err != nil {
			return nil, err
		}
	}
	return &fixtures, nil
}

// TableNames returns the fixture table names in sorted order.
func (f *Fixtures) TableNames() []string {
	names := make([]string, 0, len(f.Tables))
	for name := range f.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MemoryStore serves rows from fixtures held in memory. It is read-only
// after construction and safe for concurrent use.
type MemoryStore struct {
	tables map[string][]content.Row
}

// NewMemoryStore creates a store over the given fixtures; nil means no tables.
func NewMemoryStore(fixtures *Fixtures) *MemoryStore {
	tables := make(map[string][]content.Row)
	if fixtures != nil {
		for name, rows := range fixtures.Tables {
			tables[name] = rows
		}
	}
	return &MemoryStore{tables: tables}
}

// Select returns up to limit rows of source in fixture order.
func (m *MemoryStore) Select(ctx context.Context, source string, limit int) ([]content.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, ok := m.tables[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]content.Row, len(rows))
	for i, row := range rows {
		copied := make(content.Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
