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
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultMaxPerCategory caps each category in the context to keep prompts small
const DefaultMaxPerCategory = 8

// Context holds, per category, the bounded ordered list of published rows
// for one request. It serializes to a single JSON object whose keys follow
// category order.
type Context struct {
	order []string
	rows  map[string][]Row
}

// BuildContext filters raw rows to published ones, stably sorts them by
// sort_order and truncates each category to its cap. It does no I/O and the
// input is not modified.
func BuildContext(categories []Category, raw map[string][]Row, maxPerCategory int) Context {
	if maxPerCategory <= 0 {
		maxPerCategory = DefaultMaxPerCategory
	}

	ctx := Context{
		order: make([]string, 0, len(categories)),
		rows:  make(map[string][]Row, len(categories)),
	}

	for _, category := range categories {
		limit := maxPerCategory
		if category.MaxRows > 0 {
			limit = category.MaxRows
		}

		published := make([]Row, 0, len(raw[category.Name]))
		for _, row := range raw[category.Name] {
			if row.Published() {
				published = append(published, row)
			}
		}

		sort.SliceStable(published, func(i, j int) bool {
			return published[i].SortOrder() < published[j].SortOrder()
		})

		if len(published) > limit {
			published = published[:limit]
		}

		ctx.order = append(ctx.order, category.Name)
		ctx.rows[category.Name] = published
	}

	return ctx
}

// Rows returns the rows of a category, empty when unknown.
func (c Context) Rows(category string) []Row {
	return c.rows[category]
}

// Categories returns category names in context order.
func (c Context) Categories() []string {
	return append([]string(nil), c.order...)
}

// Counts returns the number of rows per category.
func (c Context) Counts() map[string]int {
	counts := make(map[string]int, len(c.order))
	for _, name := range c.order {
		counts[name] = len(c.rows[name])
	}
	return counts
}

// MarshalJSON writes {"projects":[...],"experiences":[...],...} in category order.
func (c Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		rows := c.rows[name]
		if rows == nil {
			rows = []Row{}
		}
		value, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s rows: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
