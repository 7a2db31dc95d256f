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
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PublishedField is the optional boolean visibility flag of a row
	PublishedField = "published"
	// SortOrderField is the optional numeric ordering key of a row
	SortOrderField = "sort_order"
	// DefaultSortOrder is used for rows without a numeric sort_order
	DefaultSortOrder = 999
)

var httpURLPattern = regexp.MustCompile(`(?i)^https?://`)

// Row is one record from the content store. Beyond published and sort_order
// its fields are opaque and read through Attribute.
type Row map[string]any

// Published reports whether the row is visible. Only an explicit false hides it.
func (r Row) Published() bool {
	v, ok := r[PublishedField]
	if !ok {
		return true
	}
	b, isBool := v.(bool)
	return !isBool || b
}

// SortOrder returns the row's numeric sort_order or DefaultSortOrder.
func (r Row) SortOrder() float64 {
	if n, ok := toNumber(r[SortOrderField]); ok {
		return n
	}
	return DefaultSortOrder
}

// Attribute is an ordered list of field-name aliases for one displayed
// attribute, e.g. {"title", "name", "project_title"}. Lookups return the
// first alias that holds a usable value.
type Attribute []string

// String returns the first non-blank string value among the aliases.
func (a Attribute) String(r Row) string {
	for _, key := range a {
		if s, ok := r[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Text is like String but also accepts numbers, formatted without a
// trailing fraction (2023.0 becomes "2023").
func (a Attribute) Text(r Row) string {
	for _, key := range a {
		v := r[key]
		if n, ok := toNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// URL returns the first alias holding an http(s) URL.
func (a Attribute) URL(r Row) string {
	for _, key := range a {
		if s, ok := r[key].(string); ok && httpURLPattern.MatchString(s) {
			return s
		}
	}
	return ""
}

// Or returns value, or fallback when value is empty.
func Or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
