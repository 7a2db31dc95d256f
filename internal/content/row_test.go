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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow_Published(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		expected bool
	}{
		{"missing flag", Row{}, true},
		{"explicit true", Row{PublishedField: true}, true},
		{"explicit false", Row{PublishedField: false}, false},
		{"nil flag", Row{PublishedField: nil}, true},
		{"non-bool flag", Row{PublishedField: "no"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.row.Published())
		})
	}
}

func TestRow_SortOrder(t *testing.T) {
	tests := []struct {
		name     string
		row      Row
		expected float64
	}{
		{"missing", Row{}, DefaultSortOrder},
		{"nil", Row{SortOrderField: nil}, DefaultSortOrder},
		{"int", Row{SortOrderField: 3}, 3},
		{"int64", Row{SortOrderField: int64(7)}, 7},
		{"int32", Row{SortOrderField: int32(2)}, 2},
		{"float", Row{SortOrderField: 1.5}, 1.5},
		{"json number", Row{SortOrderField: json.Number("4")}, 4},
		{"zero", Row{SortOrderField: 0}, 0},
		{"string is not numeric", Row{SortOrderField: "1"}, DefaultSortOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.row.SortOrder())
		})
	}
}

func TestAttribute_String(t *testing.T) {
	title := Attribute{"title", "name", "project_title"}

	assert.Equal(t, "Alpha", title.String(Row{"title": "Alpha", "name": "ignored"}))
	assert.Equal(t, "Beta", title.String(Row{"title": "   ", "name": "Beta"}))
	assert.Equal(t, "Gamma", title.String(Row{"title": 12, "project_title": "Gamma"}))
	assert.Equal(t, "", title.String(Row{"other": "x"}))
}

func TestAttribute_Text(t *testing.T) {
	year := Attribute{"year", "published_on"}

	assert.Equal(t, "2023", year.Text(Row{"year": 2023}))
	assert.Equal(t, "2023", year.Text(Row{"year": float64(2023)}))
	assert.Equal(t, "2021-05", year.Text(Row{"year": "", "published_on": "2021-05"}))
	assert.Equal(t, "", year.Text(Row{}))
}

func TestAttribute_URL(t *testing.T) {
	link := Attribute{"url", "link", "doi"}

	assert.Equal(t, "https://example.com/p", link.URL(Row{"url": "https://example.com/p"}))
	assert.Equal(t, "http://doi.org/1", link.URL(Row{"url": "not-a-url", "doi": "http://doi.org/1"}))
	assert.Equal(t, "", link.URL(Row{"doi": "10.1000/182"}))
}

func TestOr(t *testing.T) {
	assert.Equal(t, "Project", Or("", "Project"))
	assert.Equal(t, "Alpha", Or("Alpha", "Project"))
}
