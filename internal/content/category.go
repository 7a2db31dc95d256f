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

// Package content models the portfolio rows the assistant is grounded on
// and assembles the per-request context from them.
package content

// Preferred category names. They double as the keys of the serialized context.
const (
	Projects       = "projects"
	Experiences    = "experiences"
	Certifications = "certifications"
	Publications   = "publications"
	Skills         = "skills"
)

// Category is a logical content category and the ordered list of physical
// source names it may be stored under in a given deployment.
type Category struct {
	Name    string
	Sources []string
	// MaxRows caps the category in the assembled context; 0 uses the assembler default
	MaxRows int
}

// DefaultCategories returns the alias map used when configuration does not override it.
func DefaultCategories() []Category {
	return []Category{
		{Name: Projects, Sources: []string{"projects", "project", "portfolio_projects"}},
		{Name: Experiences, Sources: []string{"experiences", "experience", "work_experience", "work_experiences"}},
		{Name: Certifications, Sources: []string{"certifications", "certs", "certifications_list", "certs_list"}},
		{Name: Publications, Sources: []string{"publications", "publication", "papers", "articles"}},
		{Name: Skills, Sources: []string{"skills", "skill", "skill_items", "skill_list"}},
	}
}

// Names returns the preferred names of categories in order.
func Names(categories []Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names
}
