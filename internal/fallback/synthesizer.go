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

// Package fallback produces deterministic answers from the assembled
// context when the language model cannot.
package fallback

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/your-org/portfolio-assistant/internal/content"
)

// Attribute aliases, in lookup order
var (
	projectTitle       = content.Attribute{"title", "name", "project_title"}
	projectYear        = content.Attribute{"year"}
	projectBrief       = content.Attribute{"description", "blurb", "summary"}
	experienceRole     = content.Attribute{"role", "title"}
	experienceCompany  = content.Attribute{"company", "org", "organization"}
	experienceStart    = content.Attribute{"start", "start_date"}
	experienceEnd      = content.Attribute{"end", "end_date"}
	experienceBrief    = content.Attribute{"summary", "description"}
	certificationName  = content.Attribute{"name", "title"}
	certificationIssue = content.Attribute{"issuer", "organization"}
	certificationDate  = content.Attribute{"issued_on", "date", "year"}
	publicationTitle   = content.Attribute{"title", "name"}
	publicationVenue   = content.Attribute{"venue", "journal", "conference"}
	publicationYear    = content.Attribute{"year", "published_on"}
	publicationURL     = content.Attribute{"url", "link", "doi"}
	skillName          = content.Attribute{"name", "title"}
	skillGroup         = content.Attribute{"group_name", "group", "category"}
)

// DefaultMaxLines is the per-category bullet cap
var DefaultMaxLines = map[string]int{
	content.Projects:       5,
	content.Experiences:    4,
	content.Certifications: 6,
	content.Publications:   6,
	content.Skills:         10,
}

type rule struct {
	category string
	header   string
	keywords *regexp.Regexp
	line     func(content.Row) string
}

// rules are evaluated in order; the first with a keyword hit and rows wins.
var rules = []rule{
	{
		category: content.Projects,
		header:   "Projects",
		keywords: regexp.MustCompile(`project|build|built|made|portfolio`),
		line:     projectLine,
	},
	{
		category: content.Experiences,
		header:   "Experience",
		keywords: regexp.MustCompile(`experience|work|role|company|intern`),
		line:     experienceLine,
	},
	{
		category: content.Certifications,
		header:   "Certifications",
		keywords: regexp.MustCompile(`cert|certificate|certification`),
		line:     certificationLine,
	},
	{
		category: content.Publications,
		header:   "Publications",
		keywords: regexp.MustCompile(`publication|paper|journal|conference|article`),
		line:     publicationLine,
	},
	{
		category: content.Skills,
		header:   "Skills",
		keywords: regexp.MustCompile(`skill|stack|tech|technology|tools?`),
		line:     skillLine,
	},
}

// Synthesizer builds rule-based answers. It is immutable and safe for
// concurrent use.
type Synthesizer struct {
	owner    string
	maxLines map[string]int
}

// NewSynthesizer creates a synthesizer for owner. Missing or zero caps in
// maxLines use DefaultMaxLines.
func NewSynthesizer(owner string, maxLines map[string]int) *Synthesizer {
	caps := make(map[string]int, len(DefaultMaxLines))
	for category, n := range DefaultMaxLines {
		caps[category] = n
	}
	for category, n := range maxLines {
		if n > 0 {
			caps[category] = n
		}
	}
	return &Synthesizer{owner: owner, maxLines: caps}
}

// Synthesize answers question from ctx without any I/O. It never fails:
// when no category matches it returns a count summary.
func (s *Synthesizer) Synthesize(question string, ctx content.Context) string {
	q := strings.ToLower(question)

	for _, r := range rules {
		if !r.keywords.MatchString(q) {
			continue
		}
		rows := ctx.Rows(r.category)
		if len(rows) == 0 {
			continue
		}
		if limit := s.maxLines[r.category]; len(rows) > limit {
			rows = rows[:limit]
		}

		lines := make([]string, len(rows))
		for i, row := range rows {
			lines[i] = "- " + r.line(row)
		}
		return fmt.Sprintf("**%s**:\n%s", r.header, strings.Join(lines, "\n"))
	}

	return s.summary(ctx)
}

func (s *Synthesizer) summary(ctx content.Context) string {
	return fmt.Sprintf("**%s's Assistant**: %d project(s), %d experience item(s), %d certification(s), "+
		"%d publication(s), %d skill(s). Ask about role fit (AI/ML, Full-Stack, Cloud/DevOps, Data/SQL), "+
		"or request summaries and evidence.",
		s.owner,
		len(ctx.Rows(content.Projects)),
		len(ctx.Rows(content.Experiences)),
		len(ctx.Rows(content.Certifications)),
		len(ctx.Rows(content.Publications)),
		len(ctx.Rows(content.Skills)))
}

func projectLine(row content.Row) string {
	var b strings.Builder
	b.WriteString(content.Or(projectTitle.String(row), "Project"))
	if year := projectYear.Text(row); year != "" {
		b.WriteString(" (" + year + ")")
	}
	if brief := projectBrief.String(row); brief != "" {
		b.WriteString(" - " + brief)
	}
	return b.String()
}

func experienceLine(row content.Row) string {
	var b strings.Builder
	b.WriteString(content.Or(experienceRole.String(row), "Role"))
	b.WriteString(" @ ")
	b.WriteString(content.Or(experienceCompany.String(row), "Company"))

	end := content.Or(experienceEnd.String(row), "Present")
	if start := experienceStart.String(row); start != "" {
		b.WriteString(" (" + start + " → " + end + ")")
	} else {
		b.WriteString(" (" + end + ")")
	}

	if brief := experienceBrief.String(row); brief != "" {
		b.WriteString(" - " + brief)
	}
	return b.String()
}

func certificationLine(row content.Row) string {
	var b strings.Builder
	b.WriteString(content.Or(certificationName.String(row), "Certification"))
	b.WriteString(" - ")
	b.WriteString(content.Or(certificationIssue.String(row), "Issuer"))
	if when := certificationDate.Text(row); when != "" {
		b.WriteString(" (" + when + ")")
	}
	return b.String()
}

func publicationLine(row content.Row) string {
	var b strings.Builder
	b.WriteString(content.Or(publicationTitle.String(row), "Publication"))

	var tail []string
	if venue := publicationVenue.String(row); venue != "" {
		tail = append(tail, venue)
	}
	if year := publicationYear.Text(row); year != "" {
		tail = append(tail, year)
	}
	if len(tail) > 0 {
		b.WriteString(" - " + strings.Join(tail, ", "))
	}

	if url := publicationURL.URL(row); url != "" {
		b.WriteString(" - " + url)
	}
	return b.String()
}

func skillLine(row content.Row) string {
	name := content.Or(skillName.String(row), "Skill")
	if group := skillGroup.String(row); group != "" {
		return name + " - " + group
	}
	return name
}
