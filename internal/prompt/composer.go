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

// Package prompt builds the single text prompt sent to the language model.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/your-org/portfolio-assistant/internal/content"
)

// Section labels that frame the context and the question
const (
	ContextLabel  = "\n\nContext (authoritative JSON):\n"
	QuestionLabel = "\n\nUser question:\n"
)

// DefaultPersonaTemplate is the instruction block used when none is
// configured. {{.Owner}} is replaced with the portfolio owner's name.
const DefaultPersonaTemplate = `
You are **{{.Owner}}'s Portfolio Assistant**, a retrieval-grounded helper.
Everything you know comes from the JSON context below (**projects, experiences, certifications, publications, skills**).

GOAL
- Help recruiters, hiring managers and collaborators evaluate {{.Owner}} quickly.
- Give clear, confident answers that show role fit for **AI/ML**, **Full-Stack**, **Cloud/DevOps** and **Data/SQL & Data Engineering**, using projects, publications, skills and certifications as evidence.
- Ground every claim in the supplied context. **Never invent** companies, titles, dates, metrics or links.

STYLE
- Be concise and positive. Prefer **2-5 sentences** or short bullets.
- Lead with evidence: name the item (project, experience, cert, publication or skill) and its concrete impact or stack.
- For a specific role (for example *SQL developer*), map {{.Owner}}'s relevant evidence first (projects touching SQL or database design, experiences mentioning PostgreSQL/MySQL, data-oriented certs), then conclude on fit.
- If information is missing, say so briefly and point to the closest relevant items in the context.
- Use light Markdown: bullets and short bold phrases for impact or tech. Avoid code unless asked.

OUTPUT HINTS
- **Hiring fit:** one-sentence verdict followed by 3-5 evidence bullets (name, impact or metrics, tech).
- **Summary:** 3-5 compact bullets (tech and outcome).
- **Links:** include them when the item has one (url, link, certificate_url).
- **Publications/Skills:** cite venue and year, or skill group, when helpful.
`

// Composer renders prompts for one portfolio owner. It is immutable and
// safe for concurrent use.
type Composer struct {
	instructions string
}

// NewComposer renders the persona template for owner. An empty template
// selects DefaultPersonaTemplate.
func NewComposer(owner, personaTemplate string) (*Composer, error) {
	if strings.TrimSpace(personaTemplate) == "" {
		personaTemplate = DefaultPersonaTemplate
	}

	tmpl, err := template.New("persona").Option("missingkey=error").Parse(personaTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse persona template: %w", err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Owner string }{Owner: owner}); err != nil {
		return nil, fmt.Errorf("failed to render persona template: %w", err)
	}

	return &Composer{instructions: b.String()}, nil
}

// Instructions returns the rendered persona and guardrail block.
func (c *Composer) Instructions() string {
	return c.instructions
}

// Compose joins the instructions, the serialized context and the question.
// The question is appended verbatim.
func (c *Composer) Compose(ctx content.Context, question string) (string, error) {
	data, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to serialize context: %w", err)
	}

	var prompt strings.Builder
	prompt.Grow(len(c.instructions) + len(ContextLabel) + len(data) + len(QuestionLabel) + len(question))
	prompt.WriteString(c.instructions)
	prompt.WriteString(ContextLabel)
	prompt.Write(data)
	prompt.WriteString(QuestionLabel)
	prompt.WriteString(question)

	return prompt.String(), nil
}
