package service

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"ragchat/internal/domain"
)

const (
	contextVar = "context_str"
	queryVar   = "query_str"
)

// QATemplate renders the question-answering prompt.
type QATemplate struct {
	tmpl prompts.PromptTemplate
}

// NewQATemplate parses an f-string template with {context_str} and {query_str} placeholders.
func NewQATemplate(text string) (*QATemplate, error) {
	for _, v := range []string{contextVar, queryVar} {
		if !strings.Contains(text, "{"+v+"}") {
			return nil, fmt.Errorf("%w: qa template must contain {%s}", domain.ErrConfig, v)
		}
	}
	t := &QATemplate{tmpl: prompts.PromptTemplate{
		Template:       text,
		InputVariables: []string{contextVar, queryVar},
		TemplateFormat: prompts.TemplateFormatFString,
	}}
	if _, err := t.Render("", ""); err != nil {
		return nil, fmt.Errorf("%w: qa template: %w", domain.ErrConfig, err)
	}
	return t, nil
}

// Render fills the template with the retrieved context and the question.
func (t *QATemplate) Render(contextStr, query string) (string, error) {
	return t.tmpl.Format(map[string]any{
		contextVar: contextStr,
		queryVar:   query,
	})
}

// JoinContext concatenates retrieved texts separated by a blank line.
func JoinContext(results []domain.SearchResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Segment.Text
	}
	return strings.Join(texts, "\n\n")
}
