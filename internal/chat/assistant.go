// Package chat implements the plain language-model chat.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"ragchat/internal/domain"
	"ragchat/internal/stream"
)

// Generator sends a list of chat messages to a model.
type Generator interface {
	Generate(ctx context.Context, messages []llms.MessageContent, onChunk func(ctx context.Context, chunk string) error) (string, error)
}

// Assistant answers free-form questions through a system message followed by
// the question template.
type Assistant struct {
	model  Generator
	prompt prompts.ChatPromptTemplate
}

// NewAssistant builds the prompt chain. question must contain {question}.
func NewAssistant(model Generator, system, question string) (*Assistant, error) {
	if !strings.Contains(question, "{question}") {
		return nil, fmt.Errorf("%w: question template must contain {question}", domain.ErrConfig)
	}
	a := &Assistant{
		model: model,
		prompt: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
			prompts.SystemMessagePromptTemplate{Prompt: fstring(system, nil)},
			prompts.HumanMessagePromptTemplate{Prompt: fstring(question, []string{"question"})},
		}),
	}
	if _, err := a.messages(""); err != nil {
		return nil, fmt.Errorf("%w: chat prompt: %w", domain.ErrConfig, err)
	}
	return a, nil
}

func fstring(template string, vars []string) prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       template,
		InputVariables: vars,
		TemplateFormat: prompts.TemplateFormatFString,
	}
}

func (a *Assistant) messages(question string) ([]llms.MessageContent, error) {
	formatted, err := a.prompt.FormatMessages(map[string]any{"question": question})
	if err != nil {
		return nil, err
	}
	out := make([]llms.MessageContent, len(formatted))
	for i, m := range formatted {
		out[i] = llms.TextParts(m.GetType(), m.GetContent())
	}
	return out, nil
}

// Ask returns the whole answer to question.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	msgs, err := a.messages(question)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	return a.model.Generate(ctx, msgs, nil)
}

// AskStream returns the answer to question as a stream.
func (a *Assistant) AskStream(ctx context.Context, question string) (*stream.Stream, error) {
	msgs, err := a.messages(question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	return stream.New(ctx, func(ctx context.Context, emit func(context.Context, string) error) error {
		_, err := a.model.Generate(ctx, msgs, emit)
		return err
	}), nil
}
