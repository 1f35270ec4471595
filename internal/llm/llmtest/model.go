// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Model answers every request with Reply, or with the result of Respond when set.
// Streaming callers receive the answer split into Chunks pieces.
type Model struct {
	Reply   string
	Respond func(prompt string) string
	Chunks  int
	Err     error
	// Block makes the model wait for the context before answering.
	Block bool

	mu      sync.Mutex
	prompts []string
}

var _ llms.Model = (*Model)(nil)

// Prompts returns the text of every request seen so far.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	var sb strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if t, ok := part.(llms.TextContent); ok {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(t.Text)
			}
		}
	}
	prompt := sb.String()
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}

	reply := m.Reply
	if m.Respond != nil {
		reply = m.Respond(prompt)
	}
	if opts.StreamingFunc != nil {
		for _, chunk := range Split(reply, m.Chunks) {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

// Split cuts s into at most n pieces of roughly equal length.
func Split(s string, n int) []string {
	if n <= 1 || len(s) <= 1 {
		return []string{s}
	}
	size := (len(s) + n - 1) / n
	var out []string
	for len(s) > 0 {
		if size > len(s) {
			size = len(s)
		}
		out = append(out, s[:size])
		s = s[size:]
	}
	return out
}
