// Package llm talks to the external text completion service through langchaingo.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

const defaultTimeout = 120 * time.Second

// Client is a completion client bound to one model. Every call is bounded by
// the configured timeout and failures are reported as domain.ErrGeneration.
type Client struct {
	name        string
	model       llms.Model
	maxTokens   int
	temperature float64
	timeout     time.Duration
	log         *logrus.Logger
}

var _ domain.Completer = (*Client)(nil)

// New validates cfg and builds the langchaingo model for its provider.
// Credentials are checked before any client is created.
func New(cfg config.CompletionConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var model llms.Model
	switch cfg.Provider {
	case "openai":
		m, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: openai client: %w", domain.ErrConfig, err)
		}
		model = m
	case "ollama":
		m, err := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama client: %w", domain.ErrConfig, err)
		}
		model = m
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrConfig, cfg.Provider)
	}

	return NewWithModel(cfg.Provider+"/"+cfg.Model, model, cfg), nil
}

// NewWithModel wraps an existing model. Only the generation settings of cfg are used.
func NewWithModel(name string, model llms.Model, cfg config.CompletionConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:        name,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		log:         logger.GetLogger(),
	}
}

// Name identifies the provider and model.
func (c *Client) Name() string { return c.name }

// Complete returns the whole completion for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Generate(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, nil)
}

// Stream delivers the completion for prompt chunk by chunk.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(ctx context.Context, chunk string) error) error {
	_, err := c.Generate(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, onChunk)
	return err
}

// Generate sends messages to the model. When onChunk is non-nil the answer is
// streamed through it; the full text is returned either way.
func (c *Client) Generate(ctx context.Context, messages []llms.MessageContent, onChunk func(ctx context.Context, chunk string) error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	var streamed strings.Builder
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			streamed.Write(chunk)
			return onChunk(ctx, string(chunk))
		}))
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGeneration, c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: empty response", domain.ErrGeneration, c.name)
	}

	text := resp.Choices[0].Content
	if onChunk != nil && text == "" {
		text = streamed.String()
	}
	c.log.WithFields(logrus.Fields{
		"model":    c.name,
		"messages": len(messages),
		"chars":    len(text),
		"took":     time.Since(start),
	}).Debug("completion finished")
	return text, nil
}
