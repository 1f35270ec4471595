// Package lcembed provides embedders backed by langchaingo clients.
package lcembed

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

const defaultTimeout = 60 * time.Second

// Embedder calls a remote embedding model. Every call runs under its own timeout.
type Embedder struct {
	name    string
	emb     embeddings.Embedder
	timeout time.Duration
	log     *logrus.Logger
}

var _ domain.Embedder = (*Embedder)(nil)

// New builds an OpenAI-compatible or Ollama embedder from cfg.
func New(cfg config.EmbedderConfig) (*Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.GetLogger()

	var client embeddings.EmbedderClient
	switch cfg.Type {
	case "openai":
		if cfg.Device != "" {
			log.WithField("device", cfg.Device).Warn("embedding device is ignored for openai embedders")
		}
		c, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: openai embeddings: %w", domain.ErrConfig, err)
		}
		client = c
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		}
		if cfg.Device == "cpu" {
			opts = append(opts, ollama.WithRunnerNumGPU(0))
		}
		c, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama embeddings: %w", domain.ErrConfig, err)
		}
		client = c
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfig, cfg.Type)
	}

	var opts []embeddings.Option
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	emb, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	return NewWithEmbedder(cfg.Type, emb, time.Duration(cfg.TimeoutSecs)*time.Second), nil
}

// NewWithEmbedder wraps an existing langchaingo embedder.
func NewWithEmbedder(name string, emb embeddings.Embedder, timeout time.Duration) *Embedder {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Embedder{name: name, emb: emb, timeout: timeout, log: logger.GetLogger()}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return e.name }

// Prepare is not required for remote embedding.
func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := e.emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	e.log.WithFields(logrus.Fields{
		"embedder": e.name,
		"texts":    len(texts),
		"took":     time.Since(start),
	}).Debug("embedded documents")

	out := make([][]float64, len(vecs))
	for i, v := range vecs {
		out[i] = widen(v)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	v, err := e.emb.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return widen(v), nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
