package embedding

import (
	"fmt"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/lcembed"
	"ragchat/internal/embedding/tfidf"
)

// Factory returns the embedder to use for one index build. Remote embedders
// are shared; corpus-fitted ones are created fresh for every build.
type Factory func() (domain.Embedder, error)

// NewFactory selects the embedder implementation from cfg.Type.
func NewFactory(cfg config.EmbedderConfig) (Factory, error) {
	switch cfg.Type {
	case "tfidf":
		return func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil }, nil
	case "openai", "ollama":
		emb, err := lcembed.New(cfg)
		if err != nil {
			return nil, err
		}
		return func() (domain.Embedder, error) { return emb, nil }, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfig, cfg.Type)
	}
}
