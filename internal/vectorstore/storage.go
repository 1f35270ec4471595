package vectorstore

import (
	"context"
	"fmt"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/memory"
	"ragchat/internal/vectorstore/qdrant"
)

// Storage persists vectors and supports similarity search.
// Search returns results by descending score; equal scores keep segment order.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, segments []domain.Segment, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
}

// Factory creates an empty storage for the index identified by key.
type Factory func(key string) (Storage, error)

// NewFactory selects the storage implementation from cfg.Type.
func NewFactory(cfg config.VectorStoreConfig) (Factory, error) {
	switch cfg.Type {
	case "memory", "":
		return func(string) (Storage, error) { return memory.NewStorage(), nil }, nil
	case "qdrant":
		if cfg.Qdrant == nil || cfg.Qdrant.URL == "" {
			return nil, fmt.Errorf("%w: qdrant url missing", domain.ErrConfig)
		}
		q := *cfg.Qdrant
		return func(key string) (Storage, error) {
			return qdrant.NewStorage(qdrant.Config{
				URL:        q.URL,
				APIKey:     q.APIKey,
				Collection: q.CollectionPrefix + key,
				Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			}), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfig, cfg.Type)
	}
}
