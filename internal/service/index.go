package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/vectorstore"
)

const defaultBatchSize = 32

// Progress receives the number of embedded segments after every batch.
type Progress func(done, total int)

// BuildOptions tunes BuildIndex.
type BuildOptions struct {
	BatchSize int
	Progress  Progress
}

// Index is the vector index of one document. It is read-only once built and
// reports itself empty after Close.
type Index struct {
	store     vectorstore.Storage
	size      int
	dimension int
	closed    atomic.Bool
}

// BuildIndex embeds every segment and stores one L2-normalised vector per
// segment. On any failure the storage is cleared and nothing is returned.
func BuildIndex(ctx context.Context, segments []domain.Segment, embedder domain.Embedder, store vectorstore.Storage, opts BuildOptions) (*Index, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments to index", domain.ErrIndexBuild)
	}
	idx, err := buildIndex(ctx, segments, embedder, store, opts)
	if err != nil {
		if clearErr := store.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			logger.GetLogger().WithError(clearErr).Warn("failed to clear partial index")
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexBuild, err)
	}
	return idx, nil
}

func buildIndex(ctx context.Context, segments []domain.Segment, embedder domain.Embedder, store vectorstore.Storage, opts BuildOptions) (*Index, error) {
	log := logger.GetLogger()
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	if err := embedder.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare %s embedder: %w", embedder.Name(), err)
	}

	start := time.Now()
	dimension := 0
	for lo := 0; lo < len(segments); lo += batchSize {
		hi := min(lo+batchSize, len(segments))
		vectors, err := embedder.EmbedDocuments(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("embed segments %d-%d: %w", lo, hi, err)
		}
		if len(vectors) != hi-lo {
			return nil, fmt.Errorf("embedder returned %d vectors for %d segments", len(vectors), hi-lo)
		}
		if dimension == 0 {
			dimension = len(vectors[0])
			if dimension == 0 {
				return nil, errors.New("embedder returned empty vectors")
			}
			if err := store.Init(ctx, dimension); err != nil {
				return nil, fmt.Errorf("init storage: %w", err)
			}
		}
		for i, v := range vectors {
			if len(v) != dimension {
				return nil, fmt.Errorf("segment %d has dimension %d, expected %d", lo+i, len(v), dimension)
			}
			normalize(v)
		}
		if err := store.Upsert(ctx, segments[lo:hi], vectors); err != nil {
			return nil, fmt.Errorf("store vectors: %w", err)
		}

		log.WithFields(logrus.Fields{
			"embedder": embedder.Name(),
			"done":     hi,
			"total":    len(segments),
		}).Debug("indexing")
		if opts.Progress != nil {
			opts.Progress(hi, len(segments))
		}
	}

	log.WithFields(logrus.Fields{
		"segments":  len(segments),
		"dimension": dimension,
		"took":      time.Since(start),
	}).Info("index built")
	return &Index{store: store, size: len(segments), dimension: dimension}, nil
}

// Size returns the number of indexed vectors.
func (i *Index) Size() int {
	if i == nil || i.closed.Load() {
		return 0
	}
	return i.size
}

// Search returns the topK segments closest to vector.
func (i *Index) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if i.Size() == 0 {
		return nil, errors.New("index is empty")
	}
	if len(vector) != i.dimension {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(vector), i.dimension)
	}
	q := append([]float64(nil), vector...)
	normalize(q)
	return i.store.Search(ctx, q, topK)
}

// Close releases the storage behind the index.
func (i *Index) Close(ctx context.Context) error {
	if i == nil || i.store == nil || i.closed.Swap(true) {
		return nil
	}
	return i.store.Clear(ctx)
}

// normalize scales v to unit length in place. Zero vectors are left alone.
func normalize(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
