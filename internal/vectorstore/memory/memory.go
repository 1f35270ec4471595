package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"ragchat/internal/domain"
)

// Storage keeps vectors in memory and searches them exhaustively. Vectors are
// expected to be L2-normalised, so the dot product is the cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
}

type entry struct {
	segment domain.Segment
	vector  []float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.entries = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, segments []domain.Segment, vectors [][]float64) error {
	if len(segments) != len(vectors) {
		return errors.New("segments and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("storage not initialised")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for i := range segments {
		s.entries = append(s.entries, entry{segment: segments[i], vector: vectors[i]})
	}
	return nil
}

// Len returns the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Search ranks every stored vector against vector. Equal scores keep insertion order.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) > 0 && len(vector) != s.dimension {
		return nil, errors.New("query dimension mismatch")
	}
	if topK <= 0 {
		topK = 5
	}

	results := make([]domain.SearchResult, len(s.entries))
	for i, e := range s.entries {
		results[i] = domain.SearchResult{Segment: e.segment, Score: dot(e.vector, vector)}
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return results[:min(topK, len(results))], nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range min(len(a), len(b)) {
		sum += a[i] * b[i]
	}
	return sum
}
