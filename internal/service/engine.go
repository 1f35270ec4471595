package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/stream"
)

const defaultTopK = 2

// DocumentInfo describes the document behind a query engine.
type DocumentInfo struct {
	Source   string
	Pages    int
	Segments int
	Summary  string
}

// Response is a complete answer with the segments it was grounded on.
type Response struct {
	Text    string
	Sources []domain.SearchResult
}

// StreamResponse is an answer delivered chunk by chunk. Sources are known
// before the first chunk is produced.
type StreamResponse struct {
	*stream.Stream
	Sources []domain.SearchResult
}

// QueryEngine answers questions about one indexed document. It holds no
// per-query state and may be used by several goroutines at once.
type QueryEngine struct {
	index     *Index
	embedder  domain.Embedder
	completer domain.Completer
	template  *QATemplate
	topK      int
	info      DocumentInfo
	log       *logrus.Logger
}

// NewQueryEngine wraps a built index. A non-positive topK selects the default of 2.
func NewQueryEngine(index *Index, embedder domain.Embedder, completer domain.Completer, template *QATemplate, topK int, info DocumentInfo) *QueryEngine {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &QueryEngine{
		index:     index,
		embedder:  embedder,
		completer: completer,
		template:  template,
		topK:      topK,
		info:      info,
		log:       logger.GetLogger(),
	}
}

// Info describes the indexed document.
func (e *QueryEngine) Info() DocumentInfo { return e.info }

// Query retrieves context for question and returns the whole answer.
func (e *QueryEngine) Query(ctx context.Context, question string) (*Response, error) {
	prompt, sources, err := e.prepare(ctx, question)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	text, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, generationError(err)
	}
	e.log.WithField("took", time.Since(start)).Debug("query answered")
	return &Response{Text: text, Sources: sources}, nil
}

// QueryStream retrieves context for question and returns a stream of the
// answer. Retrieval errors are returned here; generation errors surface
// through the stream.
func (e *QueryEngine) QueryStream(ctx context.Context, question string) (*StreamResponse, error) {
	prompt, sources, err := e.prepare(ctx, question)
	if err != nil {
		return nil, err
	}
	s := stream.New(ctx, func(ctx context.Context, emit func(context.Context, string) error) error {
		if err := e.completer.Stream(ctx, prompt, emit); err != nil {
			return generationError(err)
		}
		return nil
	})
	return &StreamResponse{Stream: s, Sources: sources}, nil
}

// Retrieve returns the segments closest to question.
func (e *QueryEngine) Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	if e.index.Size() == 0 {
		return nil, fmt.Errorf("%w: index is empty", domain.ErrRetrieval)
	}
	vec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrieval, err)
	}
	results, err := e.index.Search(ctx, vec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrRetrieval, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no segments retrieved", domain.ErrRetrieval)
	}
	return results, nil
}

func (e *QueryEngine) prepare(ctx context.Context, question string) (string, []domain.SearchResult, error) {
	results, err := e.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	prompt, err := e.template.Render(JoinContext(results), question)
	if err != nil {
		return "", nil, fmt.Errorf("%w: render prompt: %w", domain.ErrGeneration, err)
	}
	e.log.WithFields(logrus.Fields{
		"source":  e.info.Source,
		"context": len(results),
		"top":     results[0].Score,
	}).Debug("context retrieved")
	return prompt, results, nil
}

// Close releases the index. The engine must not be used afterwards.
func (e *QueryEngine) Close() error {
	return e.index.Close(context.Background())
}

func generationError(err error) error {
	if errors.Is(err, domain.ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
}
