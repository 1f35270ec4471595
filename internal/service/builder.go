package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/logger"
	"ragchat/internal/vectorstore"
)

// Loader turns an uploaded file into ordered segments.
type Loader interface {
	LoadUpload(ctx context.Context, filename string, data []byte) ([]domain.Segment, error)
}

// EngineBuilder runs the ingestion pipeline: load, embed, index, summarise.
type EngineBuilder struct {
	loader       Loader
	embedders    embedding.Factory
	stores       vectorstore.Factory
	completer    domain.Completer
	template     *QATemplate
	summarizer   domain.Summarizer
	maxSentences int
	topK         int
	batchSize    int
	log          *logrus.Logger
}

// BuilderDeps are the collaborators of an EngineBuilder.
type BuilderDeps struct {
	Loader     Loader
	Embedders  embedding.Factory
	Stores     vectorstore.Factory
	Completer  domain.Completer
	Summarizer domain.Summarizer
}

// NewEngineBuilder combines deps with the retrieval settings of cfg.
func NewEngineBuilder(cfg *config.AppConfig, deps BuilderDeps) (*EngineBuilder, error) {
	template, err := NewQATemplate(cfg.Prompt.QATemplate)
	if err != nil {
		return nil, err
	}
	return &EngineBuilder{
		loader:       deps.Loader,
		embedders:    deps.Embedders,
		stores:       deps.Stores,
		completer:    deps.Completer,
		template:     template,
		summarizer:   deps.Summarizer,
		maxSentences: cfg.Summarizer.MaxSentences,
		topK:         cfg.Retrieval.TopK,
		batchSize:    cfg.Embedder.BatchSize,
		log:          logger.GetLogger(),
	}, nil
}

// Build indexes one uploaded document. key names the storage of the index and
// must be unique among live engines.
func (b *EngineBuilder) Build(ctx context.Context, key, filename string, data []byte, progress Progress) (*QueryEngine, error) {
	segments, err := b.loader.LoadUpload(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	embedder, err := b.embedders()
	if err != nil {
		return nil, err
	}
	store, err := b.stores(StorageKey(key))
	if err != nil {
		return nil, err
	}
	index, err := BuildIndex(ctx, segments, embedder, store, BuildOptions{BatchSize: b.batchSize, Progress: progress})
	if err != nil {
		return nil, err
	}

	info := DocumentInfo{Source: filename, Segments: len(segments), Pages: countPages(segments)}
	if b.summarizer != nil {
		info.Summary = b.summarize(segments)
	}
	b.log.WithFields(logrus.Fields{
		"source":   filename,
		"pages":    info.Pages,
		"segments": info.Segments,
		"embedder": embedder.Name(),
	}).Info("document indexed")
	return NewQueryEngine(index, embedder, b.completer, b.template, b.topK, info), nil
}

func (b *EngineBuilder) summarize(segments []domain.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(seg.Text)
		sb.WriteString(" ")
	}
	summary, err := b.summarizer.Summarize(sb.String(), b.maxSentences)
	if err != nil {
		b.log.WithError(err).Warn("summary unavailable")
		return ""
	}
	return summary
}

func countPages(segments []domain.Segment) int {
	pages := map[int]struct{}{}
	for _, seg := range segments {
		pages[seg.Page] = struct{}{}
	}
	return len(pages)
}

// StorageKey derives a storage-safe name from an arbitrary key.
func StorageKey(key string) string {
	h := sha1.Sum([]byte(key))
	return hex.EncodeToString(h[:8])
}

// String implements fmt.Stringer for log output.
func (i DocumentInfo) String() string {
	return fmt.Sprintf("%s (%d pages, %d segments)", i.Source, i.Pages, i.Segments)
}
