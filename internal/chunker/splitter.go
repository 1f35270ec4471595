package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"ragchat/internal/config"
	"ragchat/internal/domain"
)

// SplitterChunker adapts a langchaingo text splitter to domain.Chunker.
type SplitterChunker struct {
	splitter textsplitter.TextSplitter
}

func NewSplitterChunker(splitter textsplitter.TextSplitter) *SplitterChunker {
	return &SplitterChunker{splitter: splitter}
}

func (c *SplitterChunker) Chunk(document domain.Document) ([]domain.Segment, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(document.Content)
	if err != nil {
		return nil, err
	}
	texts := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			texts = append(texts, p)
		}
	}
	return segments(document, texts), nil
}

// New builds the chunker selected by cfg.Type.
func New(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "sentence", "":
		return NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	case "recursive":
		return NewSplitterChunker(textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		)), nil
	case "token":
		return NewSplitterChunker(textsplitter.NewTokenSplitter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		)), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunker %q", domain.ErrConfig, cfg.Type)
	}
}

// segments numbers texts within a page. Index is page-local here; the
// loader renumbers across the whole file.
func segments(document domain.Document, texts []string) []domain.Segment {
	out := make([]domain.Segment, 0, len(texts))
	for i, text := range texts {
		out = append(out, domain.Segment{
			DocumentID: document.ID,
			SegmentID:  document.ID + ":" + strconv.Itoa(document.Page) + ":" + strconv.Itoa(i),
			Source:     document.Source,
			Page:       document.Page,
			Index:      i,
			Text:       text,
		})
	}
	return out
}
