package domain

import "context"

// Document is one page of text extracted from a source file, before chunking.
type Document struct {
	ID      string
	Source  string
	Page    int
	Content string
}

// Segment is a unit of extracted text used for indexing and retrieval.
// Index is the ordinal of the segment within its source file.
type Segment struct {
	DocumentID string
	SegmentID  string
	Source     string
	Page       int
	Index      int
	Text       string
}

// SearchResult represents a matching segment with a relevance score.
type SearchResult struct {
	Segment Segment
	Score   float64
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits a page of text into segments suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Segment, error)
}

// Completer is a text completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream calls onChunk for every fragment of the answer, in order.
	// Returning an error from onChunk aborts generation.
	Stream(ctx context.Context, prompt string, onChunk func(ctx context.Context, chunk string) error) error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
