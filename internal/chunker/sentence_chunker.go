package chunker

import (
	"regexp"
	"strings"

	"ragchat/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?s)[^.!?]+[.!?]+|[^.!?]+$`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Segment, error) {
	var sentences []string
	for _, s := range c.splitter.FindAllString(document.Content, -1) {
		if s = collapseSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return nil, nil
	}
	var texts []string
	i := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		texts = append(texts, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return segments(document, texts), nil
}

// collapseSpace joins the hard-wrapped lines PDF extraction produces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
