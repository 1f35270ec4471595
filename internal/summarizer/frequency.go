package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"ragchat/internal/domain"
)

const maxSentenceRunes = 300

// FrequencySummarizer builds an extractive preview of a document by ranking
// sentences on the normalised frequency of their content words.
type FrequencySummarizer struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	fragmentPattern *regexp.Regexp
	spacePattern    *regexp.Regexp
	stopwords       map[string]struct{}
}

var _ domain.Summarizer = (*FrequencySummarizer)(nil)

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`[^.!?]+[.!?]+`),
		fragmentPattern: regexp.MustCompile(`[^.!?]+[.!?]*`),
		spacePattern:    regexp.MustCompile(`\s+`),
		stopwords:       defaultStopwords(),
	}
}

// Summarize returns up to maxSentences sentences of text in document order.
// Text without sentence punctuation is returned trimmed.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	text = strings.TrimSpace(s.spacePattern.ReplaceAllString(text, " "))
	var sentences []string
	for _, sent := range s.sentencePattern.FindAllString(text, -1) {
		sent = strings.TrimSpace(sent)
		// page numbers, headings and stray punctuation carry no content
		if len(s.tokens(sent)) < 3 {
			continue
		}
		sentences = append(sentences, sent)
	}
	if len(sentences) == 0 {
		return truncate(text, maxSentenceRunes), nil
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok] / maxF
		}
		// damp the advantage of long sentences
		score /= math.Sqrt(float64(len(toks)))
		scores[i] = ranked{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = truncate(sentences[idx], maxSentenceRunes)
	}
	return strings.Join(out, " "), nil
}

// BestMatch splits text into trimmed sentences, keeping a trailing fragment,
// and reports which one shares the most distinct content words with query.
// best is -1 when no sentence shares any; ties go to the earlier sentence.
func (s *FrequencySummarizer) BestMatch(text, query string) (sentences []string, best int) {
	want := map[string]struct{}{}
	for _, tok := range s.tokens(query) {
		want[tok] = struct{}{}
	}
	best, bestHits := -1, 0
	for _, sent := range s.fragmentPattern.FindAllString(text, -1) {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		hits := 0
		for tok := range set(s.tokens(sent)) {
			if _, ok := want[tok]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = len(sentences), hits
		}
		sentences = append(sentences, sent)
	}
	return sentences, best
}

func set(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// tokens returns the lower-cased content words of text.
func (s *FrequencySummarizer) tokens(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"we", "our", "you", "your", "they", "their", "he", "she", "his", "her", "not", "no", "has", "have", "had",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
