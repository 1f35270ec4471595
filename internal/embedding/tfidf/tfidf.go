// Package tfidf is an offline embedder for running without an embedding service.
package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Embedder is a TF-IDF vectorizer fitted to a single document. Prepare must be
// called with the segment texts before anything is embedded.
type Embedder struct {
	mu    sync.RWMutex
	terms map[string]int
	idf   []float64
	stop  map[string]struct{}
}

// NewEmbedder creates an unfitted embedder.
func NewEmbedder() *Embedder {
	return &Embedder{stop: stopwords}
}

func (e *Embedder) Name() string { return "tfidf" }

// Prepare fits the vocabulary and smoothed IDF weights to corpus.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("tfidf: empty corpus")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		for term := range e.counts(text) {
			df[term]++
		}
	}
	if len(df) == 0 {
		return errors.New("tfidf: corpus has no indexable words")
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	slices.Sort(vocab)

	terms := make(map[string]int, len(vocab))
	idf := make([]float64, len(vocab))
	n := float64(len(corpus))
	for i, term := range vocab {
		terms[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.terms, e.idf = terms, idf
	return nil
}

// Dimension is the vocabulary size, or 0 before Prepare.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idf)
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.vector(text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text)
}

// vector returns the unit-length TF-IDF vector of text, using sublinear term
// frequency. Text sharing no word with the corpus maps to the zero vector.
func (e *Embedder) vector(text string) ([]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.terms == nil {
		return nil, errors.New("tfidf: Prepare has not been called")
	}
	v := make([]float64, len(e.idf))
	sum := 0.0
	for term, n := range e.counts(text) {
		i, ok := e.terms[term]
		if !ok {
			continue
		}
		w := (1 + math.Log(float64(n))) * e.idf[i]
		v[i] = w
		sum += w * w
	}
	if sum > 0 {
		norm := math.Sqrt(sum)
		for i := range v {
			v[i] /= norm
		}
	}
	return v, nil
}

// counts returns how often each non-stopword occurs in text.
func (e *Embedder) counts(text string) map[string]int {
	out := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, skip := e.stop[tok]; !skip {
			out[tok]++
		}
	}
	return out
}

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`a an the and or but if then else for to of in on at by with as
		is are was were be been being it its this that these those from up down over under
		again further than so such into about between through during before after above below
		out off own same too very can will just don should now what which who how do does did`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
