package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbedder_RanksMatchingText(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{
		"Goroutines are lightweight threads managed by the Go runtime.",
		"Channels connect concurrent goroutines.",
		"Bread is baked from flour, water and yeast.",
	}
	require.NoError(t, e.Prepare(corpus))
	assert.Greater(t, e.Dimension(), 0)

	docs, err := e.EmbedDocuments(context.Background(), corpus)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for _, v := range docs {
		assert.InDelta(t, 1.0, math.Sqrt(dot(v, v)), 1e-9)
	}

	q, err := e.EmbedQuery(context.Background(), "How is bread baked?")
	require.NoError(t, err)
	assert.Greater(t, dot(q, docs[2]), dot(q, docs[0]))
	assert.Greater(t, dot(q, docs[2]), dot(q, docs[1]))
}

func TestEmbedder_UnknownTermsGiveZeroVector(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta"}))

	q, err := e.EmbedQuery(context.Background(), "gamma")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dot(q, q))
}

func TestEmbedder_Errors(t *testing.T) {
	e := NewEmbedder()
	_, err := e.EmbedQuery(context.Background(), "x")
	assert.Error(t, err, "not prepared")

	assert.Error(t, e.Prepare(nil))
	assert.Error(t, e.Prepare([]string{"the and of"}))

	require.NoError(t, e.Prepare([]string{"alpha"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.EmbedDocuments(ctx, []string{"alpha"})
	assert.ErrorIs(t, err, context.Canceled)
}
