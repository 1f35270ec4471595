package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/llm"
	"ragchat/internal/llm/llmtest"
	"ragchat/internal/stream"
	"ragchat/internal/vectorstore/memory"
)

// keywordEmbedder maps text onto counts of a fixed vocabulary.
type keywordEmbedder struct {
	vocab    []string
	failAt   int // fail the n-th EmbedDocuments call when > 0
	queryErr error

	mu    sync.Mutex
	calls int
}

func (k *keywordEmbedder) Name() string            { return "keyword" }
func (k *keywordEmbedder) Prepare(_ []string) error { return nil }

func (k *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	k.mu.Lock()
	k.calls++
	call := k.calls
	k.mu.Unlock()
	if k.failAt > 0 && call == k.failAt {
		return nil, errors.New("embedding service timed out")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = k.vec(t)
	}
	return out, nil
}

func (k *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	if k.queryErr != nil {
		return nil, k.queryErr
	}
	return k.vec(text), nil
}

func (k *keywordEmbedder) vec(text string) []float64 {
	v := make([]float64, len(k.vocab))
	lower := strings.ToLower(text)
	for i, w := range k.vocab {
		v[i] = float64(strings.Count(lower, w))
	}
	return v
}

var vocab = []string{"raft", "leader", "bread", "flour", "yeast", "paris"}

func segments(texts ...string) []domain.Segment {
	out := make([]domain.Segment, len(texts))
	for i, t := range texts {
		out[i] = domain.Segment{DocumentID: "d", SegmentID: "d:1:" + t, Source: "doc.pdf", Page: 1, Index: i, Text: t}
	}
	return out
}

var corpus = segments(
	"Raft elects a leader.",
	"Bread needs flour and yeast.",
	"The leader of Raft sends heartbeats.",
	"Paris is the capital of France.",
)

func buildEngine(t *testing.T, model *llmtest.Model, topK int) (*QueryEngine, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	emb := &keywordEmbedder{vocab: vocab}
	idx, err := BuildIndex(context.Background(), corpus, emb, store, BuildOptions{BatchSize: 3})
	require.NoError(t, err)
	tmpl, err := NewQATemplate(config.DefaultQATemplate)
	require.NoError(t, err)
	client := llm.NewWithModel("stub", model, config.CompletionConfig{})
	return NewQueryEngine(idx, emb, client, tmpl, topK, DocumentInfo{Source: "doc.pdf"}), store
}

func TestBuildIndex_OneVectorPerSegment(t *testing.T) {
	store := memory.NewStorage()
	var progress [][2]int
	idx, err := BuildIndex(context.Background(), corpus, &keywordEmbedder{vocab: vocab}, store, BuildOptions{
		BatchSize: 3,
		Progress:  func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})
	require.NoError(t, err)
	assert.Equal(t, len(corpus), idx.Size())
	assert.Equal(t, len(corpus), store.Len())
	assert.Equal(t, [][2]int{{3, 4}, {4, 4}}, progress)

	res, err := store.Search(context.Background(), []float64{1, 0, 0, 0, 0, 0}, 4)
	require.NoError(t, err)
	for _, r := range res {
		assert.LessOrEqual(t, r.Score, 1.0+1e-9, "stored vectors are unit length")
	}
}

func TestBuildIndex_FailureLeavesNothing(t *testing.T) {
	store := memory.NewStorage()
	_, err := BuildIndex(context.Background(), corpus, &keywordEmbedder{vocab: vocab, failAt: 2}, store, BuildOptions{BatchSize: 2})
	assert.ErrorIs(t, err, domain.ErrIndexBuild)
	assert.Equal(t, 0, store.Len(), "partial index is cleared")

	_, err = BuildIndex(context.Background(), nil, &keywordEmbedder{vocab: vocab}, store, BuildOptions{})
	assert.ErrorIs(t, err, domain.ErrIndexBuild)
}

func TestQuery_RetrievesTopTwoInOrder(t *testing.T) {
	model := &llmtest.Model{Reply: "A leader is elected."}
	engine, _ := buildEngine(t, model, 0)

	resp, err := engine.Query(context.Background(), "Who is the Raft leader?")
	require.NoError(t, err)
	assert.Equal(t, "A leader is elected.", resp.Text)
	require.Len(t, resp.Sources, 2)
	// both Raft segments score equally; segment order breaks the tie
	assert.Equal(t, 0, resp.Sources[0].Segment.Index)
	assert.Equal(t, 2, resp.Sources[1].Segment.Index)

	prompt := model.Prompts()[0]
	assert.Contains(t, prompt, "Raft elects a leader.\n\nThe leader of Raft sends heartbeats.")
	assert.Contains(t, prompt, "Query: Who is the Raft leader?")
	assert.NotContains(t, prompt, "Bread")
}

func TestQuery_OffTopicContextSaysDontKnow(t *testing.T) {
	model := &llmtest.Model{Respond: func(prompt string) string {
		if strings.Contains(prompt, "Paris") {
			return "Paris."
		}
		return domain.DontKnow
	}}
	engine, _ := buildEngine(t, model, 1)

	resp, err := engine.Query(context.Background(), "How is bread made?")
	require.NoError(t, err)
	assert.Equal(t, domain.DontKnow, resp.Text)
}

func TestQueryStream_MatchesQuery(t *testing.T) {
	model := &llmtest.Model{Reply: "Raft uses a single leader to replicate the log.", Chunks: 6}
	engine, _ := buildEngine(t, model, 2)

	full, err := engine.Query(context.Background(), "raft leader")
	require.NoError(t, err)

	s, err := engine.QueryStream(context.Background(), "raft leader")
	require.NoError(t, err)
	assert.Equal(t, full.Sources, s.Sources)

	var chunks []string
	for s.Next() {
		chunks = append(chunks, s.Chunk())
	}
	require.NoError(t, s.Err())
	require.NoError(t, s.Close())
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, full.Text, strings.Join(chunks, ""))
}

func TestQuery_Errors(t *testing.T) {
	tmpl, err := NewQATemplate(config.DefaultQATemplate)
	require.NoError(t, err)
	client := llm.NewWithModel("stub", &llmtest.Model{Reply: "x"}, config.CompletionConfig{})

	empty := NewQueryEngine(nil, &keywordEmbedder{vocab: vocab}, client, tmpl, 2, DocumentInfo{})
	_, err = empty.Query(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrRetrieval)
	_, err = empty.QueryStream(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrRetrieval)

	engine, _ := buildEngine(t, &llmtest.Model{Reply: "x"}, 2)
	engine.embedder = &keywordEmbedder{vocab: vocab, queryErr: errors.New("embedder down")}
	_, err = engine.Query(context.Background(), "raft")
	assert.ErrorIs(t, err, domain.ErrRetrieval)

	failing, _ := buildEngine(t, &llmtest.Model{Err: errors.New("503")}, 2)
	_, err = failing.Query(context.Background(), "raft")
	assert.ErrorIs(t, err, domain.ErrGeneration)

	s, err := failing.QueryStream(context.Background(), "raft")
	require.NoError(t, err)
	_, err = stream.Collect(s.Stream)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestQueryEngine_ConcurrentQueries(t *testing.T) {
	engine, _ := buildEngine(t, &llmtest.Model{Reply: "ok"}, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := engine.Query(context.Background(), "bread flour")
			assert.NoError(t, err)
			assert.Equal(t, "ok", resp.Text)
		}()
	}
	wg.Wait()
}

func TestQueryEngine_Close(t *testing.T) {
	engine, store := buildEngine(t, &llmtest.Model{Reply: "ok"}, 2)
	require.NoError(t, engine.Close())
	assert.Equal(t, 0, store.Len())

	_, err := engine.Query(context.Background(), "raft")
	assert.ErrorIs(t, err, domain.ErrRetrieval)
}

func TestQueryEngine_CloseDuringQueries(t *testing.T) {
	engine, store := buildEngine(t, &llmtest.Model{Reply: "ok"}, 2)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				resp, err := engine.Query(context.Background(), "raft leader")
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrRetrieval)
					continue
				}
				assert.Equal(t, "ok", resp.Text)
			}
		}()
	}
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	wg.Wait()

	assert.Equal(t, 0, store.Len())
	_, err := engine.Query(context.Background(), "raft")
	assert.ErrorIs(t, err, domain.ErrRetrieval)
}

func TestQATemplate(t *testing.T) {
	_, err := NewQATemplate("no placeholders here")
	assert.ErrorIs(t, err, domain.ErrConfig)

	tmpl, err := NewQATemplate("C: {context_str} Q: {query_str}")
	require.NoError(t, err)
	out, err := tmpl.Render("with {braces}", "why?")
	require.NoError(t, err)
	assert.Equal(t, "C: with {braces} Q: why?", out)

	assert.Equal(t, "a\n\nb", JoinContext([]domain.SearchResult{
		{Segment: domain.Segment{Text: "a"}},
		{Segment: domain.Segment{Text: "b"}},
	}))
}
