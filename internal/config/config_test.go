package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Completion.Provider)
	assert.Equal(t, "https://api.deepseek.com", cfg.Completion.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.Completion.Model)
	assert.Equal(t, 1024, cfg.Completion.MaxTokens)
	assert.Equal(t, "ollama", cfg.Chat.Provider)
	assert.Equal(t, "llama3.2", cfg.Chat.Model)
	assert.Equal(t, "bge-large", cfg.Embedder.Model)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, DefaultQATemplate, cfg.Prompt.QATemplate)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Zero(t, cfg.Cache.MaxEntries)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
completion:
  provider: openai
  base_url: http://file.example
  api_key_env: TEST_RAGCHAT_KEY
  model: file-model
embedder:
  type: tfidf
retrieval:
  top_k: 4
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("TEST_RAGCHAT_KEY", "secret")
	t.Setenv("RAGCHAT_COMPLETION_URL", "http://env.example")
	t.Setenv("RAGCHAT_EMBED_DEVICE", "cpu")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env.example", cfg.Completion.BaseURL)
	assert.Equal(t, "file-model", cfg.Completion.Model)
	assert.Equal(t, "secret", cfg.Completion.APIKey)
	assert.Equal(t, "cpu", cfg.Embedder.Device)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "ragchat_", cfg.VectorStore.Qdrant.CollectionPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitZeroKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
completion:
  provider: ollama
  max_tokens: 0
  temperature: 0
chunker:
  overlap_sentences: 0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.Chunker.OverlapSentences)
	assert.Equal(t, 5, cfg.Chunker.SentencesPerChunk)
	assert.Zero(t, cfg.Completion.MaxTokens)
	assert.Zero(t, cfg.Completion.Temperature)
	assert.Equal(t, 120, cfg.Completion.TimeoutSecs)
	assert.Equal(t, "http://localhost:11434", cfg.Completion.BaseURL)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("completion: [1, 2"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		cfg := defaultConfig()
		cfg.Completion.APIKey = "k"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing credential", func(t *testing.T) {
		cfg := valid()
		cfg.Completion.APIKey = ""
		assert.ErrorIs(t, cfg.Validate(), domain.ErrConfig)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.Completion.BaseURL = ""
		assert.ErrorIs(t, cfg.Validate(), domain.ErrConfig)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := valid()
		cfg.Completion.Provider = "bard"
		assert.ErrorIs(t, cfg.Validate(), domain.ErrConfig)
	})

	t.Run("template without query placeholder", func(t *testing.T) {
		cfg := valid()
		cfg.Prompt.QATemplate = "Context: {context_str}"
		assert.ErrorIs(t, cfg.Validate(), domain.ErrConfig)
	})

	t.Run("qdrant without url", func(t *testing.T) {
		cfg := valid()
		cfg.VectorStore.Type = "qdrant"
		assert.ErrorIs(t, cfg.Validate(), domain.ErrConfig)
	})

	t.Run("openai embedder without key", func(t *testing.T) {
		cfg := valid()
		cfg.Embedder.Type = "openai"
		assert.ErrorIs(t, cfg.Validate(), domain.ErrConfig)
	})

	t.Run("ollama chat needs no key", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.ValidateChat())
	})
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7
	cfg.Completion.APIKey = "never-written"
	require.NoError(t, Save(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.TopK)
	assert.Equal(t, "from-env", loaded.Completion.APIKey)
}
