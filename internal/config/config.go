package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ragchat/internal/domain"
)

// DefaultQATemplate asks the model to answer from the retrieved context only.
const DefaultQATemplate = "Context information is below.\n" +
	"---------------------\n" +
	"{context_str}\n" +
	"---------------------\n" +
	"Given the context information above I want you to think step by step to answer the query in a crisp manner, " +
	"in case you don't know the answer say 'I don't know!'.\n" +
	"Query: {query_str}\n" +
	"Answer: "

const (
	DefaultSystemPrompt     = "You are a helpful assistant ready to chat. Answer the user's questions as clearly and concisely as possible."
	DefaultQuestionTemplate = "Question: {question}"
)

// CompletionConfig configures a text completion service.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	APIKey      string  `yaml:"-"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string `yaml:"type"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	APIKey      string `yaml:"-"`
	Model       string `yaml:"model"`
	Device      string `yaml:"device"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ChunkerConfig configures how pages are split into segments.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// Every query engine gets its own collection named CollectionPrefix + key hash.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// RetrievalConfig configures the query engine.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// PromptConfig holds the prompt templates. Templates use {name} placeholders.
type PromptConfig struct {
	QATemplate string `yaml:"qa_template"`
	System     string `yaml:"system"`
	Question   string `yaml:"question"`
}

// CacheConfig is the eviction policy of the session cache.
// Zero values keep engines for the whole session.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTLSecs    int `yaml:"ttl_secs"`
}

// SummarizerConfig configures the document summary shown after indexing.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Completion  CompletionConfig  `yaml:"completion"`
	Chat        CompletionConfig  `yaml:"chat"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Cache       CacheConfig       `yaml:"cache"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, defaults are used.
// Environment overrides and credentials are applied afterwards; the result is not validated.
func Load(path string) (*AppConfig, error) {
	loadDotEnv()
	cfg := baseConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrConfig, path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfig, path, err)
		}
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	resolveCredentials(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err != nil {
		if err := Save(userPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports missing or inconsistent settings as domain.ErrConfig.
func (c *AppConfig) Validate() error {
	if err := c.Completion.Validate(); err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	switch c.Chunker.Type {
	case "sentence", "recursive", "token":
	default:
		return fmt.Errorf("%w: unknown chunker %q", domain.ErrConfig, c.Chunker.Type)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return fmt.Errorf("%w: qdrant url missing", domain.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector store %q", domain.ErrConfig, c.VectorStore.Type)
	}
	for _, ph := range []string{"{context_str}", "{query_str}"} {
		if !strings.Contains(c.Prompt.QATemplate, ph) {
			return fmt.Errorf("%w: qa_template must contain %s", domain.ErrConfig, ph)
		}
	}
	return nil
}

// ValidateChat checks the settings used by the plain chat application.
func (c *AppConfig) ValidateChat() error {
	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if !strings.Contains(c.Prompt.Question, "{question}") {
		return fmt.Errorf("%w: question template must contain {question}", domain.ErrConfig)
	}
	return nil
}

// Validate checks that the completion service can be reached without a network call.
func (c CompletionConfig) Validate() error {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, c.APIKeyEnv)
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: unknown provider %q", domain.ErrConfig, c.Provider)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("%w: missing base_url", domain.ErrConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: missing model", domain.ErrConfig)
	}
	return nil
}

// Validate checks the embedder settings.
func (c EmbedderConfig) Validate() error {
	switch c.Type {
	case "tfidf":
		return nil
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, c.APIKeyEnv)
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: unknown embedder %q", domain.ErrConfig, c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: missing embedding model", domain.ErrConfig)
	}
	return nil
}

func loadDotEnv() {
	_ = godotenv.Load()
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

// baseConfig holds the defaults that do not depend on the selected providers.
// Files are decoded on top of it, so an explicit zero in the file is kept.
func baseConfig() *AppConfig {
	return &AppConfig{
		Completion: CompletionConfig{MaxTokens: 1024, TimeoutSecs: 120},
		Chat:       CompletionConfig{MaxTokens: 1024, TimeoutSecs: 120},
		Embedder:   EmbedderConfig{Device: "cuda", BatchSize: 32, TimeoutSecs: 60},
		Chunker: ChunkerConfig{
			Type:              "sentence",
			SentencesPerChunk: 5,
			OverlapSentences:  1,
			ChunkSize:         1024,
			ChunkOverlap:      20,
		},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval:   RetrievalConfig{TopK: 2},
		Prompt: PromptConfig{
			QATemplate: DefaultQATemplate,
			System:     DefaultSystemPrompt,
			Question:   DefaultQuestionTemplate,
		},
		Summarizer: SummarizerConfig{MaxSentences: 3},
		Log:        LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3},
	}
}

func defaultConfig() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// applyEnv lets the environment override the file for the recognised options.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("RAGCHAT_COMPLETION_URL"); v != "" {
		cfg.Completion.BaseURL = v
	}
	if v := os.Getenv("RAGCHAT_COMPLETION_MODEL"); v != "" {
		cfg.Completion.Model = v
	}
	if v := os.Getenv("RAGCHAT_EMBED_MODEL"); v != "" {
		cfg.Embedder.Model = v
	}
	if v := os.Getenv("RAGCHAT_EMBED_DEVICE"); v != "" {
		cfg.Embedder.Device = v
	}
	if v := os.Getenv("RAGCHAT_QA_TEMPLATE"); v != "" {
		cfg.Prompt.QATemplate = v
	}
	if v := os.Getenv("RAGCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func resolveCredentials(cfg *AppConfig) {
	cfg.Completion.APIKey = os.Getenv(cfg.Completion.APIKeyEnv)
	cfg.Chat.APIKey = os.Getenv(cfg.Chat.APIKeyEnv)
	cfg.Embedder.APIKey = os.Getenv(cfg.Embedder.APIKeyEnv)
}

// applyCompletionDefaults fills the settings that depend on the provider.
func applyCompletionDefaults(c *CompletionConfig, provider, model string) {
	if c.Provider == "" {
		c.Provider = provider
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case "openai":
			c.BaseURL = "https://api.deepseek.com"
		case "ollama":
			c.BaseURL = "http://localhost:11434"
		}
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
}

// applyConfigDefaults fills empty settings that have no usable zero value.
func applyConfigDefaults(cfg *AppConfig) {
	applyCompletionDefaults(&cfg.Completion, "openai", "deepseek-chat")
	applyCompletionDefaults(&cfg.Chat, "ollama", "llama3.2")

	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "ollama"
	}
	if e.Model == "" && e.Type == "ollama" {
		e.Model = "bge-large"
	}
	if e.Model == "" && e.Type == "openai" {
		e.Model = "text-embedding-3-small"
	}
	if e.BaseURL == "" {
		switch e.Type {
		case "ollama":
			e.BaseURL = "http://localhost:11434"
		case "openai":
			e.BaseURL = "https://api.openai.com/v1"
		}
	}
	if e.APIKeyEnv == "" {
		e.APIKeyEnv = "OPENAI_API_KEY"
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "ragchat_"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Prompt.QATemplate == "" {
		cfg.Prompt.QATemplate = DefaultQATemplate
	}
	if cfg.Prompt.System == "" {
		cfg.Prompt.System = DefaultSystemPrompt
	}
	if cfg.Prompt.Question == "" {
		cfg.Prompt.Question = DefaultQuestionTemplate
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
