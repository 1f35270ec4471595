package app

import (
	"time"

	"ragchat/internal/chat"
	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/embedding"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/service"
	"ragchat/internal/session"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore"
)

// LoadConfig reads the config at path, or the default locations when path is empty.
func LoadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

// NewPDFChatFromConfig validates cfg and assembles the PDF chat pipeline.
// Nothing talks to the network until a document is opened.
func NewPDFChatFromConfig(cfg *config.AppConfig) (*PDFChat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	completer, err := llm.New(cfg.Completion)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	embedders, err := embedding.NewFactory(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	stores, err := vectorstore.NewFactory(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	builder, err := service.NewEngineBuilder(cfg, service.BuilderDeps{
		Loader:     loader.NewPDFLoader(ch),
		Embedders:  embedders,
		Stores:     stores,
		Completer:  completer,
		Summarizer: summarizer.NewFrequencySummarizer(),
	})
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry()
	engines := session.NewCache[*service.QueryEngine](cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSecs)*time.Second)
	registry.OnEnd(func(id string) { engines.EvictSession(id) })
	return NewPDFChat(registry, engines, builder), nil
}

// NewLLMChatFromConfig validates the chat settings of cfg and assembles the plain chat.
func NewLLMChatFromConfig(cfg *config.AppConfig) (*LLMChat, error) {
	if err := cfg.ValidateChat(); err != nil {
		return nil, err
	}
	client, err := llm.New(cfg.Chat)
	if err != nil {
		return nil, err
	}
	assistant, err := chat.NewAssistant(client, cfg.Prompt.System, cfg.Prompt.Question)
	if err != nil {
		return nil, err
	}
	return NewLLMChat(session.NewRegistry(), assistant), nil
}
