// Package app holds the two chat backends driven by the terminal UI.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"ragchat/internal/chat"
	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/service"
	"ragchat/internal/session"
	"ragchat/internal/stream"
)

// User-facing status messages.
const (
	StatusIndexing   = "Indexing your document..."
	StatusReady      = "Ready to Chat!"
	StatusNoDocument = "No document available. Please upload a PDF"
)

// ErrNoDocument is returned when a question is asked before a PDF is open.
var ErrNoDocument = fmt.Errorf("%w: %s", domain.ErrRetrieval, StatusNoDocument)

// Answer is a streamed reply with the segments it was grounded on, if any.
type Answer struct {
	*stream.Stream
	Sources []domain.SearchResult
}

// PDFChat answers questions about the PDF opened in its session.
type PDFChat struct {
	session  *session.Session
	registry *session.Registry
	engines  *session.Cache[*service.QueryEngine]
	builder  *service.EngineBuilder
	log      *logrus.Logger
}

// NewPDFChat starts a session in registry.
func NewPDFChat(registry *session.Registry, engines *session.Cache[*service.QueryEngine], builder *service.EngineBuilder) *PDFChat {
	return &PDFChat{
		session:  registry.Start(),
		registry: registry,
		engines:  engines,
		builder:  builder,
		log:      logger.GetLogger(),
	}
}

func (p *PDFChat) Title() string { return "Chat with your PDF" }

// SessionID identifies the session of this chat.
func (p *PDFChat) SessionID() string { return p.session.ID }

// History returns the conversation so far.
func (p *PDFChat) History() []domain.Message { return p.session.History() }

// OpenFile reads a PDF from disk and opens it.
func (p *PDFChat) OpenFile(ctx context.Context, path string, progress service.Progress) (service.DocumentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.DocumentInfo{}, fmt.Errorf("%w: %w", domain.ErrLoad, err)
	}
	return p.Open(ctx, filepath.Base(path), data, progress)
}

// Open indexes an uploaded document, or reuses the engine already built for
// it in this session, and makes it the active document.
func (p *PDFChat) Open(ctx context.Context, filename string, data []byte, progress service.Progress) (service.DocumentInfo, error) {
	key := session.Key{SessionID: p.session.ID, Filename: filename}
	engine, err := p.engines.GetOrBuild(ctx, key, func(ctx context.Context) (*service.QueryEngine, error) {
		p.log.WithField("file", filename).Info(StatusIndexing)
		return p.builder.Build(ctx, key.String(), filename, data, progress)
	})
	if err != nil {
		return service.DocumentInfo{}, err
	}
	p.session.SetDocument(filename)
	return engine.Info(), nil
}

// Document describes the active document.
func (p *PDFChat) Document() (service.DocumentInfo, bool) {
	engine, ok := p.engine()
	if !ok {
		return service.DocumentInfo{}, false
	}
	return engine.Info(), true
}

func (p *PDFChat) engine() (*service.QueryEngine, bool) {
	name := p.session.Document()
	if name == "" {
		return nil, false
	}
	return p.engines.Get(session.Key{SessionID: p.session.ID, Filename: name})
}

// Ask streams the answer to question from the active document.
func (p *PDFChat) Ask(ctx context.Context, question string) (*Answer, error) {
	engine, ok := p.engine()
	if !ok {
		return nil, ErrNoDocument
	}
	resp, err := engine.QueryStream(ctx, question)
	if err != nil {
		return nil, err
	}
	return &Answer{Stream: record(ctx, p.session, question, resp.Stream), Sources: resp.Sources}, nil
}

// Clear resets the conversation. The document stays open.
func (p *PDFChat) Clear() { p.registry.Clear(p.session.ID) }

// Close ends the session and releases its engines.
func (p *PDFChat) Close() error {
	p.registry.End(p.session.ID)
	return nil
}

// LLMChat is a plain chat with the language model.
type LLMChat struct {
	session   *session.Session
	registry  *session.Registry
	assistant *chat.Assistant
}

func NewLLMChat(registry *session.Registry, assistant *chat.Assistant) *LLMChat {
	return &LLMChat{session: registry.Start(), registry: registry, assistant: assistant}
}

func (c *LLMChat) Title() string { return "Chat with LLM" }

func (c *LLMChat) History() []domain.Message { return c.session.History() }

// Ask streams the model's answer to question.
func (c *LLMChat) Ask(ctx context.Context, question string) (*Answer, error) {
	s, err := c.assistant.AskStream(ctx, question)
	if err != nil {
		return nil, err
	}
	return &Answer{Stream: record(ctx, c.session, question, s)}, nil
}

func (c *LLMChat) Clear() { c.registry.Clear(c.session.ID) }

func (c *LLMChat) Close() error {
	c.registry.End(c.session.ID)
	return nil
}

// record relays inner. The exchange is added to the session history only once
// the answer has been read to the end without error.
func record(ctx context.Context, sess *session.Session, question string, inner *stream.Stream) *stream.Stream {
	return stream.New(ctx, func(ctx context.Context, emit func(context.Context, string) error) error {
		defer inner.Close()
		stop := context.AfterFunc(ctx, inner.Cancel)
		defer stop()
		for inner.Next() {
			if err := emit(ctx, inner.Chunk()); err != nil {
				return err
			}
		}
		if err := inner.Err(); err != nil {
			return err
		}
		sess.Append(domain.RoleUser, question)
		sess.Append(domain.RoleAssistant, inner.Text())
		return nil
	})
}
