package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

// Session is the state of one chat session.
type Session struct {
	ID string

	mu       sync.Mutex
	history  []domain.Message
	document string
}

// Append adds a message to the history.
func (s *Session) Append(role domain.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, domain.Message{Role: role, Content: content})
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.history...)
}

// Clear resets the conversation history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Document returns the filename of the active document, if any.
func (s *Session) Document() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document
}

func (s *Session) SetDocument(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = filename
}

// Registry tracks live sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	onEnd    []func(sessionID string)
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// OnEnd registers fn to run when a session ends.
func (r *Registry) OnEnd(fn func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnd = append(r.onEnd, fn)
}

// Start creates a session with a random id.
func (r *Registry) Start() *Session {
	s := &Session{ID: uuid.NewString()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Clear resets the history of a session. Cached engines are kept.
func (r *Registry) Clear(id string) bool {
	s, ok := r.Get(id)
	if ok {
		s.Clear()
	}
	return ok
}

// End removes a session and runs the OnEnd callbacks.
func (r *Registry) End(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	hooks := slices.Clone(r.onEnd)
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, fn := range hooks {
		fn(id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
