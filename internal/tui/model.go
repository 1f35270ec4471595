package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/app"
	"ragchat/internal/domain"
	"ragchat/internal/service"
	"ragchat/internal/stream"
)

const cursorGlyph = "▌"

// Backend is the chat the UI talks to.
type Backend interface {
	Title() string
	Ask(ctx context.Context, question string) (*app.Answer, error)
	Clear()
}

// DocumentBackend is a Backend that answers from an opened document.
type DocumentBackend interface {
	Backend
	OpenFile(ctx context.Context, path string, progress service.Progress) (service.DocumentInfo, error)
}

// Options configures optional behaviour of the UI.
type Options struct {
	// InitialFile is opened on start.
	InitialFile string
	// Files delivers paths to open, e.g. from a watched upload directory.
	Files <-chan string
}

type entry struct {
	role domain.Role
	text string
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	ctx      context.Context
	backend  Backend
	docs     DocumentBackend
	opts     Options
	input    textinput.Model
	viewport viewport.Model

	transcript  []entry
	answer      *app.Answer
	sources     []domain.SearchResult
	showSources bool
	lastQuery   string
	document    *service.DocumentInfo
	indexing    bool
	pending     []string
	progress    chan progressMsg
	status      string
	ready       bool
	width       int
}

type (
	chunkMsg struct {
		answer *app.Answer
		chunk  string
	}
	answerDoneMsg struct {
		answer *app.Answer
		err    error
	}
	openedMsg struct {
		info service.DocumentInfo
		err  error
	}
	progressMsg struct{ done, total int }
	fileMsg     string
)

// New creates the UI model. When backend also implements DocumentBackend the
// /open command and document header are enabled.
func New(ctx context.Context, backend Backend, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	m := Model{ctx: ctx, backend: backend, opts: opts, input: ti, viewport: vp}
	if docs, ok := backend.(DocumentBackend); ok {
		m.docs = docs
		m.status = app.StatusNoDocument
		m.input.Placeholder = "Ask about your PDF, or /open PATH"
	} else {
		m.status = app.StatusReady
	}
	return m
}

// Init starts the cursor blink, the initial upload and the file feed.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.docs != nil && m.opts.InitialFile != "" {
		cmds = append(cmds, func() tea.Msg { return fileMsg(m.opts.InitialFile) })
	}
	if m.opts.Files != nil {
		cmds = append(cmds, waitForFile(m.opts.Files))
	}
	return tea.Batch(cmds...)
}

// Update handles key, window and pipeline events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := m.headerLines() + 1 + ih + 1 + th // header, input line, status
		m.viewport.Width = max(20, msg.Width-transcriptBoxStyle.GetHorizontalFrameSize())
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-inputBoxStyle.GetHorizontalFrameSize()-len(m.input.Prompt))
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.answer != nil {
				m.answer.Cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.answer != nil {
				m.answer.Cancel()
				m.status = "Cancelling..."
				return m, nil
			}
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if msg.String() == "ctrl+s" {
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		}

	case chunkMsg:
		if msg.answer != m.answer {
			return m, nil
		}
		m.transcript[len(m.transcript)-1].text += msg.chunk
		m.refresh()
		return m, nextChunk(msg.answer)

	case answerDoneMsg:
		if msg.answer != m.answer {
			return m, nil
		}
		_ = m.answer.Close()
		m.answer = nil
		last := &m.transcript[len(m.transcript)-1]
		switch {
		case msg.err == nil:
			m.status = m.readyStatus()
		case stream.IsCanceled(msg.err):
			last.text += " [cancelled]"
			m.status = m.readyStatus()
		default:
			if last.text == "" {
				m.transcript = m.transcript[:len(m.transcript)-1]
			}
			m.status = errorStatus(msg.err)
		}
		m.refresh()
		return m, nil

	case fileMsg:
		if m.docs == nil {
			return m, waitForFile(m.opts.Files)
		}
		if m.indexing {
			m.pending = append(m.pending, string(msg))
			m.status = fmt.Sprintf("%s %s queued.", app.StatusIndexing, filepath.Base(string(msg)))
			return m, waitForFile(m.opts.Files)
		}
		cmd := m.open(string(msg))
		return m, tea.Batch(cmd, waitForFile(m.opts.Files))

	case progressMsg:
		if !m.indexing {
			return m, nil
		}
		m.status = fmt.Sprintf("%s %d/%d segments", app.StatusIndexing, msg.done, msg.total)
		return m, waitForProgress(m.progress)

	case openedMsg:
		m.indexing = false
		m.progress = nil
		if msg.err != nil {
			m.status = errorStatus(msg.err)
		} else {
			info := msg.info
			m.document = &info
			m.sources = nil
			m.status = app.StatusReady
			m.refresh()
		}
		if len(m.pending) > 0 {
			next := m.pending[0]
			m.pending = m.pending[1:]
			cmd := m.open(next)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.answer != nil {
		return m, nil
	}
	m.input.SetValue("")

	switch {
	case text == "/clear" || text == "clear":
		m.backend.Clear()
		m.transcript = nil
		m.sources = nil
		m.status = "History cleared."
		m.refresh()
		return m, nil
	case strings.HasPrefix(text, "/open"):
		path := strings.TrimSpace(strings.TrimPrefix(text, "/open"))
		if m.docs == nil || path == "" {
			m.status = "Usage: /open PATH (PDF chat only)"
			return m, nil
		}
		if m.indexing {
			m.status = "Already indexing a document."
			return m, nil
		}
		cmd := m.open(path)
		return m, cmd
	}

	if m.indexing {
		m.status = "Please wait until indexing finishes."
		return m, nil
	}
	answer, err := m.backend.Ask(m.ctx, text)
	if err != nil {
		m.status = errorStatus(err)
		return m, nil
	}
	m.lastQuery = text
	m.answer = answer
	m.sources = answer.Sources
	m.transcript = append(m.transcript, entry{role: domain.RoleUser, text: text}, entry{role: domain.RoleAssistant})
	m.status = "Thinking... (esc to cancel)"
	m.refresh()
	return m, nextChunk(answer)
}

// open indexes path in the background and reports progress while it runs.
func (m *Model) open(path string) tea.Cmd {
	m.indexing = true
	m.status = app.StatusIndexing
	progress := make(chan progressMsg, 1)
	m.progress = progress
	docs, ctx := m.docs, m.ctx
	build := func() tea.Msg {
		defer close(progress)
		info, err := docs.OpenFile(ctx, path, func(done, total int) {
			select {
			case progress <- progressMsg{done, total}:
			default:
			}
		})
		return openedMsg{info: info, err: err}
	}
	return tea.Batch(build, waitForProgress(progress))
}

func nextChunk(a *app.Answer) tea.Cmd {
	return func() tea.Msg {
		if a.Next() {
			return chunkMsg{answer: a, chunk: a.Chunk()}
		}
		return answerDoneMsg{answer: a, err: a.Err()}
	}
}

func waitForProgress(ch <-chan progressMsg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return p
	}
}

func waitForFile(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		path, ok := <-ch
		if !ok {
			return nil
		}
		return fileMsg(path)
	}
}

func (m Model) readyStatus() string {
	if m.docs != nil && m.document == nil {
		return app.StatusNoDocument
	}
	return app.StatusReady
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, app.ErrNoDocument):
		return app.StatusNoDocument
	case errors.Is(err, domain.ErrLoad):
		return "Could not read the PDF: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	if !m.showSources {
		m.viewport.GotoBottom()
	}
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	body := transcriptBoxStyle.Render(m.viewport.View())
	return m.renderHeader() + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) headerLines() int {
	if m.docs == nil {
		return 1
	}
	return 3
}

func (m Model) renderHeader() string {
	title := titleStyle.Render(m.backend.Title())
	if m.docs == nil {
		return title
	}
	if m.document == nil {
		return title + "\n" + dimStyle.Render("No document open") + "\n"
	}
	d := m.document
	meta := dimStyle.Render(fmt.Sprintf("%s  %d pages  %d segments", d.Source, d.Pages, d.Segments))
	summary := dimStyle.Width(max(20, m.width)).MaxHeight(1).Render(d.Summary)
	return title + "\n" + meta + "\n" + summary
}

func (m Model) renderTranscript() string {
	width := max(20, m.viewport.Width)
	if m.showSources {
		return m.renderSources(width)
	}
	if len(m.transcript) == 0 {
		if m.docs != nil && m.document == nil {
			return dimStyle.Render("Open a PDF with /open PATH to start.")
		}
		return dimStyle.Render("Ask anything. /clear resets the conversation.")
	}
	var sb strings.Builder
	for i, e := range m.transcript {
		text := e.text
		if m.answer != nil && i == len(m.transcript)-1 {
			text += cursorGlyph
		}
		if e.role == domain.RoleUser {
			sb.WriteString(userStyle.Render("You"))
		} else {
			sb.WriteString(assistantStyle.Render("Assistant"))
		}
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(text))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m Model) renderSources(width int) string {
	if len(m.sources) == 0 {
		return dimStyle.Render("No sources yet. ctrl+s returns to the chat.")
	}
	var sb strings.Builder
	for i, r := range m.sources {
		title := fmt.Sprintf("Source %d/%d  page %d  score=%.3f", i+1, len(m.sources), r.Segment.Page, r.Score)
		sb.WriteString(titleStyle.Render(title))
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(highlightMatch(r.Segment.Text, m.lastQuery)))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	titleStyle         = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)
