// Package tui provides an interactive multi-turn chat over the query
// pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
)

// QueryPort is the TUI-facing subset of the query pipeline.
type QueryPort interface {
	Answer(ctx context.Context, question string, opts domain.Options) (*domain.QueryResult, error)
}

type exchange struct {
	question string
	result   *domain.QueryResult
	err      error
}

type answerMsg exchange

// Model is the Bubble Tea model for the chat session.
type Model struct {
	service  QueryPort
	opts     domain.Options
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	status   string
	waiting  bool
	ready    bool
}

// New creates a chat model bound to a session. Every question goes through
// the pipeline with conversation memory enabled.
func New(service QueryPort, opts domain.Options) Model {
	opts.Conversational = true
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		opts:     opts,
		input:    ti,
		viewport: vp,
		status:   fmt.Sprintf("Session %s. Type to ask.", opts.SessionID),
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and input boxes
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header + status + input frame + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case answerMsg:
		m.waiting = false
		m.history = append(m.history, exchange(msg))
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else if msg.result.CacheHit {
			m.status = fmt.Sprintf("Answered from cache in %.2fs", msg.result.Elapsed.Seconds())
		} else {
			m.status = fmt.Sprintf("Answered in %.2fs", msg.result.Elapsed.Seconds())
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.input.SetValue("")
				m.waiting = true
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	service, opts := m.service, m.opts
	return func() tea.Msg {
		result, err := service.Answer(context.Background(), question, opts)
		return answerMsg{question: question, result: result, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docqa chat")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var sb strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(questionStyle.Render("You: " + ex.question))
		sb.WriteString("\n")
		if ex.err != nil {
			sb.WriteString(errorStyle.Render(ex.err.Error()))
			continue
		}
		sb.WriteString(ex.result.Answer)
		if len(ex.result.Sources) > 0 {
			pages := make([]string, len(ex.result.Sources))
			for j, src := range ex.result.Sources {
				pages[j] = fmt.Sprintf("p.%d", src.Page)
			}
			sb.WriteString("\n")
			sb.WriteString(sourceStyle.Render("Sources: " + strings.Join(pages, ", ")))
		}
	}
	return sb.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
