package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const blankWarning = "Please enter a question first."

// Answerer is the TUI-facing subset of the RAG service
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

type answerMsg struct {
	answer string
	err    error
}

// Model is the Bubble Tea model: one question box, one answer pane
type Model struct {
	ctx      context.Context
	answerer Answerer
	title    string

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	loading bool
	ready   bool
	status  string
	answer  string
	err     error
}

func New(ctx context.Context, answerer Answerer, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		answerer: answerer,
		title:    title,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		status:   "Enter: ask  Esc/Ctrl+C: quit",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, qh := queryBoxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-qh-5)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			q := m.input.Value()
			if strings.TrimSpace(q) == "" {
				m.err = nil
				m.answer = ""
				m.status = warningStyle.Render(blankWarning)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
			m.loading = true
			m.status = "Searching..."
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.loading = false
		m.answer, m.err = msg.answer, msg.err
		if msg.err != nil {
			m.status = errorStyle.Render("Error: " + msg.err.Error())
		} else {
			m.status = successStyle.Render("Explanation:")
		}
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.answerer.Answer(m.ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("📘 " + m.title)
	status := m.status
	if m.loading {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		answerBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderAnswer() string {
	if m.err != nil || m.answer == "" {
		return ""
	}
	out, err := glamour.Render(m.answer, "dark")
	if err != nil {
		return m.answer
	}
	return out
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Run starts the interactive terminal UI
func Run(ctx context.Context, answerer Answerer, title string) error {
	_, err := tea.NewProgram(New(ctx, answerer, title), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
