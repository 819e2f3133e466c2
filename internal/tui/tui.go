// Package tui is the terminal front end for an analysis session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/verdict"
)

// stateMsg tells the model the session changed.
type stateMsg struct{}

// Model is the Bubble Tea model for one session.
type Model struct {
	ctx     context.Context
	session *session.Session
	updates <-chan struct{}

	input   textinput.Model
	spinner spinner.Model
	help    help.Model

	state    session.State
	fileName string
	notice   string
	width    int
}

// New builds a model bound to sess. The returned function stops listening
// to the session and must be called once the program exits.
func New(ctx context.Context, sess *session.Session, initialPath string) (Model, func()) {
	updates := make(chan struct{}, 1)
	unsubscribe := sess.Subscribe(func(session.State) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})

	input := textinput.New()
	input.Placeholder = "path/to/scan.png"
	input.Prompt = "Image: "
	input.SetValue(initialPath)
	input.Focus()

	h := help.New()
	h.Styles.ShortKey = helpStyle.Bold(true)
	h.Styles.ShortDesc = helpStyle
	h.Styles.ShortSeparator = helpStyle

	m := Model{
		ctx:     ctx,
		session: sess,
		updates: updates,
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    h,
		state:   sess.State(),
	}
	m.syncSelection()
	return m, unsubscribe
}

// waitForState blocks until the session publishes a change.
func waitForState(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return stateMsg{}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForState(m.updates))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-len(m.input.Prompt)-2, 10)
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.refresh()
		return m, waitForState(m.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.input.Focused() {
			return m.updateInput(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Browse):
			m.notice = ""
			m.input.Focus()
			return m, textinput.Blink
		case key.Matches(msg, keys.Analyze):
			m.analyze()
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Interrupt):
		return m, tea.Quit
	case key.Matches(msg, keys.Cancel):
		// Dismissing the picker keeps whatever was selected before.
		m.input.Blur()
		return m, nil
	case key.Matches(msg, keys.Select):
		m.selectPath(strings.TrimSpace(m.input.Value()))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) selectPath(path string) {
	m.notice = ""
	if path == "" {
		m.input.Blur()
		return
	}

	file, err := selection.LoadFile(path)
	if err != nil {
		m.notice = fmt.Sprintf("cannot open %s: %v", path, err)
		return
	}
	m.session.SelectFile(m.ctx, file)
	m.input.Blur()
	m.refresh()
}

func (m *Model) analyze() {
	if !m.session.CanSubmit() {
		return
	}
	m.notice = ""
	if err := m.session.Submit(m.ctx); err != nil && !errors.Is(err, session.ErrInFlight) {
		m.notice = err.Error()
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.state = m.session.State()
	m.syncSelection()
}

func (m *Model) syncSelection() {
	m.fileName = ""
	if sel, ok := m.session.Selection(); ok {
		m.fileName = sel.File.Name
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Brain Tumor Detection"))
	b.WriteString("\n\n")

	if m.input.Focused() {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.fileName != "" {
		b.WriteString(fileStyle.Render("Selected: " + m.fileName))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if body := m.statusView(); body != "" {
		b.WriteString(panelStyle.Render(body))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.helpView())
	return b.String()
}

func (m Model) statusView() string {
	switch m.state.Phase {
	case session.InFlight:
		return m.spinner.View() + " Analyzing..."
	case session.Failed:
		return errorStyle.Render(m.state.Error)
	case session.Succeeded:
		category, _ := m.state.Category()
		summary := verdict.Describe(category)
		style := successStyle
		if category == verdict.Positive {
			style = dangerStyle
		}
		out := style.Render(summary.Headline)
		if summary.HasAction() {
			out += "\n" + actionStyle.Render(summary.ActionLabel)
		}
		return out
	}
	return ""
}

func (m Model) helpView() string {
	if m.input.Focused() {
		return m.help.ShortHelpView([]key.Binding{keys.Select, keys.Cancel, keys.Interrupt})
	}
	bindings := []key.Binding{keys.Browse}
	if m.session.CanSubmit() {
		bindings = append(bindings, keys.Analyze)
	}
	bindings = append(bindings, keys.Quit)
	return m.help.ShortHelpView(bindings)
}
