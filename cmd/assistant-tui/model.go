package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voice-search-assistant/internal/assistant"
	"voice-search-assistant/internal/config"
	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/service/agent"
	"voice-search-assistant/internal/service/recognition"
	"voice-search-assistant/internal/service/search"
)

const suggestionTimeout = 2 * time.Second

// Controller is the part of a session the terminal front-end drives.
type Controller interface {
	State() (assistant.State, error)
	SetInput(value string) error
	HandleKey(key string, shift bool) (bool, error)
	Submit(query string) error
	Clear() error
	ToggleMic() error
	SetLanguage(lang string) error
	Suggestions(ctx context.Context) ([]search.QuerySuggestion, error)
	Subscribe() (<-chan struct{}, func())
}

type stateMsg struct {
	state assistant.State
	err   error
}

type suggestionsMsg struct {
	input string
	hits  []search.QuerySuggestion
	err   error
}

type updateMsg struct{}

type closedMsg struct{}

type errMsg struct{ err error }

type uiTheme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	user        lipgloss.Style
	assistant   lipgloss.Style
	muted       lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	micIdle     lipgloss.Style
	micLive     lipgloss.Style
	inputPanel  lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		user:        lipgloss.NewStyle().Foreground(blue).Bold(true),
		assistant:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		muted:       lipgloss.NewStyle().Foreground(muted),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		micIdle:     lipgloss.NewStyle().Foreground(muted).Padding(0, 1).BorderStyle(lipgloss.NormalBorder()),
		micLive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22062f")).
			Background(pink).
			Bold(true).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
	}
}

type model struct {
	session Controller
	prompts []config.Prompt
	updates <-chan struct{}
	cancel  func()

	state       assistant.State
	suggestions []search.QuerySuggestion
	lastErr     error

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	theme    uiTheme
}

func newModel(session Controller, prompts []config.Prompt) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 500
	input.Placeholder = "Ask about the news, or press ctrl+t to speak"
	input.Focus()

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	updates, cancel := session.Subscribe()
	return model{
		session:  session,
		prompts:  prompts,
		updates:  updates,
		cancel:   cancel,
		input:    input,
		timeline: timeline,
		theme:    newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchState(), waitForUpdate(m.updates))
}

func waitForUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return closedMsg{}
		}
		return updateMsg{}
	}
}

func (m model) fetchState() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		st, err := s.State()
		return stateMsg{state: st, err: err}
	}
}

func (m model) fetchSuggestions(input string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), suggestionTimeout)
		defer cancel()
		hits, err := s.Suggestions(ctx)
		return suggestionsMsg{input: input, hits: hits, err: err}
	}
}

// run calls fn off the UI goroutine; only failures produce a message.
func run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-8)
		m.layout()
		m.renderTimeline()
		return m, nil

	case updateMsg:
		return m, tea.Batch(m.fetchState(), waitForUpdate(m.updates))

	case closedMsg:
		return m, tea.Quit

	case stateMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		inputChanged := msg.state.Input != m.state.Input
		m.state = msg.state
		// A snapshot taken before the latest keystroke repeats the previous input.
		if inputChanged && m.input.Value() != msg.state.Input {
			m.input.SetValue(msg.state.Input)
			m.input.CursorEnd()
		}
		if inputChanged {
			cmds = append(cmds, m.fetchSuggestions(msg.state.Input))
		}
		m.renderTimeline()
		return m, tea.Batch(cmds...)

	case suggestionsMsg:
		if msg.err == nil && msg.input == m.state.Input {
			m.suggestions = msg.hits
		}
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "enter":
			m.lastErr = nil
			return m, run(func() error {
				_, err := m.session.HandleKey(assistant.KeyEnter, false)
				return err
			})
		case "ctrl+t":
			return m, run(m.session.ToggleMic)
		case "ctrl+x":
			return m, run(m.session.Clear)
		case "ctrl+l":
			next := nextLanguage(m.state.Language)
			return m, run(func() error { return m.session.SetLanguage(next) })
		case "tab":
			if len(m.suggestions) > 0 {
				q := m.suggestions[0].Query
				return m, run(func() error { return m.session.SetInput(q) })
			}
			return m, nil
		case "f1", "f2", "f3", "f4", "f5":
			idx := int(msg.String()[1] - '1')
			if idx < len(m.prompts) {
				p := m.prompts[idx].Message
				return m, run(func() error { return m.session.Submit(p) })
			}
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		// Applied in order, so the session never sees keystrokes reordered.
		if after := m.input.Value(); after != before {
			if err := m.session.SetInput(after); err != nil {
				m.lastErr = err
			}
		}
		return m, tea.Batch(cmds...)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return m, cmd
	}

	return m, nil
}

func nextLanguage(current string) string {
	langs := recognition.Languages
	for i, l := range langs {
		if l == current {
			return langs[(i+1)%len(langs)]
		}
	}
	return langs[0]
}

// layout sizes the timeline to what the other panes leave free.
func (m *model) layout() {
	reserved := 16
	m.timeline.Width = max(10, m.width-4)
	m.timeline.Height = max(3, m.height-reserved)
}

func (m *model) renderTimeline() {
	width := max(20, m.timeline.Width-2)
	var b strings.Builder
	for _, msg := range m.state.Messages {
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n")
	}
	if m.state.ChatStatus == agent.StatusSubmitted || m.state.ChatStatus == agent.StatusStreaming {
		b.WriteString(m.theme.muted.Render("…thinking"))
	}
	m.timeline.SetContent(b.String())
	m.timeline.GotoBottom()
}

func (m model) renderMessage(msg models.Message, width int) string {
	label := m.theme.user.Render("you")
	if msg.Role == models.RoleAssistant {
		label = m.theme.assistant.Render("assistant")
	}

	var lines []string
	for _, p := range msg.Parts {
		switch {
		case p.Type == models.PartTypeText && strings.TrimSpace(p.Text) != "":
			lines = append(lines, lipgloss.NewStyle().Width(width).Render(p.Text))
		case p.IsTool():
			lines = append(lines, renderToolPart(p, m.theme)...)
		}
	}
	return label + "\n" + strings.Join(lines, "\n")
}

func renderToolPart(p models.Part, theme uiTheme) []string {
	switch p.State {
	case models.ToolStateOutputError:
		return []string{theme.errorStatus.Render(fmt.Sprintf("%s failed: %s", p.ToolName(), p.ErrorText))}
	case models.ToolStateOutputAvailable:
		titles := toolTitles(p.Output)
		if len(titles) == 0 {
			return []string{theme.muted.Render("no matching articles")}
		}
		lines := make([]string, 0, len(titles))
		for i, t := range titles {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, t))
		}
		return lines
	default:
		return []string{theme.muted.Render(p.ToolName() + "…")}
	}
}

// toolTitles lists the display titles of a tool output.
func toolTitles(output json.RawMessage) []string {
	var out agent.ToolOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil
	}
	titles := make([]string, 0, len(out.Response))
	for _, it := range out.Response {
		title := it.Title
		if title == "" {
			title = "(untitled)"
		}
		titles = append(titles, title)
	}
	return titles
}

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	t := m.theme
	st := m.state

	mic := t.micIdle.Render("mic")
	if st.MicVariant == assistant.MicVariantDestructive {
		mic = t.micLive.Render("● listening")
	}
	if st.MicDisabled {
		mic = t.muted.Render("mic unavailable")
	}
	status := t.status.Render(fmt.Sprintf("%s · %s · %s", st.Language, st.Mode, st.ChatStatus))
	header := t.header.Width(m.width - 2).Render(lipgloss.JoinHorizontal(lipgloss.Center, "Voice search  ", status, "  ", mic))

	var notices []string
	if st.Warning != "" {
		notices = append(notices, t.muted.Render(st.Warning))
	}
	if st.Error != "" {
		notices = append(notices, t.errorStatus.Render("Voice error: "+st.Error))
	}
	if st.ChatError != "" {
		notices = append(notices, t.errorStatus.Render("Agent error: "+st.ChatError))
	}
	if m.lastErr != nil {
		notices = append(notices, t.errorStatus.Render(m.lastErr.Error()))
	}

	timeline := t.panel.Width(m.width - 2).Render(t.panelTitle.Render("Conversation") + "\n" + m.timeline.View())

	var results []string
	for i, it := range st.Results.Items {
		if i == 3 {
			break
		}
		results = append(results, fmt.Sprintf("%s (%s)", it.Title, it.ObjectID))
	}
	resultLine := t.muted.Render("results: " + strings.Join(results, " · "))

	var sugg []string
	for _, s := range m.suggestions {
		sugg = append(sugg, s.Query)
	}
	suggLine := t.muted.Render("suggestions (tab): " + strings.Join(sugg, " · "))

	var prompts []string
	for i, p := range m.prompts {
		prompts = append(prompts, fmt.Sprintf("F%d %s", i+1, p.Label))
	}
	promptLine := t.muted.Render(strings.Join(prompts, "  "))

	input := t.inputPanel.Width(m.width - 2).Render(m.input.View())
	help := t.muted.Render("enter send · ctrl+t mic · ctrl+l language · ctrl+x clear · esc quit")

	parts := []string{header}
	parts = append(parts, notices...)
	parts = append(parts, timeline, resultLine, suggLine, promptLine, input, help)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
