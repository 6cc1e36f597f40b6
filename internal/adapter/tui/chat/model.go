// Package chat is the Bubble Tea front end for one agent session.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/tui/theme"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/adapter/tui/uxerror"
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// Session is the conversation the chat view drives.
type Session interface {
	Send(ctx context.Context, text string) string
	State() domain.AgentState
}

// Deps are injected into the chat model.
type Deps struct {
	Session  Session
	Provider domain.CloudProvider
	Model    string
	Logger   *slog.Logger
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleSystem
	roleError
)

type entry struct {
	role    role
	content string
}

// replyMsg carries the result of one Send back into the update loop. Gen
// identifies the request so replies to cancelled requests are dropped.
type replyMsg struct {
	Text  string
	State domain.AgentState
	Gen   uint64
}

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps
	ctx  context.Context

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries  []entry
	state    domain.AgentState
	lastErr  time.Time
	waiting  bool
	ready    bool
	width    int
	height   int
	gen      uint64
	cancelFn context.CancelFunc
}

// New creates the chat model. ctx bounds every request the model sends.
func New(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about your cloud, or 'switch to <account>'"
	ti.Prompt = theme.InputPrompt.Render("> ")
	ti.CharLimit = 4000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	m := Model{
		deps:    deps,
		ctx:     ctx,
		input:   ti,
		spinner: s,
		state:   deps.Session.State(),
	}
	m.entries = append(m.entries, entry{role: roleSystem, content: "Type /help for commands."})
	return m
}

// Init starts the spinner and the input cursor.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.waiting = false
		m.cancelFn = nil
		m.state = msg.State
		if msg.Text != "" {
			m.add(roleAssistant, msg.Text)
		}
		if le := msg.State.LastError; le != nil && le.Timestamp.After(m.lastErr) {
			m.lastErr = le.Timestamp
			m.add(roleError, uxerror.Humanize(*le).Render())
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancel()
			return m, nil
		}
		return m, tea.Quit
	case tea.KeyEsc:
		if m.waiting {
			m.cancel()
		}
		return m, nil
	case tea.KeyEnter:
		if m.waiting {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		return m.submit(text)
	case tea.KeyPgUp, tea.KeyPgDown:
		if m.ready {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	switch text {
	case "":
		return m, nil
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.add(roleSystem, helpText)
		return m, nil
	case "/status":
		m.add(roleSystem, describeState(m.deps.Provider, m.state, time.Now()))
		return m, nil
	}

	m.add(roleUser, text)
	m.waiting = true
	m.gen++
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelFn = cancel
	return m, tea.Batch(sendCmd(ctx, cancel, m.deps.Session, text, m.gen), m.spinner.Tick)
}

func (m *Model) cancel() {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.waiting = false
	m.gen++
	m.add(roleSystem, "Request cancelled.")
}

// sendCmd runs one turn off the update loop. The session serializes turns,
// so a cancelled request finishes before the next one starts.
func sendCmd(ctx context.Context, cancel context.CancelFunc, s Session, text string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		defer cancel()
		reply := s.Send(ctx, text)
		return replyMsg{Text: reply, State: s.State(), Gen: gen}
	}
}

const helpText = `Commands:
  /status  show the bound account, selection version and credential expiry
  /help    show this help
  /quit    exit
Say "switch to <account>" to change accounts or "clear selection" to reset.
Esc cancels a running request.`

func (m *Model) add(r role, content string) {
	m.entries = append(m.entries, entry{role: r, content: content})
	m.refresh()
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	vh := max(h-4, 1)
	if !m.ready {
		m.viewport = viewport.New(w, vh)
		m.viewport.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = vh
	}
	m.input.Width = max(w-4, 10)

	wrap := min(w-4, theme.MaxContentWidth)
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap)); err == nil {
		m.renderer = r
	} else {
		m.deps.Logger.Debug("markdown renderer unavailable", "error", err)
		m.renderer = nil
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m *Model) render() string {
	var b strings.Builder
	for _, e := range m.entries {
		switch e.role {
		case roleUser:
			b.WriteString(theme.UserLabel.Render(theme.SymbolUser))
			b.WriteString("\n  " + e.content + "\n\n")
		case roleAssistant:
			b.WriteString(theme.BotLabel.Render(theme.SymbolBot))
			b.WriteString("\n" + m.markdown(e.content) + "\n")
		case roleError:
			b.WriteString(theme.ErrorLabel.Render(theme.SymbolError+" "+e.content) + "\n\n")
		default:
			b.WriteString(theme.TextMuted.Render(e.content) + "\n\n")
		}
	}
	return b.String()
}

func (m *Model) markdown(content string) string {
	if m.renderer == nil {
		return "  " + content + "\n"
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return "  " + content + "\n"
	}
	return out
}

// View renders the header, history, input and status bar.
func (m Model) View() string {
	if !m.ready {
		return "  Initializing" + theme.SymbolEllipsis
	}
	header := theme.Header.Render("graph-fleet " + theme.SymbolBullet + " " + m.deps.Provider.Upper())
	input := m.input.View()
	if m.waiting {
		input = m.spinner.View() + " " + theme.TextInfo.Render("Working"+theme.SymbolEllipsis)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		input,
		m.statusBar(),
	)
}

func (m Model) statusBar() string {
	left := theme.StatusKey.Render("Enter") + ": send  " + theme.StatusKey.Render("Esc") + ": cancel  " +
		theme.StatusKey.Render("Ctrl+C") + ": quit"
	right := theme.TextMuted.Render(statusLine(m.deps.Provider, m.deps.Model, m.state))
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// statusLine summarizes the binding for the status bar.
func statusLine(p domain.CloudProvider, model string, state domain.AgentState) string {
	parts := []string{p.Upper()}
	if sum := state.Binding.Summary; sum != nil {
		parts = append(parts, sum.Label())
		if state.CurrentRegion != "" {
			parts = append(parts, state.CurrentRegion)
		}
	} else {
		parts = append(parts, "no account selected")
	}
	if model != "" {
		parts = append(parts, model)
	}
	return strings.Join(parts, " "+theme.SymbolBullet+" ")
}

// describeState renders the /status report.
func describeState(p domain.CloudProvider, state domain.AgentState, now time.Time) string {
	var b strings.Builder
	if sum := state.Binding.Summary; sum != nil {
		fmt.Fprintf(&b, "%s account: %s (id %s)\n", p.Upper(), sum.Label(), sum.ID)
	} else {
		fmt.Fprintf(&b, "%s account: none selected\n", p.Upper())
	}
	fmt.Fprintf(&b, "Selection version: %d\n", state.Binding.Version)
	if state.ExpiresAt != 0 {
		left := time.Unix(state.ExpiresAt, 0).Sub(now).Truncate(time.Second)
		fmt.Fprintf(&b, "Credentials expire in: %s\n", left)
	}
	if state.CurrentRegion != "" {
		fmt.Fprintf(&b, "Region: %s\n", state.CurrentRegion)
	}
	fmt.Fprintf(&b, "Operations: %d", state.OperationCount)
	if len(state.AvailableTools) > 0 {
		fmt.Fprintf(&b, "\nTools: %d", len(state.AvailableTools))
	}
	return b.String()
}
