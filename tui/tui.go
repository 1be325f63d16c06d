package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/lorecore/engine/playtest"
)

// rawLine is an unstyled output line, kept so the narrative can be
// re-wrapped when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool
	isSystem bool
}

// Model is the Bubble Tea model for the playtest dashboard.
type Model struct {
	ctx  context.Context
	game *playtest.Game

	viewport viewport.Model
	input    textinput.Model
	history  *History
	status   playtest.Status

	rawLines []rawLine

	width    int
	height   int
	ready    bool
	quitting bool
	lastCmd  string
}

// outputMsg carries game output into Update.
type outputMsg struct {
	input    string
	lines    []string
	isSystem bool
}

func New(ctx context.Context, g *playtest.Game) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	return Model{
		ctx:     ctx,
		game:    g,
		input:   ti,
		history: NewHistory(100),
		status:  g.Status(ctx),
	}
}

// Run starts the program on the alternate screen.
func Run(ctx context.Context, g *playtest.Game) error {
	p := tea.NewProgram(New(ctx, g), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.intro())
}

func (m Model) intro() tea.Cmd {
	return func() tea.Msg {
		camp := m.game.Defs.Campaign
		header := camp.Title
		if camp.Version != "" {
			header += " v" + camp.Version
		}
		if camp.Author != "" {
			header += " by " + camp.Author
		}
		lines := []string{header, ""}
		if camp.Intro != "" {
			lines = append(lines, camp.Intro, "")
		}
		lines = append(lines, m.game.Step(m.ctx, "look").Output...)
		return outputMsg{lines: lines}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := max(m.height-2, 1) // status bar and input line
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "up":
			if prev, ok := m.history.Older(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			next, _ := m.history.Newer()
			m.input.SetValue(next)
			m.input.CursorEnd()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case outputMsg:
		m = m.appendOutput(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if input == "" {
		return m, nil
	}
	m.history.Push(input)

	lower := strings.ToLower(input)
	if lower == "again" || lower == "g" {
		if m.lastCmd == "" {
			return m.appendOutput(outputMsg{input: input, lines: []string{"Nothing to repeat."}, isSystem: true}), nil
		}
		input = m.lastCmd
	} else {
		m.lastCmd = input
	}

	if strings.HasPrefix(input, "/") {
		lines, quit := m.game.Meta(m.ctx, input)
		m = m.appendOutput(outputMsg{input: input, lines: lines, isSystem: true})
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	res := m.game.Step(m.ctx, input)
	return m.appendOutput(outputMsg{input: input, lines: res.Output}), nil
}

// appendOutput adds lines, refreshes the status and redraws.
func (m Model) appendOutput(msg outputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{text: "> " + msg.input, isInput: true})
	}
	for _, line := range msg.lines {
		rl := rawLine{text: line, isSystem: msg.isSystem}
		if !msg.isSystem {
			rl.kind = classifyLine(line)
		}
		m.rawLines = append(m.rawLines, rl)
	}
	m.rawLines = append(m.rawLines, rawLine{})
	m.status = m.game.Status(m.ctx)
	m.refreshViewport()
	return m
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	width := max(m.width, 10)
	styled := make([]string, 0, len(m.rawLines))
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}
		wrapped := wordWrap(rl.text, width)
		switch {
		case rl.isInput:
			styled = append(styled, stylePlayerInput.Render(wrapped))
		case rl.isSystem:
			styled = append(styled, styledSystemMsg(wrapped))
		default:
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}
	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// wordWrap breaks text at word boundaries to fit width. Leading spaces of
// indented lines are kept.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}
	indent := text[:len(text)-len(strings.TrimLeft(text, " "))]

	var b strings.Builder
	lineLen := 0
	for i, word := range strings.Fields(text) {
		if i == 0 {
			b.WriteString(indent + word)
			lineLen = len(indent) + len(word)
			continue
		}
		if lineLen+1+len(word) > width {
			b.WriteString("\n" + indent + word)
			lineLen = len(indent) + len(word)
			continue
		}
		b.WriteString(" " + word)
		lineLen += 1 + len(word)
	}
	return b.String()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// viewportKeyMap leaves Up and Down to the input history.
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
