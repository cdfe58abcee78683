package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/supportchat/composer"
	"github.com/papercomputeco/supportchat/pkg/appearance"
	"github.com/papercomputeco/supportchat/pkg/llm"
)

const (
	headerHeight = 1
	inputHeight  = 3
	statusHeight = 1
)

// conversationMsg carries a composer snapshot into the update loop.
type conversationMsg struct {
	conversation llm.Conversation
	inFlight     bool
}

type submitDoneMsg struct {
	err error
}

type styles struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	input     lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
}

// newStyles maps the widget appearance onto terminal styles. Fonts have no
// terminal equivalent and are ignored.
func newStyles(a appearance.Appearance) styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color(a.Background)).
			Background(lipgloss.Color(a.HeaderBar)),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(a.Button)),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(a.HeaderBar)),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(a.Button)).
			Padding(0, 1),
		status:    lipgloss.NewStyle().Faint(true),
		errStatus: lipgloss.NewStyle().Foreground(lipgloss.Color("#CF6679")),
	}
}

type tuiModel struct {
	ctx      context.Context
	composer *composer.Composer

	styles   styles
	glamour  string
	renderer *glamour.TermRenderer

	input    textinput.Model
	viewport viewport.Model

	conversation llm.Conversation
	inFlight     bool
	err          error

	width  int
	height int
	ready  bool
}

func newTUIModel(ctx context.Context, c *composer.Composer, a appearance.Appearance, darkBackground bool) tuiModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.Focus()

	style := "light"
	if darkBackground {
		style = "dark"
	}

	return tuiModel{
		ctx:          ctx,
		composer:     c,
		styles:       newStyles(a),
		glamour:      style,
		input:        ti,
		conversation: c.Conversation(),
	}
}

func (m tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := max(msg.Height-headerHeight-inputHeight-statusHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			// Letters belong to the input; only paging keys scroll.
			m.viewport.KeyMap = viewport.KeyMap{
				PageUp:   key.NewBinding(key.WithKeys("pgup")),
				PageDown: key.NewBinding(key.WithKeys("pgdown")),
			}
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = max(msg.Width-8, 10)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.glamour),
			glamour.WithWordWrap(max(msg.Width-4, 20)),
		)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			if m.inFlight || strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.Reset()
			m.inFlight = true
			m.err = nil
			return m, m.submit(text)
		}

	case conversationMsg:
		m.conversation = msg.conversation
		m.inFlight = msg.inFlight
		m.refresh()
		return m, nil

	case submitDoneMsg:
		m.inFlight = false
		if !errors.Is(msg.err, composer.ErrInFlight) && !errors.Is(msg.err, composer.ErrEmptyMessage) {
			m.err = msg.err
		}
		m.refresh()
		return m, nil
	}

	var inputCmd, viewportCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewportCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewportCmd)
}

func (m tuiModel) submit(text string) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: m.composer.Submit(m.ctx, text)}
	}
}

// refresh re-renders the conversation and keeps the newest turn in view.
func (m *tuiModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m tuiModel) renderConversation() string {
	wrap := lipgloss.NewStyle().Width(max(m.width-2, 10))

	var b strings.Builder
	for i, turn := range m.conversation {
		streaming := m.inFlight && i == len(m.conversation)-1

		switch turn.Role {
		case llm.RoleUser:
			b.WriteString(m.styles.user.Render("You"))
			b.WriteString("\n")
			b.WriteString(wrap.Render(turn.Content))
		case llm.RoleAssistant:
			b.WriteString(m.styles.assistant.Render("Support"))
			b.WriteString("\n")
			switch {
			case streaming && turn.Content == "":
				b.WriteString(m.styles.status.Render("..."))
			case streaming:
				b.WriteString(wrap.Render(turn.Content))
			default:
				b.WriteString(m.renderMarkdown(turn.Content, wrap))
			}
		default:
			continue
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m tuiModel) renderMarkdown(content string, fallback lipgloss.Style) string {
	if m.renderer == nil {
		return fallback.Render(content)
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return fallback.Render(content)
	}
	return strings.Trim(out, "\n")
}

func (m tuiModel) View() string {
	if !m.ready {
		return "Connecting..."
	}

	header := m.styles.header.Width(m.width).Render("Support chat")

	var status string
	switch {
	case m.inFlight:
		status = m.styles.status.Render(ansi.Truncate("Assistant is typing...", m.width, "…"))
	case m.err != nil:
		status = m.styles.errStatus.Render(ansi.Truncate("error: "+m.err.Error(), m.width, "…"))
	default:
		status = m.styles.status.Render(ansi.Truncate("enter to send · esc to quit", m.width, "…"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.styles.input.Width(max(m.width-2, 10)).Render(m.input.View()),
		status,
	)
}

// appearanceSource is the part of the relay client the TUI needs at startup.
type appearanceSource interface {
	Appearance(ctx context.Context) (appearance.Appearance, error)
}

// connectTUIModel styles the model after the relay's appearance. When the
// relay cannot be reached the defaults are used and the failure is shown in
// the status line until the first submission.
func connectTUIModel(ctx context.Context, c *composer.Composer, source appearanceSource, darkBackground bool) tuiModel {
	a, err := source.Appearance(ctx)
	if err != nil {
		m := newTUIModel(ctx, c, appearance.Default(), darkBackground)
		m.err = fmt.Errorf("could not reach relay: %w", err)
		return m
	}
	return newTUIModel(ctx, c, a, darkBackground)
}

// runTUI runs the full-screen client until the user quits or ctx ends.
func runTUI(ctx context.Context, cmd *cobra.Command, transport *composer.HTTPTransport) error {
	var (
		program *tea.Program
		c       *composer.Composer
	)
	c = composer.New(transport, composer.WithOnUpdate(func(conv llm.Conversation) {
		program.Send(conversationMsg{conversation: conv, inFlight: c.InFlight()})
	}))

	model := connectTUIModel(ctx, c, transport, termenv.HasDarkBackground())
	if model.err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", model.err)
	}

	program = tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)

	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
