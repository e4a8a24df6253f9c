package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentmux/internal/adapter/tui/theme"
	"agentmux/internal/adapter/tui/uxerror"
	"agentmux/internal/domain"
)

// Service is the orchestration surface the chat drives.
type Service interface {
	ProcessQuery(ctx context.Context, query string) domain.Result
	Route(ctx context.Context, query string) (domain.RoutingDecision, string)
	Agents() []domain.AgentDescriptor
	History(ctx context.Context, limit int) ([]domain.SessionSummary, error)
}

const (
	defaultMaxEntries = 1000
	defaultHistory    = 10
	inputHeight       = 3
)

// Option configures a Model.
type Option func(*Model)

// WithStreamSpeed sets the initial reveal speed.
func WithStreamSpeed(s StreamSpeed) Option {
	return func(m *Model) { m.speed = s }
}

// WithRequestTimeout bounds each query. Zero leaves queries unbounded.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Model) { m.timeout = d }
}

// WithMaxEntries caps the transcript.
func WithMaxEntries(n int) Option {
	return func(m *Model) { m.log = newTranscript(n) }
}

// Model is the root Bubble Tea model of the chat.
type Model struct {
	base    context.Context
	svc     Service
	timeout time.Duration

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	log      transcript
	ready    bool
	width    int
	height   int

	// gen is bumped on every request and cancellation; results and stream
	// ticks carrying an older gen are dropped.
	gen      uint64
	cancelFn context.CancelFunc
	waiting  bool
	stream   *typewriter
	speed    StreamSpeed

	last     *domain.Result
	quitting bool
}

// New builds a chat model. ctx bounds every request the chat starts.
func New(ctx context.Context, svc Service, opts ...Option) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	ta := textarea.New()
	ta.Placeholder = "Ask anything, or @agent to pick one..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	m := Model{
		base:    ctx,
		svc:     svc,
		input:   ta,
		spinner: s,
		log:     newTranscript(defaultMaxEntries),
		speed:   StreamNormal,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Init starts the cursor blink and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}

	case resultMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.handleResult(msg.result)

	case streamTickMsg:
		return m.handleStreamTick(msg)

	case routeMsg:
		d := msg.decision
		m.log.add(entry{
			role: roleSystem,
			meta: routingLine(d.Agents(), d.Mode, d.Confidence),
			body: fmt.Sprintf("Route for %q via %s: %s", msg.effective, d.Source, d.Reasoning),
		})
		m.refresh()
		return m, nil

	case historyMsg:
		m.showHistory(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		if _, isMouse := msg.(tea.MouseMsg); !isMouse {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancelRequest("Request cancelled.")
			return m, nil, true
		}
		m.quitting = true
		return m, tea.Quit, true

	case tea.KeyEsc:
		if m.waiting {
			m.cancelRequest("Request cancelled.")
			return m, nil, true
		}

	case tea.KeyCtrlL:
		next, cmd := m.handleSlashCommand("/clear", nil)
		return next, cmd, true

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd, true

	case tea.KeyEnter:
		if m.waiting {
			return m, nil, true
		}
		value := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if value == "" {
			return m, nil, true
		}
		next, cmd := m.handleSubmit(value)
		return next, cmd, true
	}
	return m, nil, false
}

func (m Model) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if cmd, args, ok := parseSlashCommand(value); ok {
		return m.handleSlashCommand(cmd, args)
	}
	if m.cancelFn != nil {
		m.cancelFn()
	}

	m.log.add(entry{role: roleUser, body: value})
	m.gen++
	ctx, cancel := m.requestContext()
	m.cancelFn = cancel
	m.waiting = true
	m.stream = nil
	m.input.Blur()
	m.refresh()

	return m, queryCmd(ctx, m.svc, value, m.gen)
}

func (m Model) requestContext() (context.Context, context.CancelFunc) {
	base := m.base
	if base == nil {
		base = context.Background()
	}
	if m.timeout > 0 {
		return context.WithTimeout(base, m.timeout)
	}
	return context.WithCancel(base)
}

func (m Model) handleResult(res domain.Result) (tea.Model, tea.Cmd) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.last = &res
	meta := routingLine(res.AgentsUsed, res.Mode, res.Confidence)

	if !res.Success {
		m.log.add(entry{role: roleError, meta: meta, body: uxerror.FromMessage(res.ExecutionError).Render()})
		m.finishRequest()
		return m, nil
	}

	m.log.add(entry{role: roleAgent, meta: meta})
	m.stream = newTypewriter(res.FinalResponse, m.speed)
	if m.stream.done() {
		m.log.updateLast(res.FinalResponse)
		m.finishRequest()
		return m, nil
	}
	m.refresh()
	return m, streamTickCmd(m.gen)
}

func (m Model) handleStreamTick(msg streamTickMsg) (tea.Model, tea.Cmd) {
	if m.stream == nil || msg.gen != m.gen {
		return m, nil
	}
	text, done := m.stream.advance()
	m.log.updateLast(text)
	if done {
		m.finishRequest()
		return m, nil
	}
	m.refresh()
	return m, streamTickCmd(m.gen)
}

func (m *Model) finishRequest() {
	m.waiting = false
	m.stream = nil
	m.input.Focus()
	m.refresh()
}

func (m *Model) cancelRequest(reason string) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.gen++
	if m.stream != nil {
		m.log.updateLast(m.stream.finish())
	}
	m.log.system("%s", reason)
	m.finishRequest()
}

func (m Model) handleSlashCommand(cmd string, args []string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "/help":
		m.log.system("%s", helpText)

	case "/quit", "/exit":
		if m.cancelFn != nil {
			m.cancelFn()
		}
		m.quitting = true
		return m, tea.Quit

	case "/clear":
		m.log.clear()
		m.last = nil
		m.log.system("%s Transcript cleared.", theme.SymbolSuccess)

	case "/cancel":
		if m.waiting {
			m.cancelRequest("Request cancelled.")
			return m, nil
		}
		m.log.system("No active request to cancel.")

	case "/speed":
		next := m.speed.next()
		if len(args) > 0 {
			s, ok := ParseStreamSpeed(args[0])
			if !ok {
				m.log.system("Unknown speed %q. Use normal, fast or instant.", args[0])
				break
			}
			next = s
		}
		m.speed = next
		m.log.system("Streaming speed: %s", m.speed)

	case "/agents":
		m.log.system("%s", agentList(m.svc.Agents()))

	case "/history":
		limit := defaultHistory
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				m.log.system("Usage: /history [count]")
				break
			}
			limit = n
		}
		m.refresh()
		return m, historyCmd(m.requestBase(), m.svc, limit)

	case "/route":
		if len(args) == 0 {
			m.log.system("Usage: /route <query>")
			break
		}
		m.refresh()
		return m, routeCmd(m.requestBase(), m.svc, strings.Join(args, " "))

	default:
		m.log.system("Unknown command: %s. Type /help for available commands.", cmd)
	}
	m.refresh()
	return m, nil
}

func (m Model) requestBase() context.Context {
	if m.base == nil {
		return context.Background()
	}
	return m.base
}

func (m *Model) showHistory(msg historyMsg) {
	defer m.refresh()
	if msg.err != nil {
		m.log.add(entry{role: roleError, body: uxerror.Humanize(msg.err).Render()})
		return
	}
	if len(msg.sessions) == 0 {
		m.log.system("No stored sessions.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Recent sessions:")
	for _, s := range msg.sessions {
		fmt.Fprintf(&sb, "\n%s %s  %s  %s/%s  %s",
			theme.SymbolBullet, s.CreatedAt.Local().Format("Jan 2 15:04"), s.ID, s.Primary, s.Mode, truncate(s.Query, 60))
	}
	m.log.system("%s", sb.String())
}

// layout recalculates sizes of the sub-models.
func (m *Model) layout() {
	const statusH, dividerH = 1, 1
	contentH := max(5, m.height-inputHeight-statusH-dividerH)
	if !m.ready {
		m.viewport = viewport.New(m.width, contentH)
		m.viewport.MouseWheelEnabled = true
		m.viewport.MouseWheelDelta = 3
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = contentH
	}
	m.input.SetWidth(m.width - 2)
	m.log.setWidth(m.width)
	m.refresh()
}

// refresh re-renders the transcript, following the bottom when the user
// has not scrolled away from it.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.log.view())
	if atBottom || m.waiting {
		m.viewport.GotoBottom()
	}
}

// View renders the chat.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "  Initializing..."
	}

	inputView := m.input.View()
	if m.waiting {
		status := "Routing..."
		if m.stream != nil {
			status = "Answering..."
		}
		inputView = theme.Dim.Render("> waiting for response (Esc to cancel)") + "\n" + m.spinner.View() + " " + status
	}
	divider := theme.Divider.Render(strings.Repeat("─", m.width))
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), divider, inputView, m.statusView())
}

func (m Model) statusView() string {
	hints := []string{
		theme.StatusKey.Render("Enter") + ": Send",
		theme.StatusKey.Render("Alt+Enter") + ": Newline",
		theme.StatusKey.Render("/help"),
		theme.StatusKey.Render("Ctrl+C") + ": Quit",
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	right := theme.TextMuted.Render("speed " + m.speed.String())
	if m.last != nil {
		right = routingLine(m.last.AgentsUsed, m.last.Mode, m.last.Confidence) + "  " + right
	}
	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

const helpText = `Available commands:
  /help            - Show this help
  /agents          - List registered agents
  /route <query>   - Show how a query would be routed without running it
  /history [n]     - List recent stored sessions
  /speed [name]    - Cycle or set streaming speed (normal/fast/instant)
  /cancel          - Cancel the active request
  /clear           - Clear the transcript
  /quit            - Exit

Prefix a query with @agent (for example "@sql top customers") to skip routing.

Keybindings:
  Enter      - Send
  Alt+Enter  - New line
  Esc        - Cancel the active request
  Ctrl+L     - Clear the transcript
  PgUp/PgDn  - Scroll
  Ctrl+C     - Cancel or quit`

// parseSlashCommand splits "/cmd a b" into "/cmd" and its arguments.
func parseSlashCommand(input string) (string, []string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	fields := strings.Fields(input)
	return strings.ToLower(fields[0]), fields[1:], true
}

func agentList(agents []domain.AgentDescriptor) string {
	if len(agents) == 0 {
		return "No agents registered."
	}
	var sb strings.Builder
	sb.WriteString("Agents:")
	for _, a := range agents {
		fmt.Fprintf(&sb, "\n%s @%s", theme.SymbolBullet, a.ID)
		if a.Name != "" && a.Name != a.ID {
			fmt.Fprintf(&sb, " (%s)", a.Name)
		}
		if a.Description != "" {
			sb.WriteString(": " + a.Description)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + theme.SymbolEllipsis
}
