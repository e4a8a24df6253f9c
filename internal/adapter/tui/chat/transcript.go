package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"agentmux/internal/adapter/tui/theme"
	"agentmux/internal/domain"
)

type role int

const (
	roleUser role = iota
	roleAgent
	roleSystem
	roleError
)

type entry struct {
	role     role
	meta     string // styled routing line shown under agent headers
	body     string
	at       time.Time
	rendered string // cached markdown output
}

// transcript is the scrollback of one chat, capped at max entries.
type transcript struct {
	entries []entry
	max     int
	trimmed int
	width   int
	md      *glamour.TermRenderer
}

func newTranscript(limit int) transcript {
	return transcript{max: limit}
}

func (t *transcript) setWidth(w int) {
	if w == t.width {
		return
	}
	t.width = w
	t.md = nil
	for i := range t.entries {
		t.entries[i].rendered = ""
	}
}

func (t *transcript) add(e entry) {
	if e.at.IsZero() {
		e.at = time.Now()
	}
	t.entries = append(t.entries, e)
	if t.max > 0 && len(t.entries) > t.max {
		excess := len(t.entries) - t.max
		t.entries = t.entries[excess:]
		t.trimmed += excess
	}
}

func (t *transcript) system(format string, args ...any) {
	t.add(entry{role: roleSystem, body: fmt.Sprintf(format, args...)})
}

// updateLast replaces the body of the newest entry.
func (t *transcript) updateLast(body string) {
	if len(t.entries) == 0 {
		return
	}
	last := &t.entries[len(t.entries)-1]
	last.body = body
	last.rendered = ""
}

func (t *transcript) clear() {
	t.entries = nil
	t.trimmed = 0
}

func (t *transcript) contentWidth() int {
	return max(40, min(t.width-4, theme.MaxContentWidth))
}

func (t *transcript) view() string {
	if len(t.entries) == 0 {
		return theme.TextMuted.Render("  Ask a question. Prefix with @agent to pick an agent, /help for commands.")
	}
	width := t.contentWidth()
	var sb strings.Builder
	if t.trimmed > 0 {
		sb.WriteString(theme.TextMuted.Render(fmt.Sprintf("  (%d older messages trimmed)", t.trimmed)))
		sb.WriteString("\n\n")
	}
	for i := range t.entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(t.render(&t.entries[i], width))
	}
	return sb.String()
}

func (t *transcript) render(e *entry, width int) string {
	header := label(e.role) + " " + theme.Timestamp.Render(e.at.Format("15:04"))
	if e.meta != "" {
		header += "  " + e.meta
	}
	var body string
	switch e.role {
	case roleAgent:
		if e.rendered == "" {
			e.rendered = t.markdown(e.body, width)
		}
		body = strings.Trim(e.rendered, "\n")
	case roleError:
		body = indent(theme.TextError.Render(e.body))
	default:
		body = indent(lipgloss.NewStyle().Width(width - 2).Render(e.body))
	}
	if body == "" {
		return header
	}
	return header + "\n" + body
}

func (t *transcript) markdown(content string, width int) string {
	if t.md == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return indent(content)
		}
		t.md = r
	}
	out, err := t.md.Render(content)
	if err != nil {
		return indent(content)
	}
	return out
}

func label(r role) string {
	switch r {
	case roleUser:
		return theme.UserLabel.Render(theme.SymbolUser)
	case roleAgent:
		return theme.BotLabel.Render(theme.SymbolBot)
	case roleError:
		return theme.ErrorLabel.Render(theme.SymbolError + " Error")
	default:
		return theme.SystemLabel.Render("System")
	}
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// routingLine renders "sql + csharp • sequential • high".
func routingLine(agents []string, mode domain.Mode, confidence domain.Confidence) string {
	who := theme.Bold.Render(strings.Join(agents, " + "))
	sep := theme.Dim.Render(" " + theme.SymbolBullet + " ")
	return who + sep + theme.Mode(mode).Render(string(mode)) + sep + theme.Confidence(confidence).Render(string(confidence))
}
