package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/google/uuid"
	"golang.org/x/term"
)

// Console palette.
var (
	primaryColor = lipgloss.Color("#A78BFA")
	mutedColor   = lipgloss.Color("#9CA3AF")
	accentColor  = lipgloss.Color("#10B981")
)

type consoleStyles struct {
	channel lipgloss.Style
	root    lipgloss.Style
	reply   lipgloss.Style
	label   lipgloss.Style
}

// ConsolePoster writes messages to a terminal or any io.Writer. Replies are
// indented under their thread root. Output is styled only when the writer is
// a terminal. Long lines are word-wrapped to the terminal width.
type ConsolePoster struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
	width  int // 0 disables wrapping
	styles consoleStyles
}

// NewConsolePoster creates a ConsolePoster writing to w.
func NewConsolePoster(w io.Writer) *ConsolePoster {
	styled := false
	width := 0
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		styled = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = cols
		}
	}
	return &ConsolePoster{
		w:      w,
		styled: styled,
		width:  width,
		styles: consoleStyles{
			channel: lipgloss.NewStyle().Foreground(mutedColor),
			root:    lipgloss.NewStyle().Bold(true).Foreground(primaryColor),
			reply:   lipgloss.NewStyle(),
			label:   lipgloss.NewStyle().Foreground(accentColor),
		},
	}
}

// Post writes msg and returns a fresh handle.
func (p *ConsolePoster) Post(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	width := p.width
	p.mu.Unlock()

	var sb strings.Builder
	indent := ""
	if msg.ThreadHandle == "" {
		sb.WriteString(p.render(p.styles.channel, "#"+msg.Channel))
		sb.WriteByte(' ')
		sb.WriteString(p.render(p.styles.root, firstLine(msg.Text)))
		sb.WriteByte('\n')
		indent = "  "
		for _, line := range restLines(msg.Text) {
			writeWrapped(&sb, width, indent, line)
		}
	} else {
		indent = "  │ "
		body := msg.Text
		if msg.Title != "" {
			body = msg.Title
		}
		for _, line := range strings.Split(body, "\n") {
			writeWrapped(&sb, width, indent, p.render(p.styles.reply, line))
		}
	}
	for _, f := range msg.Fields {
		writeWrapped(&sb, width, indent+"  ", p.render(p.styles.label, f.Label+":")+" "+f.Value)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, sb.String()); err != nil {
		return "", fmt.Errorf("write console message: %w", err)
	}
	return uuid.NewString(), nil
}

// SetWidth sets the wrap width. Zero disables wrapping.
func (p *ConsolePoster) SetWidth(width int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = width
}

// writeWrapped writes line under indent, wrapping it so that no output line
// is wider than width. Escape sequences are not counted.
func writeWrapped(sb *strings.Builder, width int, indent, line string) {
	limit := width - ansi.StringWidth(indent)
	if width <= 0 || limit < minWrapWidth || ansi.StringWidth(line) <= limit {
		sb.WriteString(indent + line + "\n")
		return
	}
	for _, part := range strings.Split(ansi.Wrap(line, limit, ""), "\n") {
		sb.WriteString(indent + part + "\n")
	}
}

// minWrapWidth is the narrowest column wrapping is attempted for.
const minWrapWidth = 20

func (p *ConsolePoster) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func restLines(s string) []string {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return nil
	}
	return strings.Split(s[i+1:], "\n")
}
