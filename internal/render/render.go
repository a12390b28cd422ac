// Package render provides output formatting for the shell and CLI.
// Separates presentation from session logic.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/agentsh/internal/domain"
)

const (
	// MaxListed is how many sessions Sessions prints before "+N more".
	MaxListed = 10
	// MaxHistory is how many turns History prints.
	MaxHistory = 10
	// MaxContent is the longest turn content History prints.
	MaxContent = 100

	timeLayout = "2006-01-02 15:04:05"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
	now    func() time.Time
}

// New creates a new renderer. pretty enables headers and color; color itself
// is still subject to color.NoColor.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty, now: time.Now}
}

// HelpEntry is one line of help output.
type HelpEntry struct {
	Usage       string
	Description string
}

// Help formats the command list.
func (r *Renderer) Help(entries []HelpEntry) string {
	var sb strings.Builder

	width := 0
	for _, e := range entries {
		width = max(width, len(e.Usage))
	}

	r.header(&sb, "Commands")
	for _, e := range entries {
		fmt.Fprintf(&sb, "  %-*s  %s\n", width, e.Usage, e.Description)
	}
	fmt.Fprintf(&sb, "  %-*s  %s\n", width, "exit", "Leave the shell")
	sb.WriteString("\nAnything else is sent to the assistant.\n")
	return sb.String()
}

// Status formats one session. parentMissing marks a sub-agent whose parent
// session no longer exists.
func (r *Renderer) Status(s *domain.Session, parentMissing bool) string {
	var sb strings.Builder

	r.header(&sb, "Session Status")
	fmt.Fprintf(&sb, "  ID:         %s\n", s.ID)
	fmt.Fprintf(&sb, "  Created:    %s\n", s.Created.Local().Format(timeLayout))
	fmt.Fprintf(&sb, "  Accessed:   %s (%s ago)\n", s.LastAccessed.Local().Format(timeLayout), FormatDuration(r.now().Sub(s.LastAccessed)))
	fmt.Fprintf(&sb, "  Directory:  %s\n", s.WorkingDirectory)
	fmt.Fprintf(&sb, "  Turns:      %d\n", s.TurnCount())

	if s.IsSubAgent() {
		fmt.Fprintf(&sb, "  Sub-agent:  %s\n", color.MagentaString(domain.Deref(s.SubAgentID)))
	}
	if s.ParentSessionID != nil {
		parent := *s.ParentSessionID
		if parentMissing {
			parent += " " + color.YellowString("(missing)")
		}
		fmt.Fprintf(&sb, "  Parent:     %s\n", parent)
	}
	return sb.String()
}

// Sessions formats a session list, most recent first as given. Only the first
// MaxListed are printed; the rest are summarised as "+N more".
func (r *Renderer) Sessions(sessions []*domain.Session, activeID string) string {
	if len(sessions) == 0 {
		return "No sessions found\n"
	}

	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Sessions (%d)", len(sessions)))

	for i, s := range sessions {
		if i == MaxListed {
			fmt.Fprintf(&sb, "  +%d more\n", len(sessions)-MaxListed)
			break
		}
		marker := " "
		if s.ID == activeID {
			marker = color.GreenString("*")
		}
		sub := ""
		if s.IsSubAgent() {
			sub = " " + color.MagentaString("[sub:%s]", domain.Deref(s.SubAgentID))
		}
		fmt.Fprintf(&sb, "%s %s  %s  %3d turns  %s%s\n",
			marker,
			s.ID,
			color.HiBlackString(s.Created.Local().Format(timeLayout)),
			s.TurnCount(),
			s.WorkingDirectory,
			sub,
		)
	}
	return sb.String()
}

// History formats the last MaxHistory turns in chronological order.
func (r *Renderer) History(s *domain.Session) string {
	if s.TurnCount() == 0 {
		return "No conversation history\n"
	}

	var sb strings.Builder
	turns := s.LastTurns(MaxHistory)
	if len(turns) < s.TurnCount() {
		r.header(&sb, fmt.Sprintf("History (last %d of %d turns)", len(turns), s.TurnCount()))
	} else {
		r.header(&sb, fmt.Sprintf("History (%d turns)", len(turns)))
	}

	for _, t := range turns {
		fmt.Fprintf(&sb, "[%s] %s: %s\n",
			color.HiBlackString(t.Timestamp.Local().Format(timeLayout)),
			roleLabel(t.Role),
			Truncate(oneLine(t.Content), MaxContent),
		)
	}
	return sb.String()
}

// SubAgents formats the sub-agents of a session.
func (r *Renderer) SubAgents(parentID string, subs []*domain.Session) string {
	if len(subs) == 0 {
		return fmt.Sprintf("No sub-agents for %s\n", parentID)
	}
	var sb strings.Builder
	r.header(&sb, fmt.Sprintf("Sub-agents of %s", parentID))
	for _, s := range subs {
		fmt.Fprintf(&sb, "  %s  %s  %d turns\n", color.MagentaString(domain.Deref(s.SubAgentID)), s.ID, s.TurnCount())
	}
	return sb.String()
}

func (r *Renderer) header(sb *strings.Builder, title string) {
	if !r.pretty {
		sb.WriteString(title + "\n")
		return
	}
	sb.WriteString(color.CyanString(title) + "\n")
	sb.WriteString(strings.Repeat("─", 40) + "\n")
}

func roleLabel(role domain.Role) string {
	switch role {
	case domain.RoleUser:
		return color.BlueString(string(role))
	case domain.RoleAssistant:
		return color.GreenString(string(role))
	default:
		return color.YellowString(string(role))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n < 4 {
		n = 4
	}
	return string(runes[:n-3]) + "..."
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
