// Package styles contains Lip Gloss style definitions.
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// Palette
var (
	BorderColor    = lipgloss.AdaptiveColor{Light: "#8C8FA1", Dark: "#585B70"}
	TitleColor     = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	TextColor      = lipgloss.AdaptiveColor{Light: "#4C4F69", Dark: "#CDD6F4"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#9CA0B0", Dark: "#7F849C"}
	DoneColor      = lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"}
	ActiveColor    = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	WarningColor   = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}
	PhaseBadgeText = lipgloss.AdaptiveColor{Light: "#EFF1F5", Dark: "#1E1E2E"}
)

// Shared styles
var (
	LabelStyle = lipgloss.NewStyle().Foreground(MutedColor).Width(10)
	ValueStyle = lipgloss.NewStyle().Foreground(TextColor)
	HintStyle  = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
	PhaseStyle = lipgloss.NewStyle().Foreground(PhaseBadgeText).Background(TitleColor).Padding(0, 1)
)

const (
	cornerTL   = "╭"
	cornerTR   = "╮"
	cornerBL   = "╰"
	cornerBR   = "╯"
	horizontal = "─"
	vertical   = "│"
)

// TitledBox draws content in a rounded border of the given outer width with title
// embedded on the left of the top edge and badge on the right. Either may be empty.
func TitledBox(content, title, badge string, width int) string {
	inner := max(width-2, 1)
	border := lipgloss.NewStyle().Foreground(BorderColor)
	titleStyle := lipgloss.NewStyle().Foreground(TitleColor).Bold(true)

	var sb strings.Builder
	sb.WriteString(topEdge(title, badge, inner, border, titleStyle))
	sb.WriteByte('\n')

	body := lipgloss.NewStyle().Width(inner).Render(content)
	for _, line := range strings.Split(body, "\n") {
		if w := lipgloss.Width(line); w < inner {
			line += strings.Repeat(" ", inner-w)
		}
		sb.WriteString(border.Render(vertical))
		sb.WriteString(line)
		sb.WriteString(border.Render(vertical))
		sb.WriteByte('\n')
	}

	sb.WriteString(border.Render(cornerBL + strings.Repeat(horizontal, inner) + cornerBR))
	return sb.String()
}

// topEdge renders ╭─ title ───── badge ─╮, dropping the badge and then truncating the
// title when inner is too narrow.
func topEdge(title, badge string, inner int, border, titleStyle lipgloss.Style) string {
	plain := border.Render(cornerTL + strings.Repeat(horizontal, inner) + cornerTR)
	if title == "" && badge == "" {
		return plain
	}

	// "─ " + title + " " + dashes + " " + badge + " ─"
	fixed := 0
	if title != "" {
		fixed += 3
	}
	if badge != "" {
		fixed += 3
	}
	if title != "" && badge != "" && fixed+lipgloss.Width(title)+lipgloss.Width(badge)+1 > inner {
		badge = ""
		fixed = 3
	}
	if title != "" {
		title = Truncate(title, inner-fixed-1)
		if title == "" {
			return plain
		}
	}

	dashes := max(inner-fixed-lipgloss.Width(title)-lipgloss.Width(badge), 1)

	var sb strings.Builder
	sb.WriteString(border.Render(cornerTL))
	if title != "" {
		sb.WriteString(border.Render(horizontal + " "))
		sb.WriteString(titleStyle.Render(title))
		sb.WriteString(border.Render(" "))
	}
	sb.WriteString(border.Render(strings.Repeat(horizontal, dashes)))
	if badge != "" {
		sb.WriteString(border.Render(" "))
		sb.WriteString(titleStyle.Render(badge))
		sb.WriteString(border.Render(" " + horizontal))
	}
	sb.WriteString(border.Render(cornerTR))
	return sb.String()
}

// Truncate shortens s to at most width cells, ending with "..." when cut.
func Truncate(s string, width int) string {
	if width < 1 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return strings.Repeat(".", width)
	}
	return truncate.StringWithTail(s, uint(width), "...") //nolint:gosec // width is positive
}
