// Package statusview renders a session's workflow record for the terminal.
package statusview

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/stagehook/internal/orchestration/controlplane"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/transcript"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
	"github.com/zjrosen/stagehook/internal/ui/styles"
)

// MinWidth is the narrowest box Render draws.
const MinWidth = 30

// MarkerStatus says whether the current stage's marker has reached the transcript.
type MarkerStatus int

const (
	MarkerUnknown MarkerStatus = iota
	MarkerWaiting
	MarkerSeen
)

func (s MarkerStatus) String() string {
	switch s {
	case MarkerWaiting:
		return "waiting"
	case MarkerSeen:
		return "seen"
	default:
		return "unknown"
	}
}

// CheckMarker looks for st's current stage marker in the transcript the record was
// written against. Records without a transcript path report MarkerUnknown.
func CheckMarker(ins *transcript.Inspector, st *session.State) MarkerStatus {
	if ins == nil || st == nil || st.TranscriptPath == "" {
		return MarkerUnknown
	}
	if ins.Contains(st.TranscriptPath, controlplane.Marker(st.WorkflowType, st.StageIndex, st.SessionID)) {
		return MarkerSeen
	}
	return MarkerWaiting
}

// Options controls rendering.
type Options struct {
	Width int
	// Definition, when set, adds the stage checklist.
	Definition *workflow.Definition
	// Now anchors relative ages. Zero means time.Now().
	Now time.Time
	// Marker adds the marker row unless it is MarkerUnknown.
	Marker MarkerStatus
}

// Render draws st inside a titled box. A nil st renders the idle message.
func Render(st *session.State, opts Options) string {
	width := max(opts.Width, MinWidth)
	inner := width - 2
	if st == nil {
		return styles.TitledBox(styles.HintStyle.Render("No active workflow"), "stagehook", "", width)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	done, total := stagePosition(st, opts.Definition)

	var rows []string
	rows = append(rows, row("Stage", fmt.Sprintf("%s %s", st.Progress.CurrentStage, strings.ToUpper(st.Stage))))
	if st.Progress.Phase != "" {
		rows = append(rows, row("Phase", styles.PhaseStyle.Render(st.Progress.Phase)))
	}

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(max(inner-styles.LabelStyle.GetWidth(), 10)))
	frac := 0.0
	if total > 0 {
		frac = float64(done) / float64(total)
	}
	rows = append(rows, row("Progress", bar.ViewAs(frac)))

	if opts.Definition != nil {
		rows = append(rows, "", checklist(opts.Definition, st.StageIndex))
	}

	rows = append(rows, "")
	rows = append(rows, row("Stage age", Age(st.UpdatedAt(), now)))
	if !st.StartedAt().IsZero() {
		rows = append(rows, row("Running", Age(st.StartedAt(), now)))
	}
	if opts.Marker != MarkerUnknown {
		rows = append(rows, row("Marker", markerLabel(opts.Marker)))
	}
	rows = append(rows, row("Reinjects", reinjectSummary(st)))
	if st.OriginalRequest != "" {
		req := strings.Join(strings.Fields(st.OriginalRequest), " ")
		rows = append(rows, row("Request", styles.Truncate(req, inner-styles.LabelStyle.GetWidth())))
	}
	rows = append(rows, row("Session", styles.HintStyle.Render(st.SessionID)))

	title := st.WorkflowName
	if title == "" {
		title = st.WorkflowType
	}
	return styles.TitledBox(strings.Join(rows, "\n"), title, st.Progress.Percentage, width)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, styles.LabelStyle.Render(label), styles.ValueStyle.Render(value))
}

// stagePosition returns the number of stages reached and the stage count.
func stagePosition(st *session.State, def *workflow.Definition) (int, int) {
	if def != nil {
		return st.StageIndex + 1, def.StageCount()
	}
	var cur, total int
	if _, err := fmt.Sscanf(st.Progress.CurrentStage, "%d/%d", &cur, &total); err != nil {
		return 0, 0
	}
	return cur, total
}

func checklist(def *workflow.Definition, current int) string {
	done := lipgloss.NewStyle().Foreground(styles.DoneColor)
	active := lipgloss.NewStyle().Foreground(styles.ActiveColor).Bold(true)
	pending := lipgloss.NewStyle().Foreground(styles.MutedColor)

	lines := make([]string, 0, def.StageCount())
	for i, name := range def.StageNames() {
		switch {
		case i < current:
			lines = append(lines, done.Render("✓ "+name))
		case i == current:
			lines = append(lines, active.Render("▶ "+name))
		default:
			lines = append(lines, pending.Render("· "+name))
		}
	}
	return strings.Join(lines, "\n")
}

func markerLabel(s MarkerStatus) string {
	if s == MarkerSeen {
		return lipgloss.NewStyle().Foreground(styles.DoneColor).Render("✓ seen")
	}
	return styles.HintStyle.Render("waiting")
}

func reinjectSummary(st *session.State) string {
	if len(st.ReinjectCounts) == 0 {
		return "none"
	}
	idx := make([]int, 0, len(st.ReinjectCounts))
	for k := range st.ReinjectCounts {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		idx = append(idx, n)
	}
	sort.Ints(idx)
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, fmt.Sprintf("#%d×%d", i+1, st.ReinjectCount(i)))
	}
	return strings.Join(parts, " ")
}

// Age formats the time elapsed since t, coarsened to the largest useful unit.
func Age(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm ago", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
