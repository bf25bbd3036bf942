// Package watch is the live terminal view of a session's workflow progress.
package watch

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/transcript"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
	"github.com/zjrosen/stagehook/internal/ui/statusview"
	"github.com/zjrosen/stagehook/internal/ui/styles"
)

// refreshMsg asks the model to re-read the state directory.
type refreshMsg struct{}

// loadedMsg carries the record read from disk (nil when idle).
type loadedMsg struct {
	state  *session.State
	marker statusview.MarkerStatus
}

// markerMsg carries a transcript re-check for the displayed run and stage.
type markerMsg struct {
	runID  string
	index  int
	marker statusview.MarkerStatus
}

// tickMsg refreshes relative ages and the marker status.
type tickMsg time.Time

// Model holds the watch view state.
type Model struct {
	store     *session.Store
	catalog   *workflow.Catalog
	sessionID string
	changes   <-chan struct{}
	inspector *transcript.Inspector
	now       func() time.Time

	state  *session.State
	marker statusview.MarkerStatus
	width  int
	height int
	loaded bool
}

// New creates a watch model. An empty sessionID follows the most recently updated
// session. changes may be nil, in which case the view refreshes only on start and "r".
func New(store *session.Store, catalog *workflow.Catalog, sessionID string, changes <-chan struct{}) Model {
	return Model{
		store:     store,
		catalog:   catalog,
		sessionID: sessionID,
		changes:   changes,
		now:       time.Now,
		width:     60,
	}
}

// WithInspector makes the view track whether the current stage's marker has reached
// the transcript. The inspector is shared across refreshes.
func (m Model) WithInspector(ins *transcript.Inspector) Model {
	m.inspector = ins
	return m
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange(), tick())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}

	case refreshMsg:
		return m, tea.Batch(m.load(), m.waitForChange())

	case loadedMsg:
		m.state = msg.state
		m.marker = msg.marker
		m.loaded = true

	case markerMsg:
		if m.state != nil && m.state.RunID == msg.runID && m.state.StageIndex == msg.index {
			m.marker = msg.marker
		}

	case tickMsg:
		return m, tea.Batch(tick(), m.checkMarker())
	}
	return m, nil
}

// View renders the current record.
func (m Model) View() string {
	if !m.loaded {
		return styles.HintStyle.Render("Loading...")
	}

	var def *workflow.Definition
	if m.state != nil && m.catalog != nil {
		def, _ = m.catalog.Get(m.state.WorkflowType)
	}

	var b strings.Builder
	b.WriteString(statusview.Render(m.state, statusview.Options{
		Width:      min(m.width, 80),
		Definition: def,
		Now:        m.now(),
		Marker:     m.marker,
	}))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().MarginLeft(1).Render(styles.HintStyle.Render("r refresh · q quit")))
	return b.String()
}

// State returns the record currently displayed.
func (m Model) State() *session.State {
	return m.state
}

// Marker returns the marker status currently displayed.
func (m Model) Marker() statusview.MarkerStatus {
	return m.marker
}

func (m Model) load() tea.Cmd {
	store, sessionID, ins := m.store, m.sessionID, m.inspector
	return func() tea.Msg {
		st := current(store, sessionID)
		return loadedMsg{state: st, marker: statusview.CheckMarker(ins, st)}
	}
}

// checkMarker re-reads the transcript tail for the displayed stage. Unchanged
// transcripts are answered from the inspector's tail cache.
func (m Model) checkMarker() tea.Cmd {
	if m.inspector == nil || m.state == nil {
		return nil
	}
	ins, st := m.inspector, m.state
	return func() tea.Msg {
		return markerMsg{runID: st.RunID, index: st.StageIndex, marker: statusview.CheckMarker(ins, st)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	changes := m.changes
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return refreshMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// current returns the record for sessionID, or the newest record when sessionID is empty.
func current(store *session.Store, sessionID string) *session.State {
	if sessionID != "" {
		st, _ := store.Load(sessionID)
		return st
	}
	all, err := store.List()
	if err != nil || len(all) == 0 {
		return nil
	}
	return all[0]
}
