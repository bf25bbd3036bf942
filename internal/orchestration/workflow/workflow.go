// Package workflow provides the workflow catalog: the static table of staged workflows a
// trigger in submitted text can start. Definitions are loaded once at process start from
// embedded built-in YAML, opted-in community YAML and an optional user directory.
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultFallbackPrompt is used for a stage whose definition carries no prompt.
const DefaultFallbackPrompt = "/plan continue the current stage; maintain scope and do not regress."

// Source indicates where a workflow definition originated from.
type Source int

const (
	// SourceBuiltIn indicates a workflow bundled with the application.
	SourceBuiltIn Source = iota
	// SourceCommunity indicates a community-contributed workflow.
	SourceCommunity
	// SourceUser indicates a workflow from the user's workflow directory.
	SourceUser
)

// String returns a human-readable representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceBuiltIn:
		return "built-in"
	case SourceCommunity:
		return "community"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// Stage is one ordered step of a workflow.
type Stage struct {
	// Name is unique within its workflow.
	Name string `yaml:"name"`

	// Prompt is the instruction template. It must begin with the slash command the
	// downstream command system activates on. Empty means the workflow fallback.
	Prompt string `yaml:"prompt"`

	// Phase overrides the index-derived phase label shown in progress fields.
	Phase string `yaml:"phase"`
}

// Definition is an immutable staged workflow selected by its trigger.
type Definition struct {
	// Trigger is the literal substring that starts this workflow. It doubles as the
	// workflow identifier persisted in session state.
	Trigger string `yaml:"trigger"`

	// Name is the human-readable display name.
	Name string `yaml:"name"`

	// Description is a one-line summary for listings.
	Description string `yaml:"description"`

	// Stages are executed strictly in order.
	Stages []Stage `yaml:"stages"`

	// Fallback replaces DefaultFallbackPrompt for stages without a prompt.
	Fallback string `yaml:"fallback"`

	// Source indicates whether this is a built-in, community or user workflow.
	Source Source `yaml:"-"`

	// FilePath is the file a user workflow was read from (empty otherwise).
	FilePath string `yaml:"-"`
}

// Validate checks the structural invariants of a definition.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Trigger) == "" {
		return errors.New("trigger is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %s: at least one stage is required", d.Trigger)
	}
	seen := make(map[string]struct{}, len(d.Stages))
	for i, st := range d.Stages {
		if st.Name == "" {
			return fmt.Errorf("workflow %s: stage %d: name is required", d.Trigger, i)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("workflow %s: duplicate stage %q", d.Trigger, st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	return nil
}

// DisplayName returns Name, or the trigger when no name was given.
func (d *Definition) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Trigger
}

// StageCount returns the number of stages.
func (d *Definition) StageCount() int {
	return len(d.Stages)
}

// StageNames returns the ordered stage names.
func (d *Definition) StageNames() []string {
	names := make([]string, len(d.Stages))
	for i, st := range d.Stages {
		names[i] = st.Name
	}
	return names
}

// StageAt returns the stage at index i.
func (d *Definition) StageAt(i int) (Stage, bool) {
	if i < 0 || i >= len(d.Stages) {
		return Stage{}, false
	}
	return d.Stages[i], true
}

// IsLast reports whether i is the final stage index.
func (d *Definition) IsLast(i int) bool {
	return i == len(d.Stages)-1
}

// Prompt resolves the template for a stage name, falling back when the stage is unknown
// or has no prompt of its own.
func (d *Definition) Prompt(stageName string) string {
	for _, st := range d.Stages {
		if st.Name == stageName && st.Prompt != "" {
			return st.Prompt
		}
	}
	if d.Fallback != "" {
		return d.Fallback
	}
	return DefaultFallbackPrompt
}

// Phase returns the phase label for stage index i.
func (d *Definition) Phase(i int) string {
	if st, ok := d.StageAt(i); ok && st.Phase != "" {
		return st.Phase
	}
	return DefaultPhase(i)
}

// DefaultPhase maps a stage index to the long-running workflow's phase labels.
func DefaultPhase(i int) string {
	switch {
	case i == 0:
		return "🔍 Investigation"
	case i == 1 || i == 2:
		return "📋 Planning"
	case i >= 3 && i <= 7:
		return "⚡ Implementation"
	case i == 8 || i == 9:
		return "✅ Verification"
	case i >= 10:
		return "🧹 Cleanup"
	default:
		return "❓ Unknown"
	}
}
