// Package hook is the boundary between the agent harness and the orchestrator. It maps
// hook event names to orchestrator entry points, parses the stdin payload and renders
// decisions through the configured sink.
package hook

import "fmt"

// EventKind classifies a hook event.
type EventKind int

const (
	// EventStart is new user-submitted content.
	EventStart EventKind = iota
	// EventStop is the end of an agent turn or a sub-agent run.
	EventStop
	// EventToolUse is a completed tool call.
	EventToolUse
)

// Event names as delivered by the harness.
const (
	NameUserPromptSubmit = "UserPromptSubmit"
	NameStop             = "Stop"
	NameSubagentStop     = "SubagentStop"
	NamePostToolUse      = "PostToolUse"
)

// EventNames lists the recognized event names.
var EventNames = []string{NameUserPromptSubmit, NameStop, NameSubagentStop, NamePostToolUse}

// String returns the string representation of an EventKind.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventToolUse:
		return "tool"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// UnknownEventError reports an event name the dispatcher does not handle.
type UnknownEventError struct {
	Name string
}

func (e *UnknownEventError) Error() string {
	if e.Name == "" {
		return "no hook event specified"
	}
	return fmt.Sprintf("unknown hook event: %s", e.Name)
}

// ParseEvent maps an event name to its kind. Stop and SubagentStop are the same kind.
func ParseEvent(name string) (EventKind, error) {
	switch name {
	case NameUserPromptSubmit:
		return EventStart, nil
	case NameStop, NameSubagentStop:
		return EventStop, nil
	case NamePostToolUse:
		return EventToolUse, nil
	default:
		return 0, &UnknownEventError{Name: name}
	}
}
