package controlplane

import "fmt"

// Action is the decision an orchestrator entry point hands back to the dispatcher.
type Action int

const (
	// ActionNoop means the event is not a workflow action; nothing is emitted.
	ActionNoop Action = iota

	// ActionAllow lets the agent proceed (stop the turn).
	ActionAllow

	// ActionBlock denies the stop and feeds Reason back to the agent.
	ActionBlock

	// ActionReply hands Reason to the agent directly as its first instruction.
	ActionReply
)

// String returns the string representation of an Action.
func (a Action) String() string {
	switch a {
	case ActionNoop:
		return "noop"
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	case ActionReply:
		return "reply"
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// IsValid returns true if this is a recognized Action value.
func (a Action) IsValid() bool {
	return a >= ActionNoop && a <= ActionReply
}

// Detail explains why an outcome was reached. It is logged and journaled.
type Detail string

const (
	DetailNoTrigger  Detail = "no_trigger"
	DetailStarted    Detail = "started"
	DetailIdle       Detail = "idle"
	DetailGrace      Detail = "grace"
	DetailReinjected Detail = "reinjected"
	DetailExhausted  Detail = "reinject_denied"
	DetailAdvanced   Detail = "advanced"
	DetailCompleted  Detail = "completed"
	DetailRace       Detail = "race"
	DetailCorrupt    Detail = "corrupt_state"
	DetailFault      Detail = "internal_error"
)

// Outcome is the result of handling one event.
type Outcome struct {
	Action Action
	// Reason is the prompt text for ActionBlock and ActionReply.
	Reason string
	Detail Detail

	SessionID  string
	RunID      string
	Workflow   string
	StageIndex int
}

// Blocks reports whether the outcome denies the agent's stop.
func (o Outcome) Blocks() bool {
	return o.Action == ActionBlock
}
