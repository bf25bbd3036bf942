package controlplane

import (
	"errors"
	"fmt"
)

// errReinjectDenied aborts a locked update when the policy refuses a reinjection.
var errReinjectDenied = errors.New("reinjection not allowed")

// StageRaceError reports that the persisted stage changed between the read that decided
// an action and the commit of that action. It is a benign race, never surfaced.
type StageRaceError struct {
	SessionID string
	Expected  int
	Actual    int
}

func (e *StageRaceError) Error() string {
	return fmt.Sprintf("session %s: stage index changed from %d to %d before commit", e.SessionID, e.Expected, e.Actual)
}

// CorruptStateError reports a record that cannot belong to any registered workflow.
type CorruptStateError struct {
	SessionID string
	Workflow  string
	Index     int
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("session %s: record references workflow %q stage %d which is not registered", e.SessionID, e.Workflow, e.Index)
}
