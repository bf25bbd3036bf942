package sqlite

import "time"

// Decision is one journaled orchestrator decision.
type Decision struct {
	ID         int64
	SessionID  string
	RunID      string
	Event      string
	Workflow   string
	StageIndex int
	Action     string
	Detail     string
	CreatedAt  time.Time
}

// DecisionModel represents the database row for the decisions table.
// Fields map directly to SQL columns with Unix millisecond timestamps for time values.
type DecisionModel struct {
	ID         int64
	SessionID  string
	RunID      string
	Event      string
	Workflow   string
	StageIndex int64
	Action     string
	Detail     string
	CreatedAt  int64 // Unix milliseconds
}

// toDecisionModel converts a Decision to a database DecisionModel.
func toDecisionModel(d *Decision) *DecisionModel {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &DecisionModel{
		ID:         d.ID,
		SessionID:  d.SessionID,
		RunID:      d.RunID,
		Event:      d.Event,
		Workflow:   d.Workflow,
		StageIndex: int64(d.StageIndex),
		Action:     d.Action,
		Detail:     d.Detail,
		CreatedAt:  created.UnixMilli(),
	}
}

// toDecision converts a database DecisionModel to a Decision.
func (m *DecisionModel) toDecision() *Decision {
	return &Decision{
		ID:         m.ID,
		SessionID:  m.SessionID,
		RunID:      m.RunID,
		Event:      m.Event,
		Workflow:   m.Workflow,
		StageIndex: int(m.StageIndex),
		Action:     m.Action,
		Detail:     m.Detail,
		CreatedAt:  time.UnixMilli(m.CreatedAt),
	}
}
