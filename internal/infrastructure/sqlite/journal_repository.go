package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultListLimit bounds ListBySession when no limit is given.
const DefaultListLimit = 50

// Journal records orchestrator decisions.
type Journal struct {
	db *sql.DB
}

// newJournal creates a new Journal instance.
func newJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record inserts a decision and sets its ID.
func (j *Journal) Record(ctx context.Context, d *Decision) error {
	if d == nil {
		return errors.New("recording decision: nil decision")
	}
	model := toDecisionModel(d)

	result, err := j.db.ExecContext(ctx,
		`INSERT INTO decisions (session_id, run_id, event, workflow, stage_index, action, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		model.SessionID, model.RunID, model.Event, model.Workflow, model.StageIndex,
		model.Action, model.Detail, model.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// ListBySession returns the most recent decisions for a session, newest first.
// A non-positive limit selects DefaultListLimit.
func (j *Journal) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return j.query(ctx,
		`SELECT id, session_id, run_id, event, workflow, stage_index, action, detail, created_at
		 FROM decisions
		 WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
}

// ListRecent returns the most recent decisions across all sessions, newest first.
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return j.query(ctx,
		`SELECT id, session_id, run_id, event, workflow, stage_index, action, detail, created_at
		 FROM decisions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]*Decision, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*Decision
	for rows.Next() {
		var m DecisionModel
		if err := rows.Scan(&m.ID, &m.SessionID, &m.RunID, &m.Event, &m.Workflow,
			&m.StageIndex, &m.Action, &m.Detail, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, m.toDecision())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decisions: %w", err)
	}
	return decisions, nil
}
