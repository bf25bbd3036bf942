// Package session persists per-session workflow state. One JSON record per session lives
// in the state directory; its presence means a workflow is active.
package session

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// SchemaVersion is the record schema written by this build. Records with a newer schema
// are treated as unreadable.
const SchemaVersion = 1

// State is the persisted record of an active workflow.
type State struct {
	Schema       int    `json:"schema"`
	RunID        string `json:"run_id"`
	WorkflowType string `json:"workflow_type"`
	WorkflowName string `json:"workflow_name"`
	Stage        string `json:"stage"`
	StageIndex   int    `json:"stage_index"`
	SessionID    string `json:"session_id"`

	// Timestamp is when the current stage record was written, in epoch seconds.
	Timestamp float64 `json:"timestamp"`
	// WorkflowStartTS is preserved across every update for the session.
	WorkflowStartTS float64 `json:"workflow_start_ts"`

	Progress        Progress    `json:"progress"`
	ContextSize     ContextSize `json:"context_size"`
	OriginalRequest string      `json:"original_request"`
	// TranscriptPath is the transcript the stage prompt was issued against.
	TranscriptPath string `json:"transcript_path,omitempty"`

	LastReinjectEpoch float64        `json:"last_reinject_epoch"`
	ReinjectCounts    map[string]int `json:"reinject_counts"`
}

// Progress is derived from the stage index and stage count.
type Progress struct {
	CurrentStage    string `json:"current_stage"`
	Percentage      string `json:"percentage"`
	StagesRemaining int    `json:"stages_remaining"`
	Phase           string `json:"phase"`
}

// ContextSize records the transcript size when the record was written.
type ContextSize struct {
	Characters int64 `json:"characters"`
}

// NewProgress computes the progress fields for 0-based index out of total stages.
// Percentages round half to even, so stage 1 of 8 reads 12%.
func NewProgress(index, total int, phase string) Progress {
	pct := 0
	remaining := 0
	if total > 0 {
		pct = int(math.RoundToEven(float64(index+1) / float64(total) * 100))
		remaining = total - (index + 1)
	}
	return Progress{
		CurrentStage:    fmt.Sprintf("%d/%d", index+1, total),
		Percentage:      fmt.Sprintf("%d%%", pct),
		StagesRemaining: remaining,
		Phase:           phase,
	}
}

// EpochSeconds converts t to the float seconds stored in records.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpoch converts stored float seconds back to a time.
func FromEpoch(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

// UpdatedAt returns when the current stage record was written.
func (s *State) UpdatedAt() time.Time {
	return FromEpoch(s.Timestamp)
}

// StartedAt returns when the workflow started.
func (s *State) StartedAt() time.Time {
	return FromEpoch(s.WorkflowStartTS)
}

// LastReinjectAt returns the last reinjection time, zero if none happened.
func (s *State) LastReinjectAt() time.Time {
	return FromEpoch(s.LastReinjectEpoch)
}

// ReinjectCount returns the reinjection count recorded for a stage index.
func (s *State) ReinjectCount(index int) int {
	return s.ReinjectCounts[strconv.Itoa(index)]
}

// RecordReinject increments the count for index and stamps the reinjection time.
func (s *State) RecordReinject(index int, now time.Time) {
	if s.ReinjectCounts == nil {
		s.ReinjectCounts = make(map[string]int)
	}
	s.ReinjectCounts[strconv.Itoa(index)]++
	s.LastReinjectEpoch = EpochSeconds(now)
}

// TotalReinjects sums reinjections across all stage indexes.
func (s *State) TotalReinjects() int {
	total := 0
	for _, n := range s.ReinjectCounts {
		total += n
	}
	return total
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.ReinjectCounts != nil {
		c.ReinjectCounts = make(map[string]int, len(s.ReinjectCounts))
		for k, v := range s.ReinjectCounts {
			c.ReinjectCounts[k] = v
		}
	}
	return &c
}
