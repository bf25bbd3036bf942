// Package controlplane implements the stage orchestrator: the state machine that decides,
// per hook event, whether an agent may stop, must continue with the next stage, or must be
// re-sent the current stage's instructions.
package controlplane

import (
	"fmt"
	"time"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
)

// Policy defines the grace, cooldown and retry thresholds for reinjection.
type Policy struct {
	// GracePeriod is how long after a stage record is written the orchestrator waits for
	// an empty or missing transcript before acting. Default: 30 seconds.
	GracePeriod time.Duration

	// ReinjectCooldown is the minimum time between two reinjections in one session.
	// Default: 2 seconds.
	ReinjectCooldown time.Duration

	// MaxReinjects bounds reinjections per stage index. Default: 4.
	MaxReinjects int

	// StallThreshold is the stage age required before reinjecting when StallGate is set.
	// Default: 5 minutes.
	StallThreshold time.Duration

	// StallGate enables the StallThreshold check. When false every stage with a
	// missing marker is eligible for reinjection, subject to cooldown and MaxReinjects.
	StallGate bool
}

// DefaultPolicy returns a Policy with the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		GracePeriod:      30 * time.Second,
		ReinjectCooldown: 2 * time.Second,
		MaxReinjects:     4,
		StallThreshold:   5 * time.Minute,
		StallGate:        false,
	}
}

// PolicyFromConfig converts the policy section of the configuration.
func PolicyFromConfig(c config.PolicyConfig) Policy {
	return Policy{
		GracePeriod:      c.GracePeriod,
		ReinjectCooldown: c.ReinjectCooldown,
		MaxReinjects:     c.MaxReinjects,
		StallThreshold:   c.StallThreshold,
		StallGate:        c.StallGate,
	}
}

// Validate checks that the Policy has valid values.
// Returns an error describing the first validation failure, or nil if valid.
func (p *Policy) Validate() error {
	if p.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive: %v", p.GracePeriod)
	}
	if p.ReinjectCooldown < 0 {
		return fmt.Errorf("reinject_cooldown cannot be negative: %v", p.ReinjectCooldown)
	}
	if p.MaxReinjects <= 0 {
		return fmt.Errorf("max_reinjects must be positive: %d", p.MaxReinjects)
	}
	if p.StallThreshold <= 0 {
		return fmt.Errorf("stall_threshold must be positive: %v", p.StallThreshold)
	}
	return nil
}

// InGracePeriodAt reports whether the orchestrator should hold off because the transcript
// is not ready and the stage record is younger than GracePeriod.
func (p Policy) InGracePeriodAt(st *session.State, transcriptReady bool, now time.Time) bool {
	if transcriptReady {
		return false
	}
	return now.Sub(st.UpdatedAt()) < p.GracePeriod
}

// IsStalledAt reports whether the current stage has been idle for StallThreshold.
func (p Policy) IsStalledAt(st *session.State, now time.Time) bool {
	return now.Sub(st.UpdatedAt()) >= p.StallThreshold
}

// CanReinjectAt reports whether the record's current stage may be re-sent at now.
// A reinjection needs the cooldown to have elapsed since the last one and the stage's
// count to be below MaxReinjects.
func (p Policy) CanReinjectAt(st *session.State, now time.Time) bool {
	if st.ReinjectCount(st.StageIndex) >= p.MaxReinjects {
		return false
	}
	if last := st.LastReinjectAt(); !last.IsZero() && now.Sub(last) < p.ReinjectCooldown {
		return false
	}
	if p.StallGate && !p.IsStalledAt(st, now) {
		return false
	}
	return true
}
