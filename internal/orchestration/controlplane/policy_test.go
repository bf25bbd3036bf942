package controlplane

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
)

func TestPolicy_Validate_AcceptsDefaults(t *testing.T) {
	policy := DefaultPolicy()
	require.NoError(t, policy.Validate())
}

func TestPolicy_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr string
	}{
		{"zero grace", func(p *Policy) { p.GracePeriod = 0 }, "grace_period must be positive"},
		{"negative cooldown", func(p *Policy) { p.ReinjectCooldown = -time.Second }, "reinject_cooldown cannot be negative"},
		{"zero max", func(p *Policy) { p.MaxReinjects = 0 }, "max_reinjects must be positive"},
		{"zero stall threshold", func(p *Policy) { p.StallThreshold = 0 }, "stall_threshold must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			tt.mutate(&policy)
			err := policy.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPolicy_Validate_AllowsZeroCooldown(t *testing.T) {
	policy := DefaultPolicy()
	policy.ReinjectCooldown = 0
	require.NoError(t, policy.Validate())
}

func TestPolicyFromConfig_MatchesDefaults(t *testing.T) {
	require.Equal(t, DefaultPolicy(), PolicyFromConfig(config.Defaults().Policy))
}

func TestPolicy_InGracePeriodAt(t *testing.T) {
	policy := DefaultPolicy()
	written := time.Unix(1700000000, 0)
	st := &session.State{Timestamp: session.EpochSeconds(written)}

	require.True(t, policy.InGracePeriodAt(st, false, written.Add(29*time.Second)))
	require.False(t, policy.InGracePeriodAt(st, false, written.Add(30*time.Second)))
	require.False(t, policy.InGracePeriodAt(st, true, written), "a ready transcript ends the grace period")
}

func TestPolicy_CanReinjectAt(t *testing.T) {
	written := time.Unix(1700000000, 0)

	tests := []struct {
		name   string
		policy func() Policy
		state  func() *session.State
		at     time.Duration
		want   bool
	}{
		{
			name:   "first reinjection",
			policy: DefaultPolicy,
			state:  func() *session.State { return &session.State{Timestamp: session.EpochSeconds(written)} },
			want:   true,
		},
		{
			name:   "inside cooldown",
			policy: DefaultPolicy,
			state: func() *session.State {
				st := &session.State{Timestamp: session.EpochSeconds(written)}
				st.RecordReinject(0, written)
				return st
			},
			at:   1999 * time.Millisecond,
			want: false,
		},
		{
			name:   "cooldown elapsed exactly",
			policy: DefaultPolicy,
			state: func() *session.State {
				st := &session.State{Timestamp: session.EpochSeconds(written)}
				st.RecordReinject(0, written)
				return st
			},
			at:   2 * time.Second,
			want: true,
		},
		{
			name:   "count exhausted",
			policy: DefaultPolicy,
			state: func() *session.State {
				st := &session.State{StageIndex: 3, ReinjectCounts: map[string]int{"3": 4}}
				return st
			},
			at:   time.Hour,
			want: false,
		},
		{
			name:   "other stage counts do not apply",
			policy: DefaultPolicy,
			state: func() *session.State {
				return &session.State{StageIndex: 1, ReinjectCounts: map[string]int{"0": 4}}
			},
			want: true,
		},
		{
			name: "stall gate blocks young stage",
			policy: func() Policy {
				p := DefaultPolicy()
				p.StallGate = true
				return p
			},
			state: func() *session.State { return &session.State{Timestamp: session.EpochSeconds(written)} },
			at:    4 * time.Minute,
			want:  false,
		},
		{
			name: "stall gate passes stalled stage",
			policy: func() Policy {
				p := DefaultPolicy()
				p.StallGate = true
				return p
			},
			state: func() *session.State { return &session.State{Timestamp: session.EpochSeconds(written)} },
			at:    5 * time.Minute,
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.policy().CanReinjectAt(tt.state(), written.Add(tt.at)))
		})
	}
}

func TestAction_String(t *testing.T) {
	require.Equal(t, "noop", ActionNoop.String())
	require.Equal(t, "allow", ActionAllow.String())
	require.Equal(t, "block", ActionBlock.String())
	require.Equal(t, "reply", ActionReply.String())
	require.Equal(t, "unknown(42)", Action(42).String())
}

func TestAction_IsValid(t *testing.T) {
	require.True(t, ActionNoop.IsValid())
	require.True(t, ActionReply.IsValid())
	require.False(t, Action(-1).IsValid())
	require.False(t, Action(4).IsValid())
}

func TestMarker(t *testing.T) {
	require.Equal(t, "[WF:--longrun:3:abc123]", Marker("--longrun", 3, "abc123"))
}

func TestFormatPrompt(t *testing.T) {
	def := &workflow.Definition{
		Trigger: "--x",
		Stages: []workflow.Stage{
			{Name: "investigate", Prompt: "/plan look around"},
			{Name: "wrap_up"},
		},
	}

	t.Run("with original request", func(t *testing.T) {
		got := FormatPrompt(def, 0, "s1", "fix the bug")
		want := "/plan look around\n\n" +
			"🔄 LONGRUN WORKFLOW - Stage 1/2: INVESTIGATE [WF:--x:0:s1]\n\n" +
			"Original Request: fix the bug"
		require.Equal(t, want, got)
	})

	t.Run("without original request", func(t *testing.T) {
		got := FormatPrompt(def, 0, "s1", "")
		require.Equal(t, "/plan look around\n\n🔄 LONGRUN WORKFLOW - Stage 1/2: INVESTIGATE [WF:--x:0:s1]", got)
	})

	t.Run("stage without template uses fallback", func(t *testing.T) {
		got := FormatPrompt(def, 1, "s1", "")
		require.True(t, len(got) > 0 && got[0] == '/')
		require.Contains(t, got, workflow.DefaultFallbackPrompt)
		require.Contains(t, got, "Stage 2/2: WRAP_UP")
	})
}
