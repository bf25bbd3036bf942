package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveID(t *testing.T) {
	t.Run("explicit id wins", func(t *testing.T) {
		require.Equal(t, "abc-123", ResolveID(" abc-123 ", "/t.jsonl", "/cwd"))
	})

	t.Run("derived from transcript path", func(t *testing.T) {
		id := ResolveID("", "/tmp/t.jsonl", "/cwd")
		require.Len(t, id, 12)
		require.Equal(t, id, ResolveID("", "/tmp/t.jsonl", "/other"), "cwd ignored when transcript known")
	})

	t.Run("falls back to cwd", func(t *testing.T) {
		a := ResolveID("", "", "/project/a")
		b := ResolveID("", "", "/project/b")
		require.Len(t, a, 12)
		require.NotEqual(t, a, b)
		require.Equal(t, a, ResolveID("", "", "/project/a"))
	})

	t.Run("unsafe explicit id is hashed", func(t *testing.T) {
		id := ResolveID("../../etc/passwd", "", "")
		require.Len(t, id, 12)
		require.NotContains(t, id, "/")
	})
}

func TestNewProgress(t *testing.T) {
	p := NewProgress(0, 3, "🔍 Investigation")
	require.Equal(t, "1/3", p.CurrentStage)
	require.Equal(t, "33%", p.Percentage)
	require.Equal(t, 2, p.StagesRemaining)

	p = NewProgress(2, 3, "")
	require.Equal(t, "100%", p.Percentage)
	require.Equal(t, 0, p.StagesRemaining)

	p = NewProgress(4, 11, "")
	require.Equal(t, "45%", p.Percentage)
}

func TestNewProgress_HalfRoundsToEven(t *testing.T) {
	tests := []struct {
		index, total int
		want         string
	}{
		{0, 8, "12%"},
		{2, 8, "38%"},
		{4, 8, "62%"},
		{6, 8, "88%"},
		{0, 16, "6%"},
		{0, 200, "0%"},
		{2, 200, "2%"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d of %d", tt.index+1, tt.total), func(t *testing.T) {
			require.Equal(t, tt.want, NewProgress(tt.index, tt.total, "").Percentage)
		})
	}
}

func TestEpochRoundTrip(t *testing.T) {
	now := time.Unix(1700000123, 250000000)
	back := FromEpoch(EpochSeconds(now))
	require.WithinDuration(t, now, back, time.Millisecond)
	require.True(t, FromEpoch(0).IsZero())
}

func TestReinjectBookkeeping(t *testing.T) {
	st := &State{}
	require.Equal(t, 0, st.ReinjectCount(3))
	require.True(t, st.LastReinjectAt().IsZero())

	now := time.Unix(1700000000, 0)
	st.RecordReinject(3, now)
	st.RecordReinject(3, now.Add(time.Second))
	st.RecordReinject(1, now.Add(2*time.Second))

	require.Equal(t, 2, st.ReinjectCount(3))
	require.Equal(t, 1, st.ReinjectCount(1))
	require.Equal(t, 3, st.TotalReinjects())
	require.WithinDuration(t, now.Add(2*time.Second), st.LastReinjectAt(), time.Millisecond)
}

func TestClone(t *testing.T) {
	st := &State{ReinjectCounts: map[string]int{"0": 1}}
	c := st.Clone()
	c.ReinjectCounts["0"] = 5
	require.Equal(t, 1, st.ReinjectCount(0))
	require.Nil(t, (*State)(nil).Clone())
}
