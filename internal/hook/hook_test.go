package hook

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/infrastructure/sqlite"
	"github.com/zjrosen/stagehook/internal/orchestration/controlplane"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name string
		want EventKind
	}{
		{NameUserPromptSubmit, EventStart},
		{NameStop, EventStop},
		{NameSubagentStop, EventStop},
		{NamePostToolUse, EventToolUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := ParseEvent("PreCompact")
	var unknown *UnknownEventError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "unknown hook event: PreCompact", err.Error())

	_, err = ParseEvent("")
	require.EqualError(t, err, "no hook event specified")
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "start", EventStart.String())
	require.Equal(t, "stop", EventStop.String())
	require.Equal(t, "tool", EventToolUse.String())
	require.Equal(t, "unknown(9)", EventKind(9).String())
}

func TestDecodePayload(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		p := DecodePayload([]byte(`{"session_id":"s1","cwd":"/w","transcript_path":"/t.jsonl","prompt":"hi","hook_event_name":"Stop"}`))
		require.Equal(t, Payload{SessionID: "s1", Cwd: "/w", TranscriptPath: "/t.jsonl", Prompt: "hi", HookEventName: "Stop"}, p)
	})

	for name, input := range map[string]string{
		"empty":      "",
		"malformed":  `{"session_id":`,
		"array":      `["a"]`,
		"string":     `"hello"`,
		"null":       `null`,
		"wrong type": `{"session_id":42,"prompt":{"x":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, Payload{}, DecodePayload([]byte(input)))
		})
	}
}

func TestParsePayload_Reader(t *testing.T) {
	p := ParsePayload(strings.NewReader(`{"content":"--test go"}`))
	require.Equal(t, "--test go", p.SubmittedText())
	require.Equal(t, Payload{}, ParsePayload(nil))
}

func TestPayload_SubmittedTextPrefersPrompt(t *testing.T) {
	require.Equal(t, "a", Payload{Prompt: "a", Content: "b"}.SubmittedText())
	require.Equal(t, "b", Payload{Content: "b"}.SubmittedText())
	require.Empty(t, Payload{}.SubmittedText())
}

func TestPayload_WorkDirFallsBackToProcess(t *testing.T) {
	require.Equal(t, "/project", Payload{Cwd: "/project"}.WorkDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, wd, Payload{}.WorkDir())
}

func TestJSONSink(t *testing.T) {
	tests := []struct {
		name   string
		out    controlplane.Outcome
		stdout string
	}{
		{"allow", controlplane.Outcome{Action: controlplane.ActionAllow}, "{}\n"},
		{"block", controlplane.Outcome{Action: controlplane.ActionBlock, Reason: "do \"it\""}, `{"decision":"block","reason":"do \"it\""}` + "\n"},
		{"reply", controlplane.Outcome{Action: controlplane.ActionReply, Reason: "/prompt"}, "/prompt"},
		{"noop", controlplane.Outcome{Action: controlplane.ActionNoop}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout bytes.Buffer
			code := JSONSink{Stdout: &stdout}.Emit(tt.out)
			require.Equal(t, ExitOK, code)
			require.Equal(t, tt.stdout, stdout.String())
		})
	}
}

func TestStderrSink(t *testing.T) {
	tests := []struct {
		name   string
		out    controlplane.Outcome
		code   int
		stdout string
		stderr string
	}{
		{"allow", controlplane.Outcome{Action: controlplane.ActionAllow}, ExitOK, "", ""},
		{"block", controlplane.Outcome{Action: controlplane.ActionBlock, Reason: "next stage"}, ExitBlock, "", "next stage"},
		{"reply", controlplane.Outcome{Action: controlplane.ActionReply, Reason: "/prompt"}, ExitOK, "/prompt", ""},
		{"noop", controlplane.Outcome{Action: controlplane.ActionNoop}, ExitOK, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := StderrSink{Stdout: &stdout, Stderr: &stderr}.Emit(tt.out)
			require.Equal(t, tt.code, code)
			require.Equal(t, tt.stdout, stdout.String())
			require.Equal(t, tt.stderr, stderr.String())
		})
	}
}

func TestNewSink(t *testing.T) {
	s, err := NewSink("", nil, nil)
	require.NoError(t, err)
	require.Equal(t, config.HookModeJSON, s.Mode())

	s, err = NewSink(config.HookModeStderr, nil, nil)
	require.NoError(t, err)
	require.Equal(t, config.HookModeStderr, s.Mode())

	_, err = NewSink("xml", nil, nil)
	require.ErrorContains(t, err, "unknown hook mode")
}

// fakeHandler records the requests it receives.
type fakeHandler struct {
	mu    sync.Mutex
	calls []string
	reqs  []controlplane.Request
	out   controlplane.Outcome
}

func (f *fakeHandler) handle(entry string, req controlplane.Request) controlplane.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, entry)
	f.reqs = append(f.reqs, req)
	return f.out
}

func (f *fakeHandler) HandleStart(_ context.Context, req controlplane.Request) controlplane.Outcome {
	return f.handle("start", req)
}

func (f *fakeHandler) HandleStop(_ context.Context, req controlplane.Request) controlplane.Outcome {
	return f.handle("stop", req)
}

func (f *fakeHandler) HandleToolUse(_ context.Context, req controlplane.Request) controlplane.Outcome {
	return f.handle("tool", req)
}

type fakeRecorder struct {
	decisions []*sqlite.Decision
	err       error
}

func (f *fakeRecorder) Record(_ context.Context, d *sqlite.Decision) error {
	f.decisions = append(f.decisions, d)
	return f.err
}

func TestDispatch_RoutesEvents(t *testing.T) {
	tests := map[string]string{
		NameUserPromptSubmit: "start",
		NameStop:             "stop",
		NameSubagentStop:     "stop",
		NamePostToolUse:      "tool",
	}
	for event, entry := range tests {
		t.Run(event, func(t *testing.T) {
			h := &fakeHandler{out: controlplane.Outcome{Action: controlplane.ActionNoop}}
			var stdout bytes.Buffer
			d := NewDispatcher(h, JSONSink{Stdout: &stdout}, nil)

			code := d.Dispatch(context.Background(), event, Payload{SessionID: "s1", Prompt: "p"})
			require.Equal(t, ExitOK, code)
			require.Equal(t, []string{entry}, h.calls)
			require.Equal(t, controlplane.Request{SessionID: "s1", Content: "p"}, h.reqs[0])
		})
	}
}

func TestDispatch_UnknownEvent(t *testing.T) {
	h := &fakeHandler{}
	var stdout bytes.Buffer
	d := NewDispatcher(h, JSONSink{Stdout: &stdout}, nil)

	code := d.Dispatch(context.Background(), "Bogus", Payload{})
	require.Equal(t, ExitUnknownEvent, code)
	require.Empty(t, h.calls)
	require.Empty(t, stdout.String())
}

func TestDispatch_DerivesSessionWhenAbsent(t *testing.T) {
	h := &fakeHandler{out: controlplane.Outcome{Action: controlplane.ActionAllow}}
	d := NewDispatcher(h, JSONSink{Stdout: &bytes.Buffer{}}, nil)

	d.Dispatch(context.Background(), NameStop, Payload{TranscriptPath: "/tmp/t.jsonl", Cwd: "/w"})
	d.Dispatch(context.Background(), NameStop, Payload{TranscriptPath: "/tmp/t.jsonl", Cwd: "/w"})

	require.Len(t, h.reqs, 2)
	require.Len(t, h.reqs[0].SessionID, 12)
	require.Equal(t, h.reqs[0].SessionID, h.reqs[1].SessionID)
}

func TestDispatch_JournalsWorkflowDecisions(t *testing.T) {
	h := &fakeHandler{out: controlplane.Outcome{
		Action:     controlplane.ActionBlock,
		Reason:     "next",
		Detail:     controlplane.DetailAdvanced,
		SessionID:  "s1",
		RunID:      "run-1",
		Workflow:   "--test",
		StageIndex: 1,
	}}
	rec := &fakeRecorder{}
	var stderr bytes.Buffer
	d := NewDispatcher(h, StderrSink{Stdout: &bytes.Buffer{}, Stderr: &stderr}, rec)

	code := d.Dispatch(context.Background(), NameStop, Payload{SessionID: "s1"})
	require.Equal(t, ExitBlock, code)
	require.Equal(t, "next", stderr.String())
	require.Len(t, rec.decisions, 1)
	got := rec.decisions[0]
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, NameStop, got.Event)
	assert.Equal(t, "--test", got.Workflow)
	assert.Equal(t, 1, got.StageIndex)
	assert.Equal(t, "block", got.Action)
	assert.Equal(t, "advanced", got.Detail)
}

func TestDispatch_SkipsIdleDecisions(t *testing.T) {
	for _, detail := range []controlplane.Detail{controlplane.DetailIdle, controlplane.DetailNoTrigger, ""} {
		h := &fakeHandler{out: controlplane.Outcome{Action: controlplane.ActionAllow, Detail: detail}}
		rec := &fakeRecorder{}
		d := NewDispatcher(h, JSONSink{Stdout: &bytes.Buffer{}}, rec)
		d.Dispatch(context.Background(), NameStop, Payload{SessionID: "s1"})
		require.Empty(t, rec.decisions, "detail %q", detail)
	}
}

func TestDispatch_JournalFailureDoesNotChangeDecision(t *testing.T) {
	h := &fakeHandler{out: controlplane.Outcome{Action: controlplane.ActionAllow, Detail: controlplane.DetailCompleted}}
	rec := &fakeRecorder{err: errors.New("disk full")}
	var stdout bytes.Buffer
	d := NewDispatcher(h, JSONSink{Stdout: &stdout}, rec)

	code := d.Dispatch(context.Background(), NameStop, Payload{SessionID: "s1"})
	require.Equal(t, ExitOK, code)
	require.Equal(t, "{}\n", stdout.String())
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newRuntime(t *testing.T, mode string, clock controlplane.Clock) (*Runtime, *bytes.Buffer, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.HookMode = mode
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.Journal.Enabled = true

	var stdout, stderr bytes.Buffer
	rt, err := New(Options{Config: cfg, ProjectDir: dir, Stdout: &stdout, Stderr: &stderr, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, &stdout, &stderr, dir
}

func TestRuntime_EndToEnd(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1_700_000_000, 0)}
	rt, stdout, stderr, dir := newRuntime(t, config.HookModeStderr, clock)
	transcriptPath := filepath.Join(dir, "transcript.jsonl")
	require.NoError(t, os.WriteFile(transcriptPath, []byte("{}\n"), 0600))
	payload := Payload{SessionID: "e2e", TranscriptPath: transcriptPath, Cwd: dir}

	// Start: stage 0 prompt is replied on stdout.
	payload.Prompt = "--test please go"
	code := rt.Dispatch(context.Background(), NameUserPromptSubmit, payload)
	require.Equal(t, ExitOK, code)
	require.Contains(t, stdout.String(), controlplane.Marker("--test", 0, "e2e"))
	require.Contains(t, stdout.String(), "Original Request: please go")

	st, ok := rt.Store.Load("e2e")
	require.True(t, ok)
	require.Equal(t, 0, st.StageIndex)
	require.Equal(t, filepath.Join(dir, "state"), rt.Store.Dir())

	// Stop with the marker echoed: advance to stage 1 through a block on stderr.
	payload.Prompt = ""
	f, err := os.OpenFile(transcriptPath, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString(controlplane.Marker("--test", 0, "e2e") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code = rt.Dispatch(context.Background(), NameStop, payload)
	require.Equal(t, ExitBlock, code)
	require.Contains(t, strings.ToLower(stderr.String()), "task_2")

	st, ok = rt.Store.Load("e2e")
	require.True(t, ok)
	require.Equal(t, 1, st.StageIndex)

	entries, err := rt.db.Journal().ListBySession(context.Background(), "e2e", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "advanced", entries[0].Detail)
	require.Equal(t, "started", entries[1].Detail)
}

func TestRuntime_JSONModeIdleStopAllows(t *testing.T) {
	rt, stdout, stderr, dir := newRuntime(t, config.HookModeJSON, nil)
	code := rt.Dispatch(context.Background(), NameStop, Payload{SessionID: "idle", Cwd: dir})
	require.Equal(t, ExitOK, code)
	require.Equal(t, "{}\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestNew_InvalidMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.HookMode = "yaml"
	_, err := New(Options{Config: cfg, ProjectDir: t.TempDir()})
	require.Error(t, err)
}

func TestNew_InvalidPolicy(t *testing.T) {
	cfg := config.Defaults()
	cfg.Policy.MaxReinjects = 0
	_, err := New(Options{Config: cfg, ProjectDir: t.TempDir()})
	require.ErrorContains(t, err, "creating orchestrator")
}
