package hook

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/orchestration/controlplane"
)

// Process exit statuses.
const (
	ExitOK           = 0
	ExitUnknownEvent = 1
	ExitBlock        = 2
)

// Sink renders an outcome to the harness and returns the process exit status.
type Sink interface {
	Emit(out controlplane.Outcome) int
	Mode() string
}

type blockDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// JSONSink writes decisions as one JSON object on stdout.
type JSONSink struct {
	Stdout io.Writer
}

// Mode implements Sink.
func (JSONSink) Mode() string { return config.HookModeJSON }

// Emit implements Sink.
func (s JSONSink) Emit(out controlplane.Outcome) int {
	switch out.Action {
	case controlplane.ActionReply:
		_, _ = io.WriteString(s.Stdout, out.Reason)
	case controlplane.ActionBlock:
		writeJSON(s.Stdout, blockDecision{Decision: "block", Reason: out.Reason})
	case controlplane.ActionAllow:
		writeJSON(s.Stdout, struct{}{})
	}
	return ExitOK
}

// StderrSink writes block reasons to stderr and signals them with ExitBlock.
type StderrSink struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Mode implements Sink.
func (StderrSink) Mode() string { return config.HookModeStderr }

// Emit implements Sink.
func (s StderrSink) Emit(out controlplane.Outcome) int {
	switch out.Action {
	case controlplane.ActionReply:
		_, _ = io.WriteString(s.Stdout, out.Reason)
	case controlplane.ActionBlock:
		_, _ = io.WriteString(s.Stderr, out.Reason)
		return ExitBlock
	}
	return ExitOK
}

// NewSink returns the sink for a configured hook mode.
func NewSink(mode string, stdout, stderr io.Writer) (Sink, error) {
	switch mode {
	case config.HookModeJSON, "":
		return JSONSink{Stdout: stdout}, nil
	case config.HookModeStderr:
		return StderrSink{Stdout: stdout, Stderr: stderr}, nil
	default:
		return nil, fmt.Errorf("unknown hook mode %q", mode)
	}
}

func writeJSON(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write(append(data, '\n'))
}
