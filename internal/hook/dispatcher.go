package hook

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zjrosen/stagehook/internal/infrastructure/sqlite"
	"github.com/zjrosen/stagehook/internal/log"
	"github.com/zjrosen/stagehook/internal/orchestration/controlplane"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/tracing"
)

// Handler is the orchestrator surface the dispatcher drives.
type Handler interface {
	HandleStart(ctx context.Context, req controlplane.Request) controlplane.Outcome
	HandleStop(ctx context.Context, req controlplane.Request) controlplane.Outcome
	HandleToolUse(ctx context.Context, req controlplane.Request) controlplane.Outcome
}

// Recorder persists decisions for later inspection.
type Recorder interface {
	Record(ctx context.Context, d *sqlite.Decision) error
}

// Dispatcher routes one hook event to the orchestrator and renders the outcome.
type Dispatcher struct {
	handler  Handler
	sink     Sink
	recorder Recorder
}

// NewDispatcher creates a Dispatcher. recorder may be nil.
func NewDispatcher(handler Handler, sink Sink, recorder Recorder) *Dispatcher {
	return &Dispatcher{handler: handler, sink: sink, recorder: recorder}
}

// Dispatch handles one event and returns the process exit status.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload Payload) int {
	kind, err := ParseEvent(event)
	if err != nil {
		log.Warn(log.CatHook, "rejecting hook event", "event", event)
		return ExitUnknownEvent
	}

	req := controlplane.Request{
		SessionID:      session.ResolveID(payload.SessionID, payload.TranscriptPath, payload.WorkDir()),
		TranscriptPath: payload.TranscriptPath,
		Content:        payload.SubmittedText(),
	}

	ctx, span := tracing.Tracer().Start(ctx, "hook."+event)
	defer span.End()
	span.SetAttributes(
		attribute.String("hook.event", event),
		attribute.String("session.id", req.SessionID),
	)

	start := time.Now()
	var out controlplane.Outcome
	switch kind {
	case EventStart:
		out = d.handler.HandleStart(ctx, req)
	case EventStop:
		out = d.handler.HandleStop(ctx, req)
	case EventToolUse:
		out = d.handler.HandleToolUse(ctx, req)
	}

	span.SetAttributes(
		attribute.String("workflow.type", out.Workflow),
		attribute.Int("workflow.stage_index", out.StageIndex),
		attribute.String("hook.action", out.Action.String()),
		attribute.String("hook.detail", string(out.Detail)),
	)
	if out.Detail == controlplane.DetailFault {
		span.SetStatus(codes.Error, "orchestrator fault")
	}

	log.Debug(log.CatHook, "hook handled",
		"event", event,
		"session", req.SessionID,
		"action", out.Action.String(),
		"detail", string(out.Detail),
		"duration", time.Since(start))

	d.record(ctx, event, out)
	return d.sink.Emit(out)
}

func (d *Dispatcher) record(ctx context.Context, event string, out controlplane.Outcome) {
	if d.recorder == nil || out.Detail == "" {
		return
	}
	// Only workflow-related outcomes are interesting; prompts without a trigger are not.
	if out.Detail == controlplane.DetailNoTrigger || out.Detail == controlplane.DetailIdle {
		return
	}
	err := d.recorder.Record(ctx, &sqlite.Decision{
		SessionID:  out.SessionID,
		RunID:      out.RunID,
		Event:      event,
		Workflow:   out.Workflow,
		StageIndex: out.StageIndex,
		Action:     out.Action.String(),
		Detail:     string(out.Detail),
	})
	if err != nil {
		log.ErrorErr(log.CatDB, "journaling decision", err, "session", out.SessionID)
	}
}
