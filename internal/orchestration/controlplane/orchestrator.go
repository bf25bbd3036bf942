package controlplane

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/stagehook/internal/log"
	"github.com/zjrosen/stagehook/internal/orchestration/session"
	"github.com/zjrosen/stagehook/internal/orchestration/transcript"
	"github.com/zjrosen/stagehook/internal/orchestration/workflow"
)

// Request carries the event fields the orchestrator acts on.
type Request struct {
	// SessionID is the resolved session identifier.
	SessionID string
	// TranscriptPath is the agent transcript, possibly empty.
	TranscriptPath string
	// Content is the submitted text (start events only).
	Content string
}

// Config configures an Orchestrator.
type Config struct {
	Catalog   *workflow.Catalog
	Store     *session.Store
	Inspector *transcript.Inspector
	Policy    Policy
	// Clock is used for time operations (for testing).
	// If nil, uses time.Now().
	Clock Clock
}

// Orchestrator drives sessions through their workflow stages.
type Orchestrator struct {
	catalog   *workflow.Catalog
	store     *session.Store
	inspector *transcript.Inspector
	policy    Policy
	clock     Clock

	// beforeCommit runs between the decision to advance and the locked commit (tests).
	beforeCommit func()
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	inspector := cfg.Inspector
	if inspector == nil {
		inspector = transcript.NewInspector(transcript.DefaultTailBytes)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Orchestrator{
		catalog:   cfg.Catalog,
		store:     cfg.Store,
		inspector: inspector,
		policy:    cfg.Policy,
		clock:     clock,
	}, nil
}

// HandleStart starts the workflow whose trigger occurs in the submitted content. The
// session's record is replaced with a fresh one at stage 0 and the stage-0 prompt is
// returned as a reply. Content without a trigger is a no-op.
func (o *Orchestrator) HandleStart(ctx context.Context, req Request) (out Outcome) {
	out = Outcome{Action: ActionNoop, SessionID: req.SessionID}
	defer o.recoverInto(ctx, "start", &out, ActionNoop)

	def, ok := o.catalog.Lookup(req.Content)
	if !ok {
		out.Detail = DetailNoTrigger
		return out
	}

	request := strings.TrimSpace(strings.ReplaceAll(req.Content, def.Trigger, ""))
	now := o.clock.Now()

	startTS := session.EpochSeconds(now)
	if prev, ok := o.store.Load(req.SessionID); ok && prev.WorkflowStartTS > 0 {
		startTS = prev.WorkflowStartTS
	}

	st := o.stageRecord(def, 0, req, request, uuid.NewString(), startTS, now)
	if err := o.store.Save(st); err != nil {
		log.ErrorErr(log.CatOrch, "saving new workflow record", err, "session", req.SessionID, "workflow", def.Trigger)
		out.Detail = DetailFault
		return out
	}

	log.Info(log.CatOrch, "workflow started",
		"session", req.SessionID,
		"workflow", def.DisplayName(),
		"run", st.RunID,
		"stages", def.StageCount())
	o.annotate(ctx, st, DetailStarted)

	return Outcome{
		Action:     ActionReply,
		Reason:     FormatPrompt(def, 0, req.SessionID, request),
		Detail:     DetailStarted,
		SessionID:  req.SessionID,
		RunID:      st.RunID,
		Workflow:   def.Trigger,
		StageIndex: 0,
	}
}

// HandleStop decides what happens when the agent's turn (or a sub-agent's) ends: allow
// it, re-send the current stage when its marker never reached the transcript, advance to
// the next stage, or finish the workflow.
func (o *Orchestrator) HandleStop(ctx context.Context, req Request) (out Outcome) {
	out = Outcome{Action: ActionAllow, SessionID: req.SessionID}
	defer o.recoverInto(ctx, "stop", &out, ActionAllow)

	st, def, detail := o.active(req.SessionID)
	if st == nil {
		out.Detail = detail
		return out
	}
	out = o.outcomeFor(st, ActionAllow, "")

	now := o.clock.Now()
	if o.policy.InGracePeriodAt(st, o.inspector.Ready(req.TranscriptPath), now) {
		out.Detail = DetailGrace
		return out
	}

	marker := Marker(st.WorkflowType, st.StageIndex, req.SessionID)
	if !o.inspector.Contains(req.TranscriptPath, marker) {
		return o.reinject(ctx, req, def, st, now)
	}

	if def.IsLast(st.StageIndex) {
		return o.complete(ctx, req, st)
	}

	return o.advance(ctx, req, def, st, now)
}

// HandleToolUse is the between-turns watchdog. It re-sends the current stage when its
// marker is missing and the policy allows, and never advances.
func (o *Orchestrator) HandleToolUse(ctx context.Context, req Request) (out Outcome) {
	out = Outcome{Action: ActionNoop, SessionID: req.SessionID}
	defer o.recoverInto(ctx, "tool", &out, ActionNoop)

	st, def, detail := o.active(req.SessionID)
	if st == nil {
		out.Detail = detail
		return out
	}
	out = o.outcomeFor(st, ActionNoop, "")

	now := o.clock.Now()
	if o.policy.InGracePeriodAt(st, o.inspector.Ready(req.TranscriptPath), now) {
		out.Detail = DetailGrace
		return out
	}

	marker := Marker(st.WorkflowType, st.StageIndex, req.SessionID)
	if o.inspector.Contains(req.TranscriptPath, marker) {
		return out
	}

	res := o.reinject(ctx, req, def, st, now)
	if res.Action == ActionAllow {
		res.Action = ActionNoop
	}
	return res
}

// active loads the session's record and resolves its workflow. A record naming an
// unregistered workflow or an out-of-range stage is cleared.
func (o *Orchestrator) active(sessionID string) (*session.State, *workflow.Definition, Detail) {
	st, ok := o.store.Load(sessionID)
	if !ok {
		return nil, nil, DetailIdle
	}

	def, ok := o.catalog.Get(st.WorkflowType)
	if !ok || st.StageIndex < 0 || st.StageIndex >= def.StageCount() {
		err := &CorruptStateError{SessionID: sessionID, Workflow: st.WorkflowType, Index: st.StageIndex}
		log.Warn(log.CatOrch, "clearing corrupt session record", "error", err.Error())
		if clearErr := o.store.Clear(sessionID); clearErr != nil {
			log.ErrorErr(log.CatOrch, "clearing corrupt session record", clearErr, "session", sessionID)
		}
		return nil, nil, DetailCorrupt
	}
	return st, def, ""
}

// reinject re-sends the current stage if the policy allows. The eligibility check and
// the bookkeeping increment happen under one session lock against the freshest record.
func (o *Orchestrator) reinject(ctx context.Context, req Request, def *workflow.Definition, st *session.State, now time.Time) Outcome {
	out := o.outcomeFor(st, ActionAllow, DetailExhausted)

	updated, err := o.store.Update(req.SessionID, func(cur *session.State) error {
		if cur.WorkflowType != st.WorkflowType || cur.StageIndex != st.StageIndex {
			return &StageRaceError{SessionID: req.SessionID, Expected: st.StageIndex, Actual: cur.StageIndex}
		}
		if !o.policy.CanReinjectAt(cur, now) {
			return errReinjectDenied
		}
		cur.RecordReinject(cur.StageIndex, now)
		return nil
	})

	var race *StageRaceError
	switch {
	case err == nil:
	case errors.Is(err, errReinjectDenied):
		log.Debug(log.CatOrch, "marker missing, reinjection not allowed",
			"session", req.SessionID,
			"stage", st.StageIndex,
			"count", st.ReinjectCount(st.StageIndex))
		return out
	case errors.As(err, &race):
		log.Info(log.CatOrch, "reinjection race avoided", "error", race.Error())
		out.Detail = DetailRace
		return out
	case errors.Is(err, session.ErrNoActiveWorkflow):
		out.Detail = DetailIdle
		return out
	default:
		log.ErrorErr(log.CatOrch, "recording reinjection", err, "session", req.SessionID)
		out.Detail = DetailFault
		return out
	}

	count := updated.ReinjectCount(updated.StageIndex)
	log.Info(log.CatOrch, "reinjecting stage prompt",
		"session", req.SessionID,
		"workflow", updated.WorkflowName,
		"stage", updated.Stage,
		"attempt", count,
		"max", o.policy.MaxReinjects)
	o.annotate(ctx, updated, DetailReinjected)

	out = o.outcomeFor(updated, ActionBlock, DetailReinjected)
	out.Reason = FormatPrompt(def, updated.StageIndex, req.SessionID, updated.OriginalRequest)
	return out
}

// advance commits the next stage record. The persisted index is re-checked under the
// session lock right before the write; a mismatch means another invocation already
// advanced and this one allows instead.
func (o *Orchestrator) advance(ctx context.Context, req Request, def *workflow.Definition, st *session.State, now time.Time) Outcome {
	next := st.StageIndex + 1
	if o.beforeCommit != nil {
		o.beforeCommit()
	}

	updated, err := o.store.Update(req.SessionID, func(cur *session.State) error {
		if cur.RunID != st.RunID || cur.StageIndex != st.StageIndex {
			return &StageRaceError{SessionID: req.SessionID, Expected: st.StageIndex, Actual: cur.StageIndex}
		}
		*cur = *o.stageRecord(def, next, req, cur.OriginalRequest, cur.RunID, cur.WorkflowStartTS, now)
		return nil
	})

	var race *StageRaceError
	switch {
	case err == nil:
	case errors.As(err, &race):
		log.Info(log.CatOrch, "advance race avoided", "error", race.Error())
		return o.outcomeFor(st, ActionAllow, DetailRace)
	case errors.Is(err, session.ErrNoActiveWorkflow):
		return o.outcomeFor(st, ActionAllow, DetailIdle)
	default:
		log.ErrorErr(log.CatOrch, "advancing stage", err, "session", req.SessionID)
		return o.outcomeFor(st, ActionAllow, DetailFault)
	}

	log.Info(log.CatOrch, "stage advanced",
		"session", req.SessionID,
		"workflow", updated.WorkflowName,
		"stage", updated.Stage,
		"progress", updated.Progress.CurrentStage)
	o.annotate(ctx, updated, DetailAdvanced)

	out := o.outcomeFor(updated, ActionBlock, DetailAdvanced)
	out.Reason = FormatPrompt(def, next, req.SessionID, updated.OriginalRequest)
	return out
}

// complete clears the finished run. The record is removed only if it still belongs to
// the same run and stage; a workflow started meanwhile is left in place.
func (o *Orchestrator) complete(ctx context.Context, req Request, st *session.State) Outcome {
	if o.beforeCommit != nil {
		o.beforeCommit()
	}

	removed, err := o.store.ClearIf(req.SessionID, func(cur *session.State) bool {
		return cur.RunID == st.RunID && cur.StageIndex == st.StageIndex
	})
	switch {
	case err != nil:
		log.ErrorErr(log.CatOrch, "clearing completed workflow", err, "session", req.SessionID)
		return o.outcomeFor(st, ActionAllow, DetailFault)
	case !removed:
		log.Info(log.CatOrch, "completion race avoided", "session", req.SessionID, "run", st.RunID)
		return o.outcomeFor(st, ActionAllow, DetailRace)
	}

	log.Info(log.CatOrch, "workflow complete",
		"session", req.SessionID,
		"workflow", st.WorkflowName,
		"run", st.RunID,
		"reinjections", st.TotalReinjects())
	o.annotate(ctx, st, DetailCompleted)
	return o.outcomeFor(st, ActionAllow, DetailCompleted)
}

// stageRecord builds a fresh record for stage index of def. Reinjection bookkeeping
// starts empty.
func (o *Orchestrator) stageRecord(def *workflow.Definition, index int, req Request, request, runID string, startTS float64, now time.Time) *session.State {
	st, _ := def.StageAt(index)
	return &session.State{
		Schema:          session.SchemaVersion,
		RunID:           runID,
		WorkflowType:    def.Trigger,
		WorkflowName:    def.DisplayName(),
		Stage:           st.Name,
		StageIndex:      index,
		SessionID:       req.SessionID,
		Timestamp:       session.EpochSeconds(now),
		WorkflowStartTS: startTS,
		Progress:        session.NewProgress(index, def.StageCount(), def.Phase(index)),
		ContextSize:     session.ContextSize{Characters: o.inspector.Size(req.TranscriptPath)},
		OriginalRequest: request,
		TranscriptPath:  req.TranscriptPath,
		ReinjectCounts:  map[string]int{},
	}
}

func (o *Orchestrator) outcomeFor(st *session.State, action Action, detail Detail) Outcome {
	return Outcome{
		Action:     action,
		Detail:     detail,
		SessionID:  st.SessionID,
		RunID:      st.RunID,
		Workflow:   st.WorkflowType,
		StageIndex: st.StageIndex,
	}
}

// annotate records a state transition on the current span, if any.
func (o *Orchestrator) annotate(ctx context.Context, st *session.State, detail Detail) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(string(detail), trace.WithAttributes(
		attribute.String("workflow", st.WorkflowType),
		attribute.String("stage", st.Stage),
		attribute.Int("stage_index", st.StageIndex),
		attribute.Int("reinjections", st.ReinjectCount(st.StageIndex)),
	))
}

// recoverInto turns a panic in an entry point into the fallback action so an internal
// fault never blocks the agent.
func (o *Orchestrator) recoverInto(ctx context.Context, entry string, out *Outcome, fallback Action) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("panic in %s handler: %v", entry, r)
	log.ErrorErr(log.CatOrch, "orchestrator fault", err, "stack", string(debug.Stack()))
	trace.SpanFromContext(ctx).RecordError(err)
	*out = Outcome{Action: fallback, Detail: DetailFault, SessionID: out.SessionID}
}
