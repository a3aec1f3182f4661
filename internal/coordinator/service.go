package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/trackd/internal/executor"
	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
	"github.com/fyrsmithlabs/trackd/internal/lifecycle"
	"github.com/fyrsmithlabs/trackd/internal/routing"
	"github.com/fyrsmithlabs/trackd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/trackd/internal/coordinator"

// Service is the workflow coordinator's surface. All mutations go
// through here; the state machine, gate validator, and router stay pure.
type Service interface {
	// CreateWorkItem creates a work item in its type's initial phase.
	CreateWorkItem(ctx context.Context, req *CreateWorkItemRequest) (*item.WorkItem, error)

	// CreateTask creates a task under a work item or in the backlog.
	// The effort ceiling is enforced here, at creation, never after.
	CreateTask(ctx context.Context, req *CreateTaskRequest) (*item.Task, error)

	// CreateIdea captures a pre-formal idea.
	CreateIdea(ctx context.Context, req *CreateIdeaRequest) (*item.Idea, error)

	// Advance runs the full Validate→Route→Persist cycle for the item's
	// next boundary. A failed gate returns a GateNotSatisfiedError
	// carrying the block report; stored state is untouched.
	Advance(ctx context.Context, id string) (*AdvanceResult, error)

	// Transition applies an explicit non-phase-bound transition
	// (blocking, resuming, cancelling). Phase-bound targets are
	// rejected; those require a passed gate via Advance.
	Transition(ctx context.Context, id string, target item.State) (*item.WorkItem, error)

	// TransitionTask moves a task along the state machine. Tasks carry
	// no phase gates; any legal transition is applied.
	TransitionTask(ctx context.Context, id string, target item.State) (*item.Task, error)

	// UpdateWorkItem mutates discovery and review fields.
	UpdateWorkItem(ctx context.Context, id string, req *UpdateWorkItemRequest) (*item.WorkItem, error)

	// UpdateTask mutates a task's blockers and dependencies.
	UpdateTask(ctx context.Context, id string, req *UpdateTaskRequest) (*item.Task, error)

	// AdvanceIdea moves an idea along its machine. Conversion is not
	// reachable this way; use ConvertIdea.
	AdvanceIdea(ctx context.Context, id string, target item.IdeaState) (*item.Idea, error)

	// ConvertIdea turns an accepted idea into a new work item and seals
	// the idea. One-directional.
	ConvertIdea(ctx context.Context, ideaID string, typ item.WorkItemType) (*item.WorkItem, error)

	// Show returns the item's current state, phase, children, history,
	// and the last block report if any.
	Show(ctx context.Context, id string) (*WorkItemView, error)

	// Backlog returns the pooled tasks not yet finished, oldest first.
	Backlog(ctx context.Context) ([]*item.Task, error)

	// Close releases the service.
	Close() error
}

// service implements Service.
type service struct {
	config    Config
	store     store.Store
	validator *gates.Validator
	router    *routing.Router
	pool      *executor.Pool
	logger    *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	advanceCounter  metric.Int64Counter
	advanceDuration metric.Float64Histogram

	mu     sync.Mutex
	closed bool
}

// NewService creates a coordinator over the given collaborators.
func NewService(cfg Config, st store.Store, router *routing.Router, pool *executor.Pool, logger *zap.Logger) (Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if router == nil {
		router = routing.NewRouter(nil)
	}
	if pool == nil {
		pool = executor.NewPool(executor.DefaultPoolConfig(), nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RemediationPasses <= 0 {
		cfg.RemediationPasses = DefaultConfig().RemediationPasses
	}

	s := &service{
		config:    cfg,
		store:     st,
		validator: gates.NewValidator(),
		router:    router,
		pool:      pool,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.advanceCounter, err = s.meter.Int64Counter(
		"trackd.coordinator.advancements_total",
		metric.WithDescription("Advancement attempts labeled by outcome (advanced, gate_blocked, illegal, conflict)"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		s.logger.Warn("failed to create advancement counter", zap.Error(err))
	}

	s.advanceDuration, err = s.meter.Float64Histogram(
		"trackd.coordinator.advance_duration_seconds",
		metric.WithDescription("Advance request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn("failed to create advance histogram", zap.Error(err))
	}
}

// CreateWorkItem creates a work item in its type's initial phase.
func (s *service) CreateWorkItem(ctx context.Context, req *CreateWorkItemRequest) (*item.WorkItem, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.create_work_item")
	defer span.End()

	wi, err := item.NewWorkItem(req.Type, req.Title)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if req.Priority != "" {
		if !req.Priority.Valid() {
			return nil, fmt.Errorf("unknown priority %q", req.Priority)
		}
		wi.Priority = req.Priority
	}
	wi.Justification = req.Justification
	wi.Confidence = req.Confidence
	wi.DependsOn = req.DependsOn
	for _, text := range req.AcceptanceCriteria {
		wi.AcceptanceCriteria = append(wi.AcceptanceCriteria, item.AcceptanceCriterion{
			ID:   uuid.New().String(),
			Text: text,
		})
	}
	for _, desc := range req.Risks {
		wi.Risks = append(wi.Risks, item.Risk{ID: uuid.New().String(), Description: desc})
	}

	if err := s.putWorkItem(ctx, wi, 0); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID: wi.ID,
		Kind:     store.KindWorkItem,
		ToState:  string(wi.State),
		ToPhase:  string(wi.Phase),
		Note:     "created",
	})

	s.logger.Info("created work item",
		zap.String("id", wi.ID),
		zap.String("type", string(wi.Type)),
		zap.String("phase", string(wi.Phase)),
	)
	span.SetAttributes(attribute.String("work_item_id", wi.ID))
	return wi, nil
}

// CreateTask creates a task under a work item or in the backlog.
func (s *service) CreateTask(ctx context.Context, req *CreateTaskRequest) (*item.Task, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.create_task")
	defer span.End()

	if req.WorkItemID != "" {
		// Parent must exist; pooled tasks skip this.
		if _, err := s.getWorkItem(ctx, req.WorkItemID); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	t, err := item.NewTask(req.WorkItemID, req.Type, req.Title, req.Effort)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	t.DependsOn = req.DependsOn

	if err := s.putTask(ctx, t, 0); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID: t.ID,
		Kind:     store.KindTask,
		ToState:  string(t.State),
		Note:     "created",
	})

	s.logger.Info("created task",
		zap.String("id", t.ID),
		zap.String("type", string(t.Type)),
		zap.String("work_item_id", t.WorkItemID),
		zap.Int("effort", t.Effort),
	)
	return t, nil
}

// CreateIdea captures a pre-formal idea.
func (s *service) CreateIdea(ctx context.Context, req *CreateIdeaRequest) (*item.Idea, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.create_idea")
	defer span.End()

	idea, err := item.NewIdea(req.Title, req.Summary)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.putIdea(ctx, idea, 0); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID: idea.ID,
		Kind:     store.KindIdea,
		ToState:  string(idea.State),
		Note:     "captured",
	})
	return idea, nil
}

// Advance runs the full Validate→Route→Persist cycle.
func (s *service) Advance(ctx context.Context, id string) (*AdvanceResult, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.advance")
	defer span.End()
	start := time.Now()
	correlationID := uuid.New().String()
	span.SetAttributes(
		attribute.String("work_item_id", id),
		attribute.String("correlation_id", correlationID),
	)

	result, err := s.advance(ctx, id, correlationID)

	outcome := "advanced"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch ResponseCode(err) {
		case CodeGateNotSatisfied:
			outcome = "gate_blocked"
		case CodeStorageConflict:
			outcome = "conflict"
		default:
			outcome = "illegal"
		}
	}
	if s.advanceCounter != nil {
		s.advanceCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if s.advanceDuration != nil {
		s.advanceDuration.Record(ctx, time.Since(start).Seconds())
	}
	return result, err
}

func (s *service) advance(ctx context.Context, id, correlationID string) (*AdvanceResult, error) {
	// Validating.
	wi, err := s.getWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := wi.Version

	if wi.State == item.StateBlocked {
		return nil, &lifecycle.IllegalTransitionError{
			From:   wi.State,
			To:     wi.State,
			Reason: "entity is blocked; resume it before advancing",
		}
	}

	nextPhase, hasNext := wi.NextPhase()
	var targetState item.State
	if hasNext {
		targetState = nextPhase.State()
	} else {
		ns, ok := lifecycle.NextCoreState(wi.State)
		if !ok {
			return nil, &lifecycle.IllegalTransitionError{
				From:   wi.State,
				To:     wi.State,
				Reason: fmt.Sprintf("%s is the end of the lifecycle for type %s", wi.State, wi.Type),
			}
		}
		targetState = ns
	}

	outcome, err := lifecycle.Transition(lifecycle.Snapshot{State: wi.State, Held: wi.HeldState}, targetState)
	if err != nil {
		return nil, err
	}

	// The gate guards the first step out of the current phase. Once an
	// item has stepped past its final phase's derived state, no gate
	// remains; past gates are never re-evaluated.
	remediated := false
	if wi.State == wi.Phase.State() {
		gateResult, err := s.evaluateGate(ctx, wi, nextPhase, hasNext)
		if err != nil {
			return nil, err
		}
		var rem *remediationTrace
		if !gateResult.Passed {
			gateResult, remediated, rem, err = s.remediate(ctx, wi, nextPhase, hasNext, gateResult, correlationID)
			if err != nil {
				return nil, err
			}
		}
		if !gateResult.Passed {
			// Terminal failure: surface the block report, leave stored
			// state untouched.
			return nil, s.blockReportError(ctx, wi, gateResult, rem)
		}
	}

	// Persisting.
	prevState, prevPhase := wi.State, wi.Phase
	wi.State = outcome.State
	wi.HeldState = outcome.Held
	if hasNext {
		wi.Phase = nextPhase
	}
	if err := s.putWorkItem(ctx, wi, loadedVersion); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID:      wi.ID,
		Kind:          store.KindWorkItem,
		FromState:     string(prevState),
		ToState:       string(wi.State),
		FromPhase:     string(prevPhase),
		ToPhase:       string(wi.Phase),
		Note:          advanceNote(remediated),
		CorrelationID: correlationID,
	})
	s.clearBlock(ctx, wi.ID)

	s.logger.Info("advanced work item",
		zap.String("id", wi.ID),
		zap.String("from_phase", string(prevPhase)),
		zap.String("to_phase", string(wi.Phase)),
		zap.String("to_state", string(wi.State)),
		zap.Bool("remediated", remediated),
	)
	return &AdvanceResult{Item: wi, Remediated: remediated}, nil
}

func advanceNote(remediated bool) string {
	if remediated {
		return "advanced after remediation"
	}
	return "advanced"
}

// evaluateGate evaluates the boundary the item is about to cross.
func (s *service) evaluateGate(ctx context.Context, wi *item.WorkItem, nextPhase item.Phase, hasNext bool) (*gates.GateResult, error) {
	tasks, err := s.tasksFor(ctx, wi.ID)
	if err != nil {
		return nil, err
	}
	if hasNext {
		return s.validator.ValidateGate(wi, tasks, nextPhase)
	}
	// Final phase: its exit gate guards the remaining state walk.
	missing := s.validator.ExitCriteria(wi, tasks)
	return &gates.GateResult{
		Target:  wi.Phase,
		Passed:  len(missing) == 0,
		Missing: missing,
	}, nil
}

// remediationTrace records what the bounded Routing/Executing loop did,
// for the eventual block report.
type remediationTrace struct {
	runs     int
	failures []ExecutorFailure
}

// remediate runs the bounded Routing/Executing loop. It mutates only the
// in-memory item; the caller persists on success.
func (s *service) remediate(ctx context.Context, wi *item.WorkItem, nextPhase item.Phase, hasNext bool, gateResult *gates.GateResult, correlationID string) (*gates.GateResult, bool, *remediationTrace, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.remediate")
	defer span.End()

	trace := &remediationTrace{}
	for pass := 0; pass < s.config.RemediationPasses; pass++ {
		// Pre-emptive abort: a caller may block the entity at any time,
		// which we honor between passes rather than interrupting an
		// in-flight executor call.
		fresh, err := s.getWorkItem(ctx, wi.ID)
		if err != nil {
			return gateResult, false, trace, err
		}
		if fresh.State == item.StateBlocked {
			return gateResult, false, trace, &lifecycle.IllegalTransitionError{
				From:   item.StateBlocked,
				To:     item.StateBlocked,
				Reason: "entity was blocked during remediation",
			}
		}

		// Routing.
		assignment, err := s.router.Route(routing.Artifact{Kind: routing.KindWorkItem, Item: wi}, gateResult.Missing)
		if err != nil {
			return gateResult, false, trace, err
		}
		if len(assignment.Invocations) == 0 {
			// Nothing is remediable automatically.
			break
		}
		span.SetAttributes(
			attribute.String("phase_owner", string(assignment.PhaseOwner)),
			attribute.Int("invocations", len(assignment.Invocations)),
		)

		// Executing.
		outcomes, err := s.pool.Invoke(ctx, assignment, wi, correlationID)
		if err != nil {
			return gateResult, false, trace, err
		}
		trace.runs++
		ok, failed := executor.Succeeded(outcomes)
		for _, o := range ok {
			if err := gates.ApplyEvidence(wi, o.Requirement.ID, o.Response.Evidence); err != nil {
				failed = append(failed, executor.Outcome{
					Executor:    o.Executor,
					Requirement: o.Requirement,
					Err:         err,
				})
			}
		}
		for _, f := range failed {
			trace.failures = append(trace.failures, executorFailure(f))
		}

		gateResult, err = s.evaluateGate(ctx, wi, nextPhase, hasNext)
		if err != nil {
			return gateResult, false, trace, err
		}
		if gateResult.Passed {
			return gateResult, true, trace, nil
		}
	}
	return gateResult, false, trace, nil
}

func executorFailure(o executor.Outcome) ExecutorFailure {
	msg := ""
	if o.Err != nil {
		msg = o.Err.Error()
	} else if o.Response != nil {
		msg = o.Response.Message
	}
	return ExecutorFailure{
		Executor:    o.Executor,
		Requirement: o.Requirement.ID,
		Message:     msg,
	}
}

// blockReportError builds, persists, and wraps the block report.
func (s *service) blockReportError(ctx context.Context, wi *item.WorkItem, gateResult *gates.GateResult, trace *remediationTrace) error {
	report := &BlockReport{
		EntityID:  wi.ID,
		Phase:     wi.Phase,
		Target:    gateResult.Target,
		Missing:   gateResult.Missing,
		CreatedAt: time.Now().UTC(),
	}
	if trace != nil {
		report.RemediationRuns = trace.runs
		report.ExecutorFailures = trace.failures
	}
	s.saveBlock(ctx, report)

	s.logger.Warn("advancement blocked",
		zap.String("id", wi.ID),
		zap.String("target", string(report.Target)),
		zap.Int("missing", len(report.Missing)),
	)
	return &GateNotSatisfiedError{Report: report}
}

// Block reports live in the store under their own kind, keyed by entity
// id, so show surfaces the last failed advancement from any process.
// Persistence of the report is best effort; the error to the caller
// carries it either way.

func (s *service) saveBlock(ctx context.Context, report *BlockReport) {
	data, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("failed to encode block report",
			zap.String("id", report.EntityID), zap.Error(err))
		return
	}
	var version int64
	if rec, err := s.store.Get(ctx, store.KindBlockReport, report.EntityID); err == nil {
		version = rec.Version
	}
	if _, err := s.store.Put(ctx, store.KindBlockReport, report.EntityID, data, version); err != nil {
		s.logger.Warn("failed to persist block report",
			zap.String("id", report.EntityID), zap.Error(err))
	}
}

func (s *service) loadBlock(ctx context.Context, id string) *BlockReport {
	rec, err := s.store.Get(ctx, store.KindBlockReport, id)
	if err != nil {
		return nil
	}
	var report BlockReport
	if err := json.Unmarshal(rec.Data, &report); err != nil {
		s.logger.Warn("failed to decode block report",
			zap.String("id", id), zap.Error(err))
		return nil
	}
	return &report
}

func (s *service) clearBlock(ctx context.Context, id string) {
	if err := s.store.Delete(ctx, store.KindBlockReport, id); err != nil {
		s.logger.Warn("failed to clear block report",
			zap.String("id", id), zap.Error(err))
	}
}

// Transition applies an explicit non-phase-bound transition.
func (s *service) Transition(ctx context.Context, id string, target item.State) (*item.WorkItem, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.transition")
	defer span.End()
	span.SetAttributes(attribute.String("work_item_id", id), attribute.String("target", string(target)))

	wi, err := s.getWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := wi.Version

	resuming := wi.State == item.StateBlocked && target == wi.HeldState
	if target != item.StateBlocked && target != item.StateCancelled && !resuming {
		return nil, &lifecycle.IllegalTransitionError{
			From:   wi.State,
			To:     target,
			Reason: "phase-bound transitions require a passed gate; use advance",
		}
	}

	outcome, err := lifecycle.Transition(lifecycle.Snapshot{State: wi.State, Held: wi.HeldState}, target)
	if err != nil {
		return nil, err
	}

	prevState := wi.State
	wi.State = outcome.State
	wi.HeldState = outcome.Held
	if err := s.putWorkItem(ctx, wi, loadedVersion); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID:  wi.ID,
		Kind:      store.KindWorkItem,
		FromState: string(prevState),
		ToState:   string(wi.State),
		FromPhase: string(wi.Phase),
		ToPhase:   string(wi.Phase),
		Note:      "explicit transition",
	})

	if target == item.StateBlocked && s.config.CascadeBlock {
		s.cascadeBlock(ctx, wi.ID)
	}

	s.logger.Info("transitioned work item",
		zap.String("id", wi.ID),
		zap.String("from", string(prevState)),
		zap.String("to", string(wi.State)),
	)
	return wi, nil
}

// cascadeBlock blocks the item's non-terminal tasks. Best effort: a
// conflict on one task does not abort the rest.
func (s *service) cascadeBlock(ctx context.Context, workItemID string) {
	tasks, err := s.tasksFor(ctx, workItemID)
	if err != nil {
		s.logger.Warn("cascade block: failed to list tasks", zap.Error(err))
		return
	}
	for _, t := range tasks {
		if t.State.Terminal() || t.State == item.StateBlocked {
			continue
		}
		if _, err := s.TransitionTask(ctx, t.ID, item.StateBlocked); err != nil {
			s.logger.Warn("cascade block: failed to block task",
				zap.String("task_id", t.ID), zap.Error(err))
		}
	}
}

// TransitionTask moves a task along the state machine.
func (s *service) TransitionTask(ctx context.Context, id string, target item.State) (*item.Task, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.transition_task")
	defer span.End()

	t, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := t.Version

	outcome, err := lifecycle.Transition(lifecycle.Snapshot{
		State:              t.State,
		Held:               t.HeldState,
		UnresolvedBlockers: t.UnresolvedBlockers(),
	}, target)
	if err != nil {
		return nil, err
	}

	prevState := t.State
	t.State = outcome.State
	t.HeldState = outcome.Held
	if err := s.putTask(ctx, t, loadedVersion); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID:  t.ID,
		Kind:      store.KindTask,
		FromState: string(prevState),
		ToState:   string(t.State),
	})
	return t, nil
}

// UpdateWorkItem mutates discovery and review fields.
func (s *service) UpdateWorkItem(ctx context.Context, id string, req *UpdateWorkItemRequest) (*item.WorkItem, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.update_work_item")
	defer span.End()

	wi, err := s.getWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := wi.Version

	if wi.State.Terminal() {
		return nil, &lifecycle.IllegalTransitionError{
			From:   wi.State,
			To:     wi.State,
			Reason: fmt.Sprintf("%s entities are immutable", wi.State),
		}
	}

	if req.Justification != nil {
		wi.Justification = *req.Justification
	}
	if req.Confidence != nil {
		if *req.Confidence < 0 || *req.Confidence > 1 {
			return nil, fmt.Errorf("confidence must be within [0.0, 1.0], got %.2f", *req.Confidence)
		}
		wi.Confidence = *req.Confidence
	}
	if req.Priority != nil {
		p := item.Priority(*req.Priority)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown priority %q", *req.Priority)
		}
		wi.Priority = p
	}
	for _, text := range req.AddAcceptanceCriteria {
		wi.AcceptanceCriteria = append(wi.AcceptanceCriteria, item.AcceptanceCriterion{
			ID:   uuid.New().String(),
			Text: text,
		})
	}
	if req.VerifyAllCriteria {
		for i := range wi.AcceptanceCriteria {
			wi.AcceptanceCriteria[i].Verified = true
		}
	} else if len(req.VerifyCriteria) > 0 {
		verify := make(map[string]bool, len(req.VerifyCriteria))
		for _, cid := range req.VerifyCriteria {
			verify[cid] = true
		}
		for i := range wi.AcceptanceCriteria {
			if verify[wi.AcceptanceCriteria[i].ID] {
				wi.AcceptanceCriteria[i].Verified = true
			}
		}
	}
	for _, desc := range req.AddRisks {
		wi.Risks = append(wi.Risks, item.Risk{ID: uuid.New().String(), Description: desc})
	}
	for _, desc := range req.AddDefects {
		wi.Defects = append(wi.Defects, item.Defect{ID: uuid.New().String(), Description: desc, Open: true})
	}
	if len(req.CloseDefects) > 0 {
		closeSet := make(map[string]bool, len(req.CloseDefects))
		for _, did := range req.CloseDefects {
			closeSet[did] = true
		}
		for i := range wi.Defects {
			if closeSet[wi.Defects[i].ID] {
				wi.Defects[i].Open = false
			}
		}
	}
	if req.ReleaseRecord != nil {
		wi.ReleaseRecord = *req.ReleaseRecord
	}

	if err := s.putWorkItem(ctx, wi, loadedVersion); err != nil {
		return nil, err
	}
	return wi, nil
}

// UpdateTask mutates a task's blockers and dependencies.
func (s *service) UpdateTask(ctx context.Context, id string, req *UpdateTaskRequest) (*item.Task, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.update_task")
	defer span.End()

	t, err := s.getTask(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := t.Version

	if t.State.Terminal() {
		return nil, &lifecycle.IllegalTransitionError{
			From:   t.State,
			To:     t.State,
			Reason: fmt.Sprintf("%s entities are immutable", t.State),
		}
	}

	t.Blockers = append(t.Blockers, req.AddBlockers...)
	if len(req.ResolveBlockers) > 0 {
		resolve := make(map[string]bool, len(req.ResolveBlockers))
		for _, b := range req.ResolveBlockers {
			resolve[b] = true
		}
		kept := t.Blockers[:0]
		for _, b := range t.Blockers {
			if !resolve[b] {
				kept = append(kept, b)
			}
		}
		t.Blockers = kept
	}
	t.DependsOn = append(t.DependsOn, req.AddDependencies...)

	if err := s.putTask(ctx, t, loadedVersion); err != nil {
		return nil, err
	}
	return t, nil
}

// AdvanceIdea moves an idea along its machine.
func (s *service) AdvanceIdea(ctx context.Context, id string, target item.IdeaState) (*item.Idea, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.advance_idea")
	defer span.End()

	idea, err := s.getIdea(ctx, id)
	if err != nil {
		return nil, err
	}
	loadedVersion := idea.Version

	if target == item.IdeaConverted {
		return nil, &lifecycle.IllegalIdeaTransitionError{
			From:   idea.State,
			To:     target,
			Reason: "conversion creates a work item; use convert",
		}
	}
	if err := lifecycle.TransitionIdea(idea.State, target); err != nil {
		return nil, err
	}

	prev := idea.State
	idea.State = target
	if err := s.putIdea(ctx, idea, loadedVersion); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID:  idea.ID,
		Kind:      store.KindIdea,
		FromState: string(prev),
		ToState:   string(idea.State),
	})
	return idea, nil
}

// ConvertIdea turns an accepted idea into a new work item.
func (s *service) ConvertIdea(ctx context.Context, ideaID string, typ item.WorkItemType) (*item.WorkItem, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.convert_idea")
	defer span.End()

	idea, err := s.getIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	loadedVersion := idea.Version

	if err := lifecycle.TransitionIdea(idea.State, item.IdeaConverted); err != nil {
		return nil, err
	}

	wi, err := item.NewWorkItem(typ, idea.Title)
	if err != nil {
		return nil, err
	}
	wi.Justification = idea.Summary
	wi.IdeaID = idea.ID
	if err := s.putWorkItem(ctx, wi, 0); err != nil {
		return nil, err
	}

	prev := idea.State
	idea.State = item.IdeaConverted
	idea.WorkItemID = wi.ID
	if err := s.putIdea(ctx, idea, loadedVersion); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID:  idea.ID,
		Kind:      store.KindIdea,
		FromState: string(prev),
		ToState:   string(idea.State),
		Note:      fmt.Sprintf("converted to work item %s", wi.ID),
	})
	s.appendHistory(ctx, &store.TransitionRecord{
		EntityID: wi.ID,
		Kind:     store.KindWorkItem,
		ToState:  string(wi.State),
		ToPhase:  string(wi.Phase),
		Note:     fmt.Sprintf("converted from idea %s", idea.ID),
	})

	s.logger.Info("converted idea",
		zap.String("idea_id", idea.ID),
		zap.String("work_item_id", wi.ID),
		zap.String("type", string(typ)),
	)
	return wi, nil
}

// Show returns the item's view.
func (s *service) Show(ctx context.Context, id string) (*WorkItemView, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.show")
	defer span.End()

	wi, err := s.getWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasksFor(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, store.KindWorkItem, id)
	if err != nil {
		return nil, err
	}

	return &WorkItemView{
		Item:      wi,
		Tasks:     tasks,
		History:   history,
		LastBlock: s.loadBlock(ctx, id),
	}, nil
}

// Backlog returns the pooled tasks not yet finished, oldest first.
func (s *service) Backlog(ctx context.Context) ([]*item.Task, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.backlog")
	defer span.End()

	tasks, err := s.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	var pooled []*item.Task
	for _, t := range tasks {
		if t.Pooled() && !t.State.Terminal() {
			pooled = append(pooled, t)
		}
	}
	sort.Slice(pooled, func(i, j int) bool {
		return pooled[i].CreatedAt.Before(pooled[j].CreatedAt)
	})
	return pooled, nil
}

// Close releases the service. The store is owned by the caller.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Persistence helpers. Entities travel as JSON; the record version is
// the CAS token and is mirrored into the entity before write.

func (s *service) getWorkItem(ctx context.Context, id string) (*item.WorkItem, error) {
	rec, err := s.store.Get(ctx, store.KindWorkItem, id)
	if err != nil {
		return nil, err
	}
	var wi item.WorkItem
	if err := json.Unmarshal(rec.Data, &wi); err != nil {
		return nil, fmt.Errorf("failed to decode work item %s: %w", id, err)
	}
	wi.Version = rec.Version
	return &wi, nil
}

func (s *service) putWorkItem(ctx context.Context, wi *item.WorkItem, expectedVersion int64) error {
	wi.Version = expectedVersion + 1
	wi.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(wi)
	if err != nil {
		return fmt.Errorf("failed to encode work item %s: %w", wi.ID, err)
	}
	_, err = s.store.Put(ctx, store.KindWorkItem, wi.ID, data, expectedVersion)
	return err
}

func (s *service) getTask(ctx context.Context, id string) (*item.Task, error) {
	rec, err := s.store.Get(ctx, store.KindTask, id)
	if err != nil {
		return nil, err
	}
	var t item.Task
	if err := json.Unmarshal(rec.Data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	t.Version = rec.Version
	return &t, nil
}

func (s *service) putTask(ctx context.Context, t *item.Task, expectedVersion int64) error {
	t.Version = expectedVersion + 1
	t.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", t.ID, err)
	}
	_, err = s.store.Put(ctx, store.KindTask, t.ID, data, expectedVersion)
	return err
}

func (s *service) getIdea(ctx context.Context, id string) (*item.Idea, error) {
	rec, err := s.store.Get(ctx, store.KindIdea, id)
	if err != nil {
		return nil, err
	}
	var idea item.Idea
	if err := json.Unmarshal(rec.Data, &idea); err != nil {
		return nil, fmt.Errorf("failed to decode idea %s: %w", id, err)
	}
	idea.Version = rec.Version
	return &idea, nil
}

func (s *service) putIdea(ctx context.Context, idea *item.Idea, expectedVersion int64) error {
	idea.Version = expectedVersion + 1
	idea.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(idea)
	if err != nil {
		return fmt.Errorf("failed to encode idea %s: %w", idea.ID, err)
	}
	_, err = s.store.Put(ctx, store.KindIdea, idea.ID, data, expectedVersion)
	return err
}

func (s *service) allTasks(ctx context.Context) ([]*item.Task, error) {
	recs, err := s.store.Query(ctx, store.KindTask, nil)
	if err != nil {
		return nil, err
	}
	tasks := make([]*item.Task, 0, len(recs))
	for _, rec := range recs {
		var t item.Task
		if err := json.Unmarshal(rec.Data, &t); err != nil {
			return nil, fmt.Errorf("failed to decode task %s: %w", rec.ID, err)
		}
		t.Version = rec.Version
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// tasksFor returns the item's tasks in creation order so that gate
// evaluation (and with it GateResult.Missing) is deterministic.
func (s *service) tasksFor(ctx context.Context, workItemID string) ([]*item.Task, error) {
	all, err := s.allTasks(ctx)
	if err != nil {
		return nil, err
	}
	var tasks []*item.Task
	for _, t := range all {
		if t.WorkItemID == workItemID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// appendHistory writes the audit record; history is advisory and never
// blocks the operation that produced it.
func (s *service) appendHistory(ctx context.Context, rec *store.TransitionRecord) {
	if err := s.store.AppendHistory(ctx, rec); err != nil {
		s.logger.Warn("failed to append history",
			zap.String("entity_id", rec.EntityID), zap.Error(err))
	}
}
