// Package planner owns the current plan: generation from external state,
// drift monitoring, and replacement with lineage tracking.
package planner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/OkGoDoIt/eliza/pkg/errors"
	"github.com/OkGoDoIt/eliza/pkg/plan"
)

// Engine is the plan engine. It exclusively owns the current-plan slot;
// every external mutation goes through its methods. Public operations are
// serialized by an internal mutex, and the composite Run cycle additionally
// refuses to overlap with itself.
type Engine struct {
	agentID   string
	provider  StateProvider
	generator Generator
	store     plan.Store
	staleness time.Duration

	mu      sync.Mutex
	current *plan.Plan

	planning atomic.Bool

	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerator replaces the default decomposition strategy.
func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithStore attaches a plan store. The engine persists the current plan on
// every install, mutation and clear, and Restore reloads it after a restart.
func WithStore(s plan.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithStalenessThreshold sets how long a plan may go without progress before
// drift detection reports it. Zero disables the check.
func WithStalenessThreshold(d time.Duration) Option {
	return func(e *Engine) { e.staleness = d }
}

// NewEngine creates a plan engine for one agent.
func NewEngine(agentID string, provider StateProvider, opts ...Option) *Engine {
	e := &Engine{
		agentID:   agentID,
		provider:  provider,
		generator: GoalGenerator{},
		staleness: 10 * time.Minute,
		tracer:    otel.Tracer("eliza/planner"),
	}
	for _, opt := range opts {
		opt(e)
	}
	initPlannerMetrics()
	return e
}

// CurrentPlan returns the plan currently owned by the engine, or nil.
func (e *Engine) CurrentPlan() *plan.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// GeneratePlan produces a brand-new plan from the snapshot and installs it
// as current. It either returns a well-formed plan with at least one pending
// subtask or an error; a malformed generator result is never installed.
func (e *Engine) GeneratePlan(ctx context.Context, snap Snapshot) (*plan.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generateLocked(ctx, snap, nil)
}

// generateLocked runs the generator, normalizes the result and installs it.
// lineage, when non-nil, is attached before installation. Caller holds e.mu.
func (e *Engine) generateLocked(ctx context.Context, snap Snapshot, lineage *plan.Lineage) (*plan.Plan, error) {
	p, err := e.generator.Generate(ctx, snap)
	if err != nil {
		generateErrorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent_id", e.agentID),
		))
		return nil, errors.New(errors.CodePlanGeneration, "plan generation failed", err).
			WithContext("agent_id", e.agentID)
	}
	normalizeGenerated(p)
	if err := p.Validate(); err != nil {
		generateErrorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent_id", e.agentID),
		))
		return nil, errors.New(errors.CodePlanGeneration, "generator returned malformed plan", err).
			WithContext("agent_id", e.agentID)
	}
	p.Metadata = lineage

	e.current = p
	e.persist(ctx, p, true)
	generateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", e.agentID),
	))
	slog.Default().InfoContext(ctx, "planner.plan.generate",
		slog.String("agent_id", e.agentID),
		slog.String("plan_id", p.ID),
		slog.String("goal", p.Goal),
		slog.Int("subtasks", len(p.Subtasks)),
	)
	return p, nil
}

// MonitorPlan reports the per-status subtask tally. It is read-only: the
// plan is never altered. A nil plan is a contract violation.
func (e *Engine) MonitorPlan(ctx context.Context, p *plan.Plan) (Tally, error) {
	if p == nil {
		return Tally{}, errors.New(errors.CodeInvalidInput, "plan is required", nil)
	}
	t := tallyPlan(p)
	slog.Default().InfoContext(ctx, "planner.monitor",
		slog.String("agent_id", e.agentID),
		slog.String("plan_id", p.ID),
		slog.Int("pending", t.Pending),
		slog.Int("in_progress", t.InProgress),
		slog.Int("completed", t.Completed),
		slog.Int("failed", t.Failed),
	)
	return t, nil
}

// CheckForDrift evaluates plan health and returns severity-tagged
// discrepancies. Only critical discrepancies justify replanning.
func (e *Engine) CheckForDrift(p *plan.Plan) []Discrepancy {
	return detectDrift(p, e.staleness, time.Now().UTC())
}

// ReplanIfNeeded abandons and replaces the current plan when it carries a
// failed subtask or a critical discrepancy. Otherwise the same plan is
// returned unchanged; callers detect "no replan" by pointer or id equality.
func (e *Engine) ReplanIfNeeded(ctx context.Context, snap Snapshot, current *plan.Plan) (*plan.Plan, error) {
	if current == nil {
		return nil, errors.New(errors.CodeInvalidInput, "current plan is required", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	discrepancies := detectDrift(current, e.staleness, time.Now().UTC())
	critical, needed := firstCritical(discrepancies)
	if !needed {
		return current, nil
	}

	current.Status = plan.StatusAbandoned
	current.Touch(time.Now().UTC())
	e.persist(ctx, current, false)

	lineage := &plan.Lineage{
		PreviousPlanID:        current.ID,
		ReplanReason:          critical.Message,
		OriginalPlanCreatedAt: current.RootCreatedAt(),
	}
	next, err := e.generateLocked(ctx, snap, lineage)
	if err != nil {
		return nil, err
	}
	replanCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", e.agentID),
		attribute.String("reason", critical.Code),
	))
	slog.Default().InfoContext(ctx, "planner.plan.replan",
		slog.String("agent_id", e.agentID),
		slog.String("previous_plan_id", current.ID),
		slog.String("plan_id", next.ID),
		slog.String("reason", critical.Message),
	)
	return next, nil
}

// UpdateSubtaskStatus mutates a subtask's status within the current plan and
// bumps both the subtask's and the plan's UpdatedAt. It returns false, not
// an error, when the plan or subtask is absent or the status is unknown.
// This is the only externally callable mutator of subtask state.
func (e *Engine) UpdateSubtaskStatus(ctx context.Context, planID, subtaskID string, status plan.SubtaskStatus) bool {
	if !plan.ValidSubtaskStatus(status) {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.ID != planID {
		return false
	}
	st := e.current.Subtask(subtaskID)
	if st == nil {
		return false
	}

	now := time.Now().UTC()
	st.Status = status
	if now.After(st.UpdatedAt) {
		st.UpdatedAt = now
	}
	if e.current.Status == plan.StatusCreated {
		e.current.Status = plan.StatusInProgress
	}
	e.current.Touch(now)
	e.persist(ctx, e.current, true)

	slog.Default().InfoContext(ctx, "planner.subtask.update",
		slog.String("agent_id", e.agentID),
		slog.String("plan_id", planID),
		slog.String("subtask_id", subtaskID),
		slog.String("status", string(status)),
	)
	return true
}

// Run is the composite planning cycle registered with the loop driver:
// generate when no plan exists, otherwise check drift, replan when
// justified, and complete-and-clear a finished plan. Overlapping invocations
// are skipped, never queued.
func (e *Engine) Run(ctx context.Context) error {
	if !e.planning.CompareAndSwap(false, true) {
		cycleSkipCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("agent_id", e.agentID),
		))
		slog.Default().InfoContext(ctx, "planner.cycle.skip",
			slog.String("agent_id", e.agentID),
		)
		return nil
	}
	defer e.planning.Store(false)

	ctx, span := e.tracer.Start(ctx, "Planner.Cycle", trace.WithAttributes(
		attribute.String("agent.id", e.agentID),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		cycleLatencyMs.Record(ctx, float64(time.Since(start).Seconds()*1000), metric.WithAttributes(
			attribute.String("agent_id", e.agentID),
		))
	}()
	cycleCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", e.agentID),
	))

	current := e.CurrentPlan()
	if current == nil {
		snap, err := e.provider.Snapshot(ctx)
		if err != nil {
			return e.cycleError(ctx, span, err)
		}
		if _, err := e.GeneratePlan(ctx, snap); err != nil {
			return e.cycleError(ctx, span, err)
		}
		return nil
	}

	if discrepancies := e.CheckForDrift(current); len(discrepancies) > 0 {
		for _, d := range discrepancies {
			slog.Default().WarnContext(ctx, "planner.drift",
				slog.String("agent_id", e.agentID),
				slog.String("plan_id", current.ID),
				slog.String("severity", string(d.Severity)),
				slog.String("code", d.Code),
				slog.String("detail", d.Message),
			)
		}
		snap, err := e.provider.Snapshot(ctx)
		if err != nil {
			return e.cycleError(ctx, span, err)
		}
		next, err := e.ReplanIfNeeded(ctx, snap, current)
		if err != nil {
			return e.cycleError(ctx, span, err)
		}
		current = next
	}

	if current.AllSubtasksCompleted() {
		e.completePlan(ctx, current)
	}
	return nil
}

// Restore reloads the persisted current plan after a restart. Without a
// store, or without a persisted plan, it is a no-op.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	p, err := e.store.LoadCurrent(ctx)
	if err != nil {
		if err == plan.ErrPlanNotFound {
			return nil
		}
		return errors.New(errors.CodeStoreError, "restore current plan", err)
	}
	if p.IsTerminal() {
		return nil
	}
	e.mu.Lock()
	e.current = p
	e.mu.Unlock()
	slog.Default().InfoContext(ctx, "planner.plan.restore",
		slog.String("agent_id", e.agentID),
		slog.String("plan_id", p.ID),
		slog.String("status", string(p.Status)),
	)
	return nil
}

func (e *Engine) completePlan(ctx context.Context, p *plan.Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.ID != p.ID {
		return
	}
	now := time.Now().UTC()
	e.current.Status = plan.StatusCompleted
	e.current.Touch(now)
	e.persist(ctx, e.current, false)
	if e.store != nil {
		if err := e.store.ClearCurrent(ctx); err != nil {
			slog.Default().WarnContext(ctx, "planner.store.error",
				slog.String("agent_id", e.agentID),
				slog.String("error", err.Error()),
			)
		}
	}
	slog.Default().InfoContext(ctx, "planner.plan.complete",
		slog.String("agent_id", e.agentID),
		slog.String("plan_id", e.current.ID),
	)
	e.current = nil
}

func (e *Engine) cycleError(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	cycleErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", e.agentID),
	))
	slog.Default().ErrorContext(ctx, "planner.cycle.error",
		slog.String("agent_id", e.agentID),
		slog.String("error", err.Error()),
	)
	return err
}

// persist writes the plan to the store if one is attached. Persistence is a
// durability add-on; failures are logged and never alter the in-memory slot.
func (e *Engine) persist(ctx context.Context, p *plan.Plan, current bool) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, p, current); err != nil {
		slog.Default().WarnContext(ctx, "planner.store.error",
			slog.String("agent_id", e.agentID),
			slog.String("plan_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func normalizeGenerated(p *plan.Plan) {
	if p == nil {
		return
	}
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = plan.StatusCreated
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	for i := range p.Subtasks {
		st := &p.Subtasks[i]
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		st.Status = plan.SubtaskPending
		if st.CreatedAt.IsZero() {
			st.CreatedAt = p.CreatedAt
		}
		if st.UpdatedAt.IsZero() {
			st.UpdatedAt = st.CreatedAt
		}
	}
}

var (
	plannerMetricsOnce   sync.Once
	cycleCounter         metric.Int64Counter
	cycleSkipCounter     metric.Int64Counter
	cycleErrorCounter    metric.Int64Counter
	generateCounter      metric.Int64Counter
	generateErrorCounter metric.Int64Counter
	replanCounter        metric.Int64Counter
	cycleLatencyMs       metric.Float64Histogram
)

func initPlannerMetrics() {
	plannerMetricsOnce.Do(func() {
		meter := otel.Meter("eliza/planner")
		cycleCounter, _ = meter.Int64Counter("eliza.planner.cycle.count")
		cycleSkipCounter, _ = meter.Int64Counter("eliza.planner.cycle.skip.count")
		cycleErrorCounter, _ = meter.Int64Counter("eliza.planner.cycle.error.count")
		generateCounter, _ = meter.Int64Counter("eliza.planner.generate.count")
		generateErrorCounter, _ = meter.Int64Counter("eliza.planner.generate.error.count")
		replanCounter, _ = meter.Int64Counter("eliza.planner.replan.count")
		cycleLatencyMs, _ = meter.Float64Histogram("eliza.planner.cycle.latency_ms")
	})
}
