// Package loop drives registered work on two independent cadences: a fast
// trigger cadence and a slow planning cadence.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TriggerFunc is an opaque unit of work invoked on every trigger tick.
type TriggerFunc func(ctx context.Context) error

// PlanningFunc is the single unit invoked on every planning tick.
type PlanningFunc func(ctx context.Context) error

// Default cadences, overridable through Options.
const (
	DefaultTriggerInterval  = 10 * time.Second
	DefaultPlanningInterval = 60 * time.Second
)

// Options configures a Loop's cadences. Zero values fall back to defaults.
type Options struct {
	TriggerInterval  time.Duration
	PlanningInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TriggerInterval <= 0 {
		o.TriggerInterval = DefaultTriggerInterval
	}
	if o.PlanningInterval <= 0 {
		o.PlanningInterval = DefaultPlanningInterval
	}
	return o
}

// Loop owns the two cadence timers and the registries of work they drive.
// It holds no domain state: failures are isolated per unit, logged and
// swallowed, so one broken trigger never stalls its siblings or the loop.
type Loop struct {
	agentID string
	opts    Options

	mu            sync.Mutex
	running       bool
	runID         string
	runCtx        context.Context
	cancel        context.CancelFunc
	triggers      []TriggerFunc
	planning      PlanningFunc
	planningArmed bool

	tracer trace.Tracer
}

// New creates a stopped loop for one agent.
func New(agentID string, opts Options) *Loop {
	initLoopMetrics()
	return &Loop{
		agentID: agentID,
		opts:    opts.withDefaults(),
		tracer:  otel.Tracer("eliza/loop"),
	}
}

// RegisterTrigger appends a trigger unit to the registry. Valid in any
// state; a unit registered while running takes effect on the next tick.
// No de-duplication: registering the same unit twice runs it twice per tick.
func (l *Loop) RegisterTrigger(fn TriggerFunc) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.triggers = append(l.triggers, fn)
}

// SetPlanningUnit replaces the single planning-unit slot. If the loop is
// already running and no planning timer is armed yet, one starts
// immediately; if a timer is already armed, only the callback is swapped
// and the timer's phase is untouched.
func (l *Loop) SetPlanningUnit(fn PlanningFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.planning = fn
	if l.running && fn != nil && !l.planningArmed {
		l.armPlanningLocked()
	}
}

// Start transitions the loop to running and arms the trigger timer, plus
// the planning timer when a planning unit is already set. Calling Start on
// a running loop is a logged no-op.
func (l *Loop) Start(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := slog.Default()
	if l.running {
		log.Warn("loop.start.skip",
			slog.String("agent_id", l.agentID),
			slog.String("run_id", l.runID),
		)
		return nil
	}

	l.running = true
	l.runID = uuid.NewString()
	l.runCtx, l.cancel = context.WithCancel(context.Background())

	go l.triggerLoop(l.runCtx)

	if l.planning != nil {
		l.armPlanningLocked()
	}

	log.Info("loop.start",
		slog.String("agent_id", l.agentID),
		slog.String("run_id", l.runID),
		slog.Duration("trigger_interval", l.opts.TriggerInterval),
		slog.Duration("planning_interval", l.opts.PlanningInterval),
		slog.Int("triggers", len(l.triggers)),
	)
	return nil
}

// Stop cancels future timer firings and transitions to stopped. It does not
// await an in-flight unit: one already executing runs to completion after
// Stop returns. Registries are kept, so a later Start resumes the same work.
// Calling Stop on a stopped loop is a logged no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	log := slog.Default()
	if !l.running {
		log.Warn("loop.stop.skip", slog.String("agent_id", l.agentID))
		return
	}

	l.cancel()
	l.running = false
	l.planningArmed = false
	l.cancel = nil
	l.runCtx = nil

	log.Info("loop.stop",
		slog.String("agent_id", l.agentID),
		slog.String("run_id", l.runID),
	)
}

// Running reports whether the loop is in the running state.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// armPlanningLocked starts the planning timer goroutine. Caller holds l.mu.
func (l *Loop) armPlanningLocked() {
	l.planningArmed = true
	go l.planningLoop(l.runCtx)
}

func (l *Loop) triggerLoop(ctx context.Context) {
	ticker := time.NewTicker(l.opts.TriggerInterval)
	defer ticker.Stop()
	log := slog.Default()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runTriggerTick(ctx, log)
		}
	}
}

// runTriggerTick invokes every registered trigger sequentially in
// registration order. A unit failure is reported and never prevents the
// remaining units in the same tick, nor the next tick.
func (l *Loop) runTriggerTick(ctx context.Context, log *slog.Logger) {
	l.mu.Lock()
	triggers := make([]TriggerFunc, len(l.triggers))
	copy(triggers, l.triggers)
	runID := l.runID
	l.mu.Unlock()

	tickStart := time.Now()
	tickCtx, span := l.tracer.Start(ctx, "Loop.Tick", trace.WithAttributes(
		attribute.String("agent.id", l.agentID),
		attribute.Int("triggers", len(triggers)),
	))
	defer span.End()

	tickCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", l.agentID),
	))

	for i, trigger := range triggers {
		if err := trigger(tickCtx); err != nil {
			triggerErrorCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("agent_id", l.agentID),
			))
			span.RecordError(err)
			log.Error("loop.trigger.error",
				slog.String("agent_id", l.agentID),
				slog.String("run_id", runID),
				slog.Int("trigger", i),
				slog.String("error", err.Error()),
			)
		}
	}

	tickLatencyMs.Record(ctx, float64(time.Since(tickStart).Seconds()*1000), metric.WithAttributes(
		attribute.String("agent_id", l.agentID),
	))
	log.Debug("loop.tick",
		slog.String("agent_id", l.agentID),
		slog.String("run_id", runID),
		slog.Int("triggers", len(triggers)),
	)
}

func (l *Loop) planningLoop(ctx context.Context) {
	ticker := time.NewTicker(l.opts.PlanningInterval)
	defer ticker.Stop()
	log := slog.Default()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Re-read the slot each tick so a swapped callback takes
			// effect without resetting the timer's phase.
			l.mu.Lock()
			planning := l.planning
			runID := l.runID
			l.mu.Unlock()
			if planning == nil {
				continue
			}

			planCtx, span := l.tracer.Start(ctx, "Loop.PlanningTick", trace.WithAttributes(
				attribute.String("agent.id", l.agentID),
			))
			planningTickCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("agent_id", l.agentID),
			))
			if err := planning(planCtx); err != nil {
				planningErrorCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("agent_id", l.agentID),
				))
				span.RecordError(err)
				log.Error("loop.planning.error",
					slog.String("agent_id", l.agentID),
					slog.String("run_id", runID),
					slog.String("error", err.Error()),
				)
			}
			span.End()
		}
	}
}

var (
	loopMetricsOnce      sync.Once
	tickCounter          metric.Int64Counter
	triggerErrorCounter  metric.Int64Counter
	planningTickCounter  metric.Int64Counter
	planningErrorCounter metric.Int64Counter
	tickLatencyMs        metric.Float64Histogram
)

func initLoopMetrics() {
	loopMetricsOnce.Do(func() {
		meter := otel.Meter("eliza/loop")
		tickCounter, _ = meter.Int64Counter("eliza.loop.tick.count")
		triggerErrorCounter, _ = meter.Int64Counter("eliza.loop.trigger.error.count")
		planningTickCounter, _ = meter.Int64Counter("eliza.loop.planning.tick.count")
		planningErrorCounter, _ = meter.Int64Counter("eliza.loop.planning.error.count")
		tickLatencyMs, _ = meter.Float64Histogram("eliza.loop.tick.latency_ms")
	})
}
