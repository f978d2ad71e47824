package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/deptrack/deptrack/internal/config"
	"github.com/deptrack/deptrack/internal/sqlite"
	"github.com/deptrack/deptrack/pkg/models"
)

// Options encapsulates the dependencies required to run the alert engine.
type Options struct {
	Config  config.AlertsConfig
	DB      *sqlite.DB
	Facts   FactSource
	Devices DeviceWriter
	Logger  *slog.Logger
}

// Engine runs one evaluation pass per inbound request: scope-gated rule
// evaluation, aggregation, workflow-state upkeep and visibility
// filtering. There is no background scheduler; the host calls Evaluate
// synchronously.
type Engine struct {
	cfg     config.AlertsConfig
	db      *sqlite.DB
	facts   FactSource
	devices DeviceWriter
	log     *slog.Logger
}

// New constructs an Engine.
func New(opts Options) *Engine {
	return &Engine{
		cfg:     opts.Config,
		db:      opts.DB,
		facts:   opts.Facts,
		devices: opts.Devices,
		log:     opts.Logger.With("component", "alert_engine"),
	}
}

// Evaluate performs one pass for the given actor and returns the visible
// alerts plus the severity summary.
//
// The pass is fail-open: a failed evaluator family or a transient storage
// failure yields fewer alerts, never an error to the caller. Every such
// degradation is logged so silent under-alerting stays observable.
// Explicit user actions go through internal/core instead and do surface
// their failures.
func (e *Engine) Evaluate(ctx context.Context, actor models.Actor, filters models.AlertFilters, includeHidden bool) (*models.AlertListResult, error) {
	scope := ResolveScope(actor)
	if scope == models.ScopeNone {
		// Closed by default: no evaluation, no visible alerts.
		return &models.AlertListResult{Scope: scope, Alerts: []models.Alert{}}, nil
	}

	passID := uuid.NewString()
	log := e.log.With("pass_id", passID, "scope", scope)
	metrics.GetOrCreateCounter(fmt.Sprintf(`deptrack_alert_passes_total{scope=%q}`, scope)).Inc()

	if e.cfg.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.EvaluationTimeout)
		defer cancel()
	}

	now := time.Now().UTC()
	findings, effects := e.runEvaluators(ctx, scope, now, log)
	alerts := Aggregate(findings)

	// Store writes already issued must complete even if the inbound
	// request is aborted mid-pass; only new evaluator work stops.
	storeCtx := context.WithoutCancel(ctx)

	e.recordSeen(storeCtx, scope, alerts, log)
	e.reconcile(storeCtx, scope, alerts, log)
	e.applySideEffects(storeCtx, effects, log)

	states := e.loadStates(ctx, scope, log)
	visible := ApplyVisibility(alerts, states, now, includeHidden)
	visible = ApplyFilters(visible, filters)

	result := &models.AlertListResult{
		Scope:   scope,
		Alerts:  visible,
		Summary: Summarize(visible, now),
	}
	if result.Alerts == nil {
		result.Alerts = []models.Alert{}
	}
	log.Debug("evaluation pass complete", "findings", len(findings), "alerts", len(result.Alerts))
	return result, nil
}

// runEvaluators executes the scope-gated evaluator families. Failures are
// isolated per family: a panicking or timed-out family contributes zero
// findings while the other still runs.
func (e *Engine) runEvaluators(ctx context.Context, scope models.Scope, now time.Time, log *slog.Logger) ([]Finding, []SideEffect) {
	facts, err := e.facts.CourseFacts(ctx)
	if err != nil {
		log.Error("failed to load course facts, pass yields no reasons", "error", err)
		return nil, nil
	}

	var (
		findings []Finding
		effects  []SideEffect
	)

	if scopeRunsSchedule(scope) {
		family := e.runFamily("schedule", log, func() ([]Finding, []SideEffect) {
			return EvaluateSchedule(facts, now, e.cfg), nil
		})
		findings = append(findings, family...)
	}
	if scopeRunsLogistics(scope) {
		var familyEffects []SideEffect
		family := e.runFamily("logistics", log, func() (f []Finding, s []SideEffect) {
			f, familyEffects = EvaluateLogistics(facts, now, e.cfg)
			return f, familyEffects
		})
		findings = append(findings, family...)
		effects = append(effects, familyEffects...)
	}
	return findings, effects
}

// runFamily invokes one evaluator family with panic isolation.
func (e *Engine) runFamily(name string, log *slog.Logger, fn func() ([]Finding, []SideEffect)) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			metrics.GetOrCreateCounter(fmt.Sprintf(`deptrack_alert_evaluator_failures_total{family=%q}`, name)).Inc()
			log.Error("evaluator family failed, contributing zero reasons", "family", name, "panic", r)
			findings = nil
		}
	}()
	findings, _ = fn()
	metrics.GetOrCreateCounter(fmt.Sprintf(`deptrack_alert_findings_total{family=%q}`, name)).Add(len(findings))
	return findings
}

// recordSeen upserts every produced reason key. Best-effort: a failed
// upsert is logged and the pass continues.
func (e *Engine) recordSeen(ctx context.Context, scope models.Scope, alerts []models.Alert, log *slog.Logger) {
	for _, alert := range alerts {
		if alert.CourseID == 0 {
			continue
		}
		for _, reason := range alert.Reasons {
			if err := e.db.UpsertSeen(ctx, scope, alert.CourseID, reason.Key, reason.LegacyKeys); err != nil {
				metrics.GetOrCreateCounter(`deptrack_alert_store_errors_total{op="upsert_seen"}`).Inc()
				log.Warn("failed to record reason sighting", "course_id", alert.CourseID, "key", reason.Key, "error", err)
			}
		}
	}
}

// reconcile auto-resolves state rows whose condition stopped firing. It
// runs once per course after the pass's upserts, against the full
// alias-expanded key set the pass produced, and covers courses that
// produced no reasons at all. Best-effort like recordSeen.
func (e *Engine) reconcile(ctx context.Context, scope models.Scope, alerts []models.Alert, log *slog.Logger) {
	activeKeys := make(map[int][]string, len(alerts))
	for _, alert := range alerts {
		if alert.CourseID == 0 {
			continue
		}
		for _, reason := range alert.Reasons {
			activeKeys[alert.CourseID] = append(activeKeys[alert.CourseID], reason.StateKeys()...)
		}
	}

	courses := make(map[int]bool, len(activeKeys))
	for courseID := range activeKeys {
		courses[courseID] = true
	}
	if states, err := e.db.ListStatesByScope(ctx, scope); err != nil {
		metrics.GetOrCreateCounter(`deptrack_alert_store_errors_total{op="list_states"}`).Inc()
		log.Warn("failed to list states for reconciliation", "error", err)
	} else {
		for _, s := range states {
			courses[s.CourseID] = true
		}
	}

	for courseID := range courses {
		if err := e.db.Reconcile(ctx, scope, courseID, activeKeys[courseID]); err != nil {
			metrics.GetOrCreateCounter(`deptrack_alert_store_errors_total{op="reconcile"}`).Inc()
			log.Warn("failed to reconcile course", "course_id", courseID, "error", err)
		}
	}
}

// applySideEffects hands the evaluators' side-effect instructions to the
// device collaborator. This is the engine's only write against external
// state; with no writer configured the instructions are logged only.
func (e *Engine) applySideEffects(ctx context.Context, effects []SideEffect, log *slog.Logger) {
	for _, effect := range effects {
		metrics.GetOrCreateCounter(fmt.Sprintf(`deptrack_alert_side_effects_total{action=%q}`, effect.Action)).Inc()
		if e.devices == nil {
			log.Warn("device side effect not applied, no writer configured", "action", effect.Action, "device_id", effect.DeviceID, "course_id", effect.CourseID)
			continue
		}
		if effect.Action != ActionMarkLost {
			log.Warn("unknown side effect action", "action", effect.Action)
			continue
		}
		if err := e.devices.MarkLost(ctx, effect.DeviceID, effect.CourseID); err != nil {
			log.Error("failed to mark device lost", "device_id", effect.DeviceID, "course_id", effect.CourseID, "error", err)
			continue
		}
		log.Info("device marked lost after overdue return", "device_id", effect.DeviceID, "course_id", effect.CourseID)
	}
}

// loadStates fetches and indexes the scope's workflow state. On transient
// failure the pass degrades to an empty index: everything shows as
// freshly open rather than failing the request.
func (e *Engine) loadStates(ctx context.Context, scope models.Scope, log *slog.Logger) StateIndex {
	states, err := e.db.ListStatesByScope(ctx, scope)
	if err != nil {
		metrics.GetOrCreateCounter(`deptrack_alert_store_errors_total{op="list_states"}`).Inc()
		log.Warn("failed to load alert states, showing reasons as open", "error", err)
		return StateIndex{}
	}
	return BuildStateIndex(states)
}
