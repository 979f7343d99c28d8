package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"concordia/internal/engine/metrics"
	"concordia/internal/engine/reports"
	"concordia/internal/engine/rules"
	"concordia/internal/records/store"
)

const defaultActionTimeout = 15 * time.Second

// Result is the outcome of dispatching one violation.
type Result struct {
	Violation rules.Violation
	Outcome   *Outcome
	Err       error
}

// Resolved reports whether the correction went through (including idempotent
// no-ops).
func (r Result) Resolved() bool {
	return r.Err == nil && r.Outcome != nil
}

// Dispatcher maps each violation kind to exactly one corrective action and
// executes them sequentially. Its contract is "attempt all corrections,
// never abort the batch": every failure is caught, logged to the report
// store as a non-fatal correction failure, and never re-thrown.
type Dispatcher struct {
	gw            store.Gateway
	reports       *reports.Store
	logger        *slog.Logger
	metrics       *metrics.Metrics
	actions       map[rules.Kind]Action
	actionTimeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithActionTimeout bounds each corrective action. Actions perform store
// I/O, so an unbounded action could stall a whole batch.
func WithActionTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.actionTimeout = timeout
		}
	}
}

// WithActions replaces the default action set. Kinds not covered are
// reported as skipped at dispatch time.
func WithActions(actions ...Action) DispatcherOption {
	return func(d *Dispatcher) {
		d.actions = make(map[rules.Kind]Action, len(actions))
		for _, a := range actions {
			d.actions[a.Kind()] = a
		}
	}
}

// NewDispatcher builds a dispatcher with the default action set.
func NewDispatcher(gw store.Gateway, reportStore *reports.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gw:            gw,
		reports:       reportStore,
		logger:        slog.Default(),
		actionTimeout: defaultActionTimeout,
	}
	WithActions(DefaultActions()...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes the matching corrective action for each violation, in the
// order the violations were yielded. Rule-error entries and kinds without an
// action are recorded as skipped. Dispatch never returns an error; per-action
// failures land in the result slice and the correction log.
func (d *Dispatcher) Dispatch(ctx context.Context, violations []rules.Violation, mode Mode) []Result {
	results := make([]Result, 0, len(violations))
	for _, v := range violations {
		results = append(results, d.dispatchOne(ctx, v, mode))
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, v rules.Violation, mode Mode) Result {
	if v.Kind == rules.KindRuleError {
		d.reports.LogCorrection(ctx, v.TenantID, reports.CorrectionEntry{
			RuleID:  v.RuleID,
			Action:  string(v.Kind),
			Outcome: reports.OutcomeSkipped,
			Error:   v.Err,
		})
		return Result{Violation: v}
	}

	action, ok := d.actions[v.Kind]
	if !ok {
		d.logger.Warn("no_action_for_violation_kind", "kind", v.Kind, "tenant_id", v.TenantID)
		d.reports.LogCorrection(ctx, v.TenantID, reports.CorrectionEntry{
			RuleID:   v.RuleID,
			Action:   string(v.Kind),
			TargetID: v.TargetID,
			Outcome:  reports.OutcomeSkipped,
			Error:    "no corrective action registered",
		})
		return Result{Violation: v}
	}

	outcome, err := d.apply(ctx, action, v, mode)
	if err != nil {
		d.logger.Error("correction_failed",
			"kind", v.Kind,
			"tenant_id", v.TenantID,
			"target_id", v.TargetID,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.CorrectionsFailed.WithLabelValues(string(v.Kind)).Inc()
		}
		d.reports.LogCorrection(ctx, v.TenantID, reports.CorrectionEntry{
			RuleID:   v.RuleID,
			Action:   string(v.Kind),
			TargetID: v.TargetID,
			Outcome:  reports.OutcomeFailed,
			Error:    err.Error(),
		})
		return Result{Violation: v, Err: err}
	}

	if d.metrics != nil && !outcome.NoOp {
		d.metrics.CorrectionsApplied.WithLabelValues(string(v.Kind)).Inc()
	}
	d.reports.LogCorrection(ctx, v.TenantID, reports.CorrectionEntry{
		RuleID:   v.RuleID,
		Action:   string(v.Kind),
		TargetID: outcome.TargetID,
		Outcome:  reports.OutcomeApplied,
	})
	return Result{Violation: v, Outcome: outcome}
}

// apply runs one action with a bounded timeout and panic containment. The
// dispatcher must survive anything an action does.
func (d *Dispatcher) apply(ctx context.Context, action Action, v rules.Violation, mode Mode) (outcome *Outcome, err error) {
	actionCtx, cancel := context.WithTimeout(ctx, d.actionTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("corrective action panicked: %v", r)
		}
	}()
	return action.Apply(actionCtx, d.gw, v, mode)
}
