package rules

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"concordia/internal/records/store"
)

const defaultRuleTimeout = 10 * time.Second

// Detector evaluates a rule set against current state for one tenant. Both
// execution contexts share it: the reactive interceptor runs the rules for a
// specific trigger, the periodic auditor runs the periodic subset.
type Detector struct {
	gw          store.Gateway
	registry    *Registry
	logger      *slog.Logger
	ruleTimeout time.Duration
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRuleTimeout bounds each rule check. Rule checks perform store I/O, so
// an unbounded check could stall a whole audit cycle.
func WithRuleTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		if timeout > 0 {
			d.ruleTimeout = timeout
		}
	}
}

// NewDetector builds a detector over the given gateway and registry.
func NewDetector(gw store.Gateway, registry *Registry, opts ...DetectorOption) *Detector {
	d := &Detector{
		gw:          gw,
		registry:    registry,
		logger:      slog.Default(),
		ruleTimeout: defaultRuleTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs the rules registered for the trigger and returns the collected
// violations: rule-registration order first, record creation time ascending
// within one rule. A rule that fails to evaluate contributes a single entry
// with Err set and evaluation continues with the next rule; Detect itself
// never fails.
func (d *Detector) Detect(ctx context.Context, trigger Trigger, tenantID string, cc *CheckContext) []Violation {
	var out []Violation
	for _, rule := range d.registry.ForTrigger(trigger) {
		violations := d.runRule(ctx, rule, tenantID, cc)
		out = append(out, violations...)
	}
	return out
}

// RuleCount returns how many rules the trigger would run, for report summaries.
func (d *Detector) RuleCount(trigger Trigger) int {
	return len(d.registry.ForTrigger(trigger))
}

func (d *Detector) runRule(ctx context.Context, rule Rule, tenantID string, cc *CheckContext) []Violation {
	ruleCtx, cancel := context.WithTimeout(ctx, d.ruleTimeout)
	defer cancel()

	violations, err := rule.Check(ruleCtx, d.gw, tenantID, cc)
	if err != nil {
		d.logger.Error("rule_evaluation_failed",
			"rule_id", rule.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return []Violation{{
			RuleID:          rule.ID,
			RuleDescription: rule.Description,
			Kind:            KindRuleError,
			TenantID:        tenantID,
			Err:             err.Error(),
			Detail:          "rule failed to evaluate",
		}}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].TargetCreatedAt.Before(violations[j].TargetCreatedAt)
	})
	for i := range violations {
		violations[i].RuleID = rule.ID
		violations[i].RuleDescription = rule.Description
		violations[i].TenantID = tenantID
	}
	return violations
}
