// Package rules declares the consistency rules the engine enforces over the
// compliance record graph and the detector that evaluates them. Rules only
// read; every write goes through a corrective action.
package rules

import (
	"context"
	"time"

	"concordia/internal/records/models"
	"concordia/internal/records/store"
)

// Trigger names the execution context a rule applies to.
type Trigger string

const (
	TriggerPeriodic     Trigger = "periodic"
	TriggerBeforeCreate Trigger = "before_create"
	TriggerBeforeUpdate Trigger = "before_update"
	TriggerBeforeDelete Trigger = "before_delete"
)

// IsValid reports whether the trigger is one of the known values.
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerPeriodic, TriggerBeforeCreate, TriggerBeforeUpdate, TriggerBeforeDelete:
		return true
	}
	return false
}

// Kind identifies a violation class. Each kind maps to exactly one corrective
// action; KindRuleError is the exception, it records a rule that failed to
// evaluate and has no action.
type Kind string

const (
	KindHighRiskMissingAssessment             Kind = "HIGH_RISK_MISSING_ASSESSMENT"
	KindApprovedAssessmentMissingApprovalTask Kind = "APPROVED_ASSESSMENT_MISSING_APPROVAL_TASK"
	KindOrphanTask                            Kind = "ORPHAN_TASK"
	KindDuplicateActivity                     Kind = "DUPLICATE_ACTIVITY"
	KindPreCreateHighRiskNeedsAssessment      Kind = "PRE_CREATE_HIGH_RISK_NEEDS_ASSESSMENT"
	KindRiskAffectingChangeNeedsReassessment  Kind = "RISK_AFFECTING_CHANGE_NEEDS_REASSESSMENT"
	KindPendingDependenciesBeforeDelete       Kind = "PENDING_DEPENDENCIES_BEFORE_DELETE"
	KindInconsistentRiskLevel                 Kind = "INCONSISTENT_RISK_LEVEL"
	KindRuleError                             Kind = "RULE_EVALUATION_ERROR"
)

// Violation is one detected breach of a consistency invariant, with enough
// context for its corrective action to run without re-detection.
type Violation struct {
	RuleID          string
	RuleDescription string
	Kind            Kind
	TenantID        string

	// TargetID is the offending record. Empty for pre-create violations
	// where the record does not exist yet.
	TargetID        string
	TargetCreatedAt time.Time
	Detail          string

	// Err is set when the rule itself failed to evaluate. Such entries are
	// reported but never dispatched.
	Err string

	// Candidate carries the not-yet-persisted payload for reactive triggers.
	Candidate *models.ProcessingActivity
	// RelatedID points at a second record involved in the violation, e.g.
	// the surviving activity of a duplicate pair.
	RelatedID string
	// ExpectedRisk is the recomputed level for risk inconsistencies.
	ExpectedRisk models.RiskLevel
}

// CheckContext carries the proposed mutation for reactive triggers. Periodic
// rules receive a nil context.
type CheckContext struct {
	// Candidate is the record about to be written (create: full payload,
	// update: target id plus new values, delete: target id).
	Candidate *models.ProcessingActivity
	// ChangedFields lists the field names an update touches.
	ChangedFields []string
}

// CheckFunc evaluates one rule for a tenant. It must not mutate records.
type CheckFunc func(ctx context.Context, gw store.Gateway, tenantID string, cc *CheckContext) ([]Violation, error)

// Rule is one declarative consistency rule.
type Rule struct {
	ID          string
	Description string
	Trigger     Trigger
	Check       CheckFunc
}

// Registry holds rules in registration order. Detection iterates in that
// order, which fixes the order violations are reported and corrected in.
type Registry struct {
	rules []Rule
}

// NewRegistry builds a registry from the given rules, preserving order.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// Register appends a rule.
func (r *Registry) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

// ForTrigger returns the rules matching the trigger, in registration order.
func (r *Registry) ForTrigger(t Trigger) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Trigger == t {
			out = append(out, rule)
		}
	}
	return out
}

// All returns every registered rule in registration order.
func (r *Registry) All() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules)
}
