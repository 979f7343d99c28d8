package rules

import (
	"context"
	"errors"
	"fmt"

	"concordia/internal/engine/risk"
	"concordia/internal/records/models"
	"concordia/internal/records/store"
	"concordia/internal/sentinel"
)

// riskAffectingFields are the update fields that invalidate existing
// assessments when touched.
var riskAffectingFields = map[string]bool{
	"data_categories":         true,
	"international_transfers": true,
	"legal_basis":             true,
	"purpose":                 true,
	"recipients":              true,
}

// DefaultRegistry returns the full built-in rule set in its canonical order.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Rule{
			ID:          "high_risk_requires_assessment",
			Description: "every active HIGH/CRITICAL-risk activity must have an open impact assessment",
			Trigger:     TriggerPeriodic,
			Check:       checkHighRiskMissingAssessment,
		},
		Rule{
			ID:          "approved_assessment_requires_approval_task",
			Description: "every approved assessment must have a completed task proving its review",
			Trigger:     TriggerPeriodic,
			Check:       checkApprovedAssessmentMissingTask,
		},
		Rule{
			ID:          "pending_task_requires_live_activity",
			Description: "a pending task whose activity no longer resolves is orphaned",
			Trigger:     TriggerPeriodic,
			Check:       checkOrphanTasks,
		},
		Rule{
			ID:          "stored_risk_matches_recomputed",
			Description: "the stored risk level must match the recomputed score",
			Trigger:     TriggerPeriodic,
			Check:       checkInconsistentRiskLevels,
		},
		Rule{
			ID:          "no_duplicate_activity_names",
			Description: "a new activity must not approximately match an existing non-deleted one",
			Trigger:     TriggerBeforeCreate,
			Check:       checkDuplicateActivity,
		},
		Rule{
			ID:          "pre_create_high_risk_needs_assessment",
			Description: "a new activity scoring HIGH needs an impact assessment from the start",
			Trigger:     TriggerBeforeCreate,
			Check:       checkPreCreateHighRisk,
		},
		Rule{
			ID:          "risk_affecting_change_needs_reassessment",
			Description: "updates to risk-affecting fields invalidate linked assessments",
			Trigger:     TriggerBeforeUpdate,
			Check:       checkRiskAffectingChange,
		},
		Rule{
			ID:          "delete_requires_resolved_dependencies",
			Description: "an activity with open dependent records cannot be deleted cleanly",
			Trigger:     TriggerBeforeDelete,
			Check:       checkPendingDependencies,
		},
	)
}

func checkHighRiskMissingAssessment(ctx context.Context, gw store.Gateway, tenantID string, _ *CheckContext) ([]Violation, error) {
	active := models.ActivityActive
	activities, err := gw.ListActivities(ctx, tenantID, store.ActivityFilter{
		Status: &active,
		RiskIn: []models.RiskLevel{models.RiskHigh, models.RiskCritical},
	})
	if err != nil {
		return nil, fmt.Errorf("list high-risk activities: %w", err)
	}

	var out []Violation
	archived := models.AssessmentArchived
	for _, a := range activities {
		n, err := gw.CountAssessments(ctx, tenantID, store.AssessmentFilter{
			ActivityID: &a.ID,
			StatusNot:  &archived,
		})
		if err != nil {
			return nil, fmt.Errorf("count assessments for %s: %w", a.ID, err)
		}
		if n == 0 {
			out = append(out, Violation{
				Kind:            KindHighRiskMissingAssessment,
				TargetID:        a.ID,
				TargetCreatedAt: a.CreatedAt,
				Detail:          fmt.Sprintf("activity %q (%s) has no open impact assessment", a.Name, a.RiskLevel),
			})
		}
	}
	return out, nil
}

func checkApprovedAssessmentMissingTask(ctx context.Context, gw store.Gateway, tenantID string, _ *CheckContext) ([]Violation, error) {
	approved := models.AssessmentApproved
	assessments, err := gw.ListAssessments(ctx, tenantID, store.AssessmentFilter{Status: &approved})
	if err != nil {
		return nil, fmt.Errorf("list approved assessments: %w", err)
	}

	var out []Violation
	completed := models.TaskCompleted
	for _, a := range assessments {
		n, err := gw.CountTasks(ctx, tenantID, store.TaskFilter{
			Status:              &completed,
			DescriptionContains: a.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("count approval tasks for %s: %w", a.ID, err)
		}
		if n == 0 {
			out = append(out, Violation{
				Kind:            KindApprovedAssessmentMissingApprovalTask,
				TargetID:        a.ID,
				TargetCreatedAt: a.CreatedAt,
				Detail:          fmt.Sprintf("approved assessment %s has no completed approval task", a.ID),
			})
		}
	}
	return out, nil
}

func checkOrphanTasks(ctx context.Context, gw store.Gateway, tenantID string, _ *CheckContext) ([]Violation, error) {
	pending := models.TaskPending
	tasks, err := gw.ListTasks(ctx, tenantID, store.TaskFilter{Status: &pending})
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}

	var out []Violation
	for _, t := range tasks {
		if t.ActivityID == "" {
			continue
		}
		activity, err := gw.GetActivity(ctx, tenantID, t.ActivityID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			// Orphan: reference does not resolve at all.
		case err != nil:
			return nil, fmt.Errorf("resolve activity %s: %w", t.ActivityID, err)
		case activity.Status != models.ActivityDeleted:
			continue
		}
		out = append(out, Violation{
			Kind:            KindOrphanTask,
			TargetID:        t.ID,
			TargetCreatedAt: t.CreatedAt,
			RelatedID:       t.ActivityID,
			Detail:          fmt.Sprintf("task %s references missing or deleted activity %s", t.ID, t.ActivityID),
		})
	}
	return out, nil
}

func checkInconsistentRiskLevels(ctx context.Context, gw store.Gateway, tenantID string, _ *CheckContext) ([]Violation, error) {
	active := models.ActivityActive
	activities, err := gw.ListActivities(ctx, tenantID, store.ActivityFilter{Status: &active})
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	var out []Violation
	for _, a := range activities {
		if risk.Consistent(a) {
			continue
		}
		expected := risk.Evaluate(a)
		out = append(out, Violation{
			Kind:            KindInconsistentRiskLevel,
			TargetID:        a.ID,
			TargetCreatedAt: a.CreatedAt,
			ExpectedRisk:    expected,
			Detail:          fmt.Sprintf("activity %s stores risk %q but scores %q", a.ID, a.RiskLevel, expected),
		})
	}
	return out, nil
}

func checkDuplicateActivity(ctx context.Context, gw store.Gateway, tenantID string, cc *CheckContext) ([]Violation, error) {
	if cc == nil || cc.Candidate == nil || cc.Candidate.Name == "" {
		return nil, nil
	}
	deleted := models.ActivityDeleted
	existing, err := gw.ListActivities(ctx, tenantID, store.ActivityFilter{StatusNot: &deleted})
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	// Listing is creation-time ascending, so the first match is the oldest
	// record and becomes the merge survivor.
	for _, a := range existing {
		if a.NameMatches(cc.Candidate.Name) {
			return []Violation{{
				Kind:      KindDuplicateActivity,
				RelatedID: a.ID,
				Candidate: cc.Candidate,
				Detail:    fmt.Sprintf("new activity %q duplicates existing %q (%s)", cc.Candidate.Name, a.Name, a.ID),
			}}, nil
		}
	}
	return nil, nil
}

func checkPreCreateHighRisk(_ context.Context, _ store.Gateway, _ string, cc *CheckContext) ([]Violation, error) {
	if cc == nil || cc.Candidate == nil {
		return nil, nil
	}
	score := risk.Score(cc.Candidate)
	if risk.Level(score) != models.RiskHigh {
		return nil, nil
	}
	return []Violation{{
		Kind:      KindPreCreateHighRiskNeedsAssessment,
		Candidate: cc.Candidate,
		Detail:    fmt.Sprintf("new activity %q pre-scores %d (HIGH) and needs an assessment", cc.Candidate.Name, score),
	}}, nil
}

func checkRiskAffectingChange(ctx context.Context, gw store.Gateway, tenantID string, cc *CheckContext) ([]Violation, error) {
	if cc == nil || cc.Candidate == nil || cc.Candidate.ID == "" {
		return nil, nil
	}
	touched := false
	for _, f := range cc.ChangedFields {
		if riskAffectingFields[f] {
			touched = true
			break
		}
	}
	if !touched {
		return nil, nil
	}

	archived := models.AssessmentArchived
	n, err := gw.CountAssessments(ctx, tenantID, store.AssessmentFilter{
		ActivityID: &cc.Candidate.ID,
		StatusNot:  &archived,
	})
	if err != nil {
		return nil, fmt.Errorf("count assessments for %s: %w", cc.Candidate.ID, err)
	}
	if n == 0 {
		return nil, nil
	}
	return []Violation{{
		Kind:      KindRiskAffectingChangeNeedsReassessment,
		TargetID:  cc.Candidate.ID,
		Candidate: cc.Candidate,
		Detail:    fmt.Sprintf("update touches risk-affecting fields %v on activity %s with live assessments", cc.ChangedFields, cc.Candidate.ID),
	}}, nil
}

func checkPendingDependencies(ctx context.Context, gw store.Gateway, tenantID string, cc *CheckContext) ([]Violation, error) {
	if cc == nil || cc.Candidate == nil || cc.Candidate.ID == "" {
		return nil, nil
	}
	id := cc.Candidate.ID

	archived := models.AssessmentArchived
	openAssessments, err := gw.CountAssessments(ctx, tenantID, store.AssessmentFilter{
		ActivityID: &id,
		StatusNot:  &archived,
	})
	if err != nil {
		return nil, fmt.Errorf("count assessments for %s: %w", id, err)
	}

	pending := models.TaskPending
	pendingTasks, err := gw.CountTasks(ctx, tenantID, store.TaskFilter{
		ActivityID: &id,
		Status:     &pending,
	})
	if err != nil {
		return nil, fmt.Errorf("count tasks for %s: %w", id, err)
	}

	if openAssessments == 0 && pendingTasks == 0 {
		return nil, nil
	}
	return []Violation{{
		Kind:      KindPendingDependenciesBeforeDelete,
		TargetID:  id,
		Candidate: cc.Candidate,
		Detail:    fmt.Sprintf("activity %s still has %d open assessment(s) and %d pending task(s)", id, openAssessments, pendingTasks),
	}}, nil
}
