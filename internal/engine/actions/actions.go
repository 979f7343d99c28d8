// Package actions maps each violation kind to the corrective write that
// resolves it. Every action is idempotent: both execution contexts may
// dispatch the same underlying condition more than once, so re-running an
// action on already-fixed state must be a no-op or a harmless overwrite.
package actions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"concordia/internal/engine/rules"
	"concordia/internal/records/models"
	"concordia/internal/records/store"
	pstrings "concordia/pkg/platform/strings"
)

// Mode selects how strictly an action checks its preconditions.
type Mode int

const (
	// ModeSoft is the normal pass: preconditions are honored and missing
	// required data aborts the individual correction.
	ModeSoft Mode = iota
	// ModeAggressive is the escalation pass: preconditions are relaxed and
	// missing required fields get placeholder defaults.
	ModeAggressive
)

// Correction tags surfaced in intercept results and correction logs.
const (
	TagAssessmentCreated    = "EIPD_AUTO_CREATED"
	TagApprovalTaskCreated  = "APPROVAL_TASK_CREATED"
	TagTaskObsoleted        = "TASK_OBSOLETED"
	TagDuplicateMerged      = "DUPLICATE_MERGED"
	TagReassessmentFlagged  = "REASSESSMENT_FLAGGED"
	TagDependenciesResolved = "DEPENDENCIES_RESOLVED"
	TagRiskLevelRepaired    = "RISK_LEVEL_REPAIRED"
)

// Reason and placeholder values carried over from the source system.
const (
	ReasonOrphanedReference = "ORPHANED_ACTIVITY_REFERENCE"
	ReasonActivityDeleted   = "ACTIVITY_DELETED"
	ReviewReasonRequired    = "REQUIERE_REVISION"
	PlaceholderPurpose      = "Operaciones internas"
)

// Outcome describes what one corrective action did.
type Outcome struct {
	Tag      string
	TargetID string
	Detail   string
	// MergedIntoID is set by the duplicate merge so the caller can skip
	// persisting the new record.
	MergedIntoID string
	// PendingAssessmentID is set by the pre-create assessment action so the
	// caller can link it once the activity id is known.
	PendingAssessmentID string
	// NoOp marks an idempotent skip: the state was already consistent.
	NoOp bool
}

// Action resolves one violation kind.
type Action interface {
	Kind() rules.Kind
	Apply(ctx context.Context, gw store.Gateway, v rules.Violation, mode Mode) (*Outcome, error)
}

// DefaultActions returns one action per dispatchable violation kind.
func DefaultActions() []Action {
	return []Action{
		createAssessment{},
		createApprovalTask{},
		obsoleteTask{},
		mergeDuplicate{},
		preCreateAssessment{},
		flagReassessment{},
		resolveDependencies{},
		repairRiskLevel{},
	}
}

func newAssessmentID() string { return fmt.Sprintf("eipd_%s", uuid.New().String()) }
func newTaskID() string       { return fmt.Sprintf("task_%s", uuid.New().String()) }

// createAssessment handles HighRiskMissingAssessment: create a DRAFT
// assessment linked to the activity, tagged as engine-generated. The "one
// open assessment per activity" check doubles as the idempotence guard.
type createAssessment struct{}

func (createAssessment) Kind() rules.Kind { return rules.KindHighRiskMissingAssessment }

func (createAssessment) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, mode Mode) (*Outcome, error) {
	archived := models.AssessmentArchived
	n, err := gw.CountAssessments(ctx, v.TenantID, store.AssessmentFilter{
		ActivityID: &v.TargetID,
		StatusNot:  &archived,
	})
	if err != nil {
		return nil, fmt.Errorf("check existing assessments: %w", err)
	}
	if n > 0 {
		return &Outcome{NoOp: true, TargetID: v.TargetID, Detail: "open assessment already exists"}, nil
	}

	activity, err := gw.GetActivity(ctx, v.TenantID, v.TargetID)
	if err != nil {
		if mode != ModeAggressive {
			return nil, fmt.Errorf("load activity %s: %w", v.TargetID, err)
		}
		// Aggressive pass creates the assessment even when the activity read
		// fails; the periodic sweep will reconcile the linkage later.
		activity = &models.ProcessingActivity{ID: v.TargetID, TenantID: v.TenantID}
	}

	purpose := activity.Purpose
	if purpose == "" && mode == ModeAggressive {
		purpose = PlaceholderPurpose
	}

	now := time.Now()
	assessment := &models.ImpactAssessment{
		ID:              newAssessmentID(),
		TenantID:        v.TenantID,
		ActivityID:      v.TargetID,
		Status:          models.AssessmentDraft,
		Content:         fmt.Sprintf("Evaluación de impacto generada automáticamente para %q. Finalidad: %s", activity.Name, purpose),
		EngineGenerated: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := gw.InsertAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}
	return &Outcome{
		Tag:      TagAssessmentCreated,
		TargetID: assessment.ID,
		Detail:   fmt.Sprintf("draft assessment %s created for activity %s", assessment.ID, v.TargetID),
	}, nil
}

// createApprovalTask handles ApprovedAssessmentMissingApprovalTask: create a
// completed task whose description embeds the assessment id.
type createApprovalTask struct{}

func (createApprovalTask) Kind() rules.Kind { return rules.KindApprovedAssessmentMissingApprovalTask }

func (createApprovalTask) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, mode Mode) (*Outcome, error) {
	completed := models.TaskCompleted
	n, err := gw.CountTasks(ctx, v.TenantID, store.TaskFilter{
		Status:              &completed,
		DescriptionContains: v.TargetID,
	})
	if err != nil {
		return nil, fmt.Errorf("check existing approval tasks: %w", err)
	}
	if n > 0 {
		return &Outcome{NoOp: true, TargetID: v.TargetID, Detail: "approval task already exists"}, nil
	}

	assessment, err := gw.GetAssessment(ctx, v.TenantID, v.TargetID)
	if err != nil && mode != ModeAggressive {
		return nil, fmt.Errorf("load assessment %s: %w", v.TargetID, err)
	}
	activityID := ""
	if assessment != nil {
		activityID = assessment.ActivityID
	}

	now := time.Now()
	task := &models.ComplianceTask{
		ID:          newTaskID(),
		TenantID:    v.TenantID,
		ActivityID:  activityID,
		Description: fmt.Sprintf("Aprobación de EIPD %s", v.TargetID),
		Status:      models.TaskCompleted,
		Priority:    models.PriorityHigh,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := gw.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("insert approval task: %w", err)
	}
	return &Outcome{
		Tag:      TagApprovalTaskCreated,
		TargetID: task.ID,
		Detail:   fmt.Sprintf("completed approval task %s created for assessment %s", task.ID, v.TargetID),
	}, nil
}

// obsoleteTask handles OrphanTask: transition the task to obsolete, tagging
// the reason.
type obsoleteTask struct{}

func (obsoleteTask) Kind() rules.Kind { return rules.KindOrphanTask }

func (obsoleteTask) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, _ Mode) (*Outcome, error) {
	task, err := gw.GetTask(ctx, v.TenantID, v.TargetID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", v.TargetID, err)
	}
	if task.Status == models.TaskObsolete || task.Status == models.TaskCancelled {
		return &Outcome{NoOp: true, TargetID: v.TargetID, Detail: "task already retired"}, nil
	}

	status := models.TaskObsolete
	reason := ReasonOrphanedReference
	if err := gw.UpdateTask(ctx, v.TenantID, v.TargetID, store.TaskUpdate{
		Status: &status,
		Reason: &reason,
	}); err != nil {
		return nil, fmt.Errorf("obsolete task %s: %w", v.TargetID, err)
	}
	return &Outcome{
		Tag:      TagTaskObsoleted,
		TargetID: v.TargetID,
		Detail:   fmt.Sprintf("task %s marked obsolete (%s)", v.TargetID, reason),
	}, nil
}

// mergeDuplicate handles DuplicateActivity: merge the new record's fields
// into the oldest matching existing record and discard the new one. List
// fields are unioned, scalar fields filled only where previously empty.
type mergeDuplicate struct{}

func (mergeDuplicate) Kind() rules.Kind { return rules.KindDuplicateActivity }

func (mergeDuplicate) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, _ Mode) (*Outcome, error) {
	if v.Candidate == nil || v.RelatedID == "" {
		return nil, fmt.Errorf("merge needs a candidate payload and a surviving record")
	}
	survivor, err := gw.GetActivity(ctx, v.TenantID, v.RelatedID)
	if err != nil {
		return nil, fmt.Errorf("load surviving activity %s: %w", v.RelatedID, err)
	}

	upd := store.ActivityUpdate{}
	changed := false

	if merged := pstrings.Union(survivor.DataCategories, v.Candidate.DataCategories); !slices.Equal(merged, survivor.DataCategories) {
		upd.DataCategories = &merged
		changed = true
	}
	if merged := pstrings.Union(survivor.Recipients, v.Candidate.Recipients); !slices.Equal(merged, survivor.Recipients) {
		upd.Recipients = &merged
		changed = true
	}
	if survivor.Purpose == "" && v.Candidate.Purpose != "" {
		upd.Purpose = &v.Candidate.Purpose
		changed = true
	}
	if survivor.LegalBasis == "" && v.Candidate.LegalBasis != "" {
		upd.LegalBasis = &v.Candidate.LegalBasis
		changed = true
	}
	if survivor.DataVolume == "" && v.Candidate.DataVolume != "" {
		upd.DataVolume = &v.Candidate.DataVolume
		changed = true
	}
	if !survivor.SensitiveData && v.Candidate.SensitiveData {
		t := true
		upd.SensitiveData = &t
		changed = true
	}
	if !survivor.InternationalTransfers && v.Candidate.InternationalTransfers {
		t := true
		upd.InternationalTransfers = &t
		changed = true
	}

	if changed {
		if err := gw.UpdateActivity(ctx, v.TenantID, v.RelatedID, upd); err != nil {
			return nil, fmt.Errorf("merge into activity %s: %w", v.RelatedID, err)
		}
	}
	return &Outcome{
		Tag:          TagDuplicateMerged,
		TargetID:     v.RelatedID,
		MergedIntoID: v.RelatedID,
		NoOp:         !changed,
		Detail:       fmt.Sprintf("candidate %q merged into existing activity %s", v.Candidate.Name, v.RelatedID),
	}, nil
}

// preCreateAssessment handles PreCreateHighRiskNeedsAssessment: create the
// DRAFT assessment before the activity exists. It stays unlinked until the
// caller reports the new activity id.
type preCreateAssessment struct{}

func (preCreateAssessment) Kind() rules.Kind { return rules.KindPreCreateHighRiskNeedsAssessment }

func (preCreateAssessment) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, mode Mode) (*Outcome, error) {
	if v.Candidate == nil {
		return nil, fmt.Errorf("pre-create assessment needs the candidate payload")
	}

	// Idempotence: a repeated intercept for the same payload reuses the
	// existing unlinked draft instead of stacking new ones.
	unlinked := ""
	engine := true
	existing, err := gw.ListAssessments(ctx, v.TenantID, store.AssessmentFilter{
		ActivityID:      &unlinked,
		EngineGenerated: &engine,
	})
	if err != nil {
		return nil, fmt.Errorf("check pending assessments: %w", err)
	}
	marker := fmt.Sprintf("Actividad propuesta: %q", v.Candidate.Name)
	for _, a := range existing {
		if a.Status == models.AssessmentDraft && a.Content != "" && containsMarker(a.Content, marker) {
			return &Outcome{
				Tag:                 TagAssessmentCreated,
				TargetID:            a.ID,
				PendingAssessmentID: a.ID,
				NoOp:                true,
				Detail:              fmt.Sprintf("pending assessment %s already exists for %q", a.ID, v.Candidate.Name),
			}, nil
		}
	}

	purpose := v.Candidate.Purpose
	if purpose == "" && mode == ModeAggressive {
		purpose = PlaceholderPurpose
	}

	now := time.Now()
	assessment := &models.ImpactAssessment{
		ID:              newAssessmentID(),
		TenantID:        v.TenantID,
		Status:          models.AssessmentDraft,
		Content:         fmt.Sprintf("Evaluación de impacto previa. %s. Finalidad: %s", marker, purpose),
		EngineGenerated: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := gw.InsertAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("insert pending assessment: %w", err)
	}
	return &Outcome{
		Tag:                 TagAssessmentCreated,
		TargetID:            assessment.ID,
		PendingAssessmentID: assessment.ID,
		Detail:              fmt.Sprintf("draft assessment %s created ahead of activity %q", assessment.ID, v.Candidate.Name),
	}, nil
}

// flagReassessment handles RiskAffectingChangeNeedsReassessment: flag every
// linked non-archived assessment as needing re-review without touching its
// approval history.
type flagReassessment struct{}

func (flagReassessment) Kind() rules.Kind { return rules.KindRiskAffectingChangeNeedsReassessment }

func (flagReassessment) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, _ Mode) (*Outcome, error) {
	archived := models.AssessmentArchived
	assessments, err := gw.ListAssessments(ctx, v.TenantID, store.AssessmentFilter{
		ActivityID: &v.TargetID,
		StatusNot:  &archived,
	})
	if err != nil {
		return nil, fmt.Errorf("list assessments for %s: %w", v.TargetID, err)
	}

	flagged := 0
	for _, a := range assessments {
		if a.NeedsReview {
			continue
		}
		needs := true
		reason := ReviewReasonRequired
		if err := gw.UpdateAssessment(ctx, v.TenantID, a.ID, store.AssessmentUpdate{
			NeedsReview:  &needs,
			ReviewReason: &reason,
		}); err != nil {
			return nil, fmt.Errorf("flag assessment %s: %w", a.ID, err)
		}
		flagged++
	}
	return &Outcome{
		Tag:      TagReassessmentFlagged,
		TargetID: v.TargetID,
		NoOp:     flagged == 0,
		Detail:   fmt.Sprintf("%d assessment(s) flagged %s for activity %s", flagged, ReviewReasonRequired, v.TargetID),
	}, nil
}

// resolveDependencies handles PendingDependenciesBeforeDelete: archive
// dependent assessments and cancel dependent pending tasks so the delete can
// proceed cleanly.
type resolveDependencies struct{}

func (resolveDependencies) Kind() rules.Kind { return rules.KindPendingDependenciesBeforeDelete }

func (resolveDependencies) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, _ Mode) (*Outcome, error) {
	archived := models.AssessmentArchived
	assessments, err := gw.ListAssessments(ctx, v.TenantID, store.AssessmentFilter{
		ActivityID: &v.TargetID,
		StatusNot:  &archived,
	})
	if err != nil {
		return nil, fmt.Errorf("list assessments for %s: %w", v.TargetID, err)
	}
	for _, a := range assessments {
		status := models.AssessmentArchived
		if err := gw.UpdateAssessment(ctx, v.TenantID, a.ID, store.AssessmentUpdate{Status: &status}); err != nil {
			return nil, fmt.Errorf("archive assessment %s: %w", a.ID, err)
		}
	}

	pending := models.TaskPending
	tasks, err := gw.ListTasks(ctx, v.TenantID, store.TaskFilter{
		ActivityID: &v.TargetID,
		Status:     &pending,
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", v.TargetID, err)
	}
	for _, t := range tasks {
		status := models.TaskCancelled
		reason := ReasonActivityDeleted
		if err := gw.UpdateTask(ctx, v.TenantID, t.ID, store.TaskUpdate{Status: &status, Reason: &reason}); err != nil {
			return nil, fmt.Errorf("cancel task %s: %w", t.ID, err)
		}
	}

	return &Outcome{
		Tag:      TagDependenciesResolved,
		TargetID: v.TargetID,
		NoOp:     len(assessments) == 0 && len(tasks) == 0,
		Detail:   fmt.Sprintf("%d assessment(s) archived, %d task(s) cancelled for activity %s", len(assessments), len(tasks), v.TargetID),
	}, nil
}

// repairRiskLevel handles InconsistentRiskLevel: overwrite the stored level
// with the recomputed value, recording the previous value for traceability.
type repairRiskLevel struct{}

func (repairRiskLevel) Kind() rules.Kind { return rules.KindInconsistentRiskLevel }

func (repairRiskLevel) Apply(ctx context.Context, gw store.Gateway, v rules.Violation, _ Mode) (*Outcome, error) {
	activity, err := gw.GetActivity(ctx, v.TenantID, v.TargetID)
	if err != nil {
		return nil, fmt.Errorf("load activity %s: %w", v.TargetID, err)
	}
	if activity.RiskLevel == v.ExpectedRisk {
		return &Outcome{NoOp: true, TargetID: v.TargetID, Detail: "risk level already repaired"}, nil
	}

	level := v.ExpectedRisk
	previous := activity.RiskLevel
	now := time.Now()
	if err := gw.UpdateActivity(ctx, v.TenantID, v.TargetID, store.ActivityUpdate{
		RiskLevel:         &level,
		PreviousRiskLevel: &previous,
		RiskAdjustedAt:    &now,
	}); err != nil {
		return nil, fmt.Errorf("repair risk level of %s: %w", v.TargetID, err)
	}
	return &Outcome{
		Tag:      TagRiskLevelRepaired,
		TargetID: v.TargetID,
		Detail:   fmt.Sprintf("activity %s risk level %q -> %q", v.TargetID, previous, level),
	}, nil
}

func containsMarker(content, marker string) bool {
	return marker != "" && strings.Contains(content, marker)
}
