package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"concordia/internal/engine/rules"
	"concordia/internal/records/models"
	"concordia/internal/records/store"
)

const testTenant = "tenant-a"

type ActionsSuite struct {
	suite.Suite
	ctx context.Context
	gw  *store.InMemoryGateway
}

func (s *ActionsSuite) SetupTest() {
	s.ctx = context.Background()
	s.gw = store.NewInMemoryGateway()
}

func TestActionsSuite(t *testing.T) {
	suite.Run(t, new(ActionsSuite))
}

func (s *ActionsSuite) seedActivity(id string, mutate func(*models.ProcessingActivity)) *models.ProcessingActivity {
	now := time.Now()
	a := &models.ProcessingActivity{
		ID:        id,
		TenantID:  testTenant,
		Name:      "Actividad " + id,
		Purpose:   "Gestión interna",
		RiskLevel: models.RiskLow,
		Status:    models.ActivityActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(a)
	}
	s.Require().NoError(s.gw.InsertActivity(s.ctx, a))
	return a
}

func (s *ActionsSuite) TestCreateAssessmentLinksDraftToActivity() {
	s.seedActivity("rat_1", func(a *models.ProcessingActivity) { a.RiskLevel = models.RiskHigh })
	v := rules.Violation{Kind: rules.KindHighRiskMissingAssessment, TenantID: testTenant, TargetID: "rat_1"}

	outcome, err := createAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.Equal(TagAssessmentCreated, outcome.Tag)
	s.False(outcome.NoOp)

	created, err := s.gw.GetAssessment(s.ctx, testTenant, outcome.TargetID)
	s.Require().NoError(err)
	s.Equal("rat_1", created.ActivityID)
	s.Equal(models.AssessmentDraft, created.Status)
	s.True(created.EngineGenerated)
	s.Contains(created.Content, "Actividad rat_1")
}

func (s *ActionsSuite) TestCreateAssessmentIsIdempotent() {
	s.seedActivity("rat_1", func(a *models.ProcessingActivity) { a.RiskLevel = models.RiskHigh })
	v := rules.Violation{Kind: rules.KindHighRiskMissingAssessment, TenantID: testTenant, TargetID: "rat_1"}

	first, err := createAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	second, err := createAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)

	s.False(first.NoOp)
	s.True(second.NoOp)

	n, err := s.gw.CountAssessments(s.ctx, testTenant, store.AssessmentFilter{})
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *ActionsSuite) TestCreateAssessmentSoftRequiresActivity() {
	v := rules.Violation{Kind: rules.KindHighRiskMissingAssessment, TenantID: testTenant, TargetID: "rat_missing"}

	_, err := createAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Error(err)
}

func (s *ActionsSuite) TestCreateAssessmentAggressiveUsesPlaceholders() {
	v := rules.Violation{Kind: rules.KindHighRiskMissingAssessment, TenantID: testTenant, TargetID: "rat_missing"}

	outcome, err := createAssessment{}.Apply(s.ctx, s.gw, v, ModeAggressive)

	s.Require().NoError(err)
	created, err := s.gw.GetAssessment(s.ctx, testTenant, outcome.TargetID)
	s.Require().NoError(err)
	s.Equal("rat_missing", created.ActivityID)
	s.Contains(created.Content, PlaceholderPurpose)
}

func (s *ActionsSuite) TestCreateApprovalTaskEmbedsAssessmentID() {
	s.seedActivity("rat_1", nil)
	now := time.Now()
	s.Require().NoError(s.gw.InsertAssessment(s.ctx, &models.ImpactAssessment{
		ID: "eipd_1", TenantID: testTenant, ActivityID: "rat_1",
		Status: models.AssessmentApproved, CreatedAt: now, UpdatedAt: now,
	}))
	v := rules.Violation{Kind: rules.KindApprovedAssessmentMissingApprovalTask, TenantID: testTenant, TargetID: "eipd_1"}

	outcome, err := createApprovalTask{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	task, err := s.gw.GetTask(s.ctx, testTenant, outcome.TargetID)
	s.Require().NoError(err)
	s.Equal(models.TaskCompleted, task.Status)
	s.Equal("rat_1", task.ActivityID)
	s.True(task.References("eipd_1"))

	// Second dispatch finds the completed task and does nothing.
	second, err := createApprovalTask{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	s.True(second.NoOp)
}

func (s *ActionsSuite) TestObsoleteTaskSetsReason() {
	now := time.Now()
	s.Require().NoError(s.gw.InsertTask(s.ctx, &models.ComplianceTask{
		ID: "task_1", TenantID: testTenant, ActivityID: "rat_gone",
		Description: "Revisión", Status: models.TaskPending,
		CreatedAt: now, UpdatedAt: now,
	}))
	v := rules.Violation{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_1", RelatedID: "rat_gone"}

	outcome, err := obsoleteTask{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.Equal(TagTaskObsoleted, outcome.Tag)

	task, err := s.gw.GetTask(s.ctx, testTenant, "task_1")
	s.Require().NoError(err)
	s.Equal(models.TaskObsolete, task.Status)
	s.Equal(ReasonOrphanedReference, task.Reason)

	second, err := obsoleteTask{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	s.True(second.NoOp)
}

func (s *ActionsSuite) TestMergeDuplicateUnionsListsAndFillsGaps() {
	s.seedActivity("rat_1", func(a *models.ProcessingActivity) {
		a.Name = "Gestión de Nómina"
		a.Purpose = ""
		a.DataCategories = []string{"nominas"}
		a.Recipients = []string{"asesoria"}
	})
	candidate := &models.ProcessingActivity{
		TenantID:               testTenant,
		Name:                   "gestion de nomina",
		Purpose:                "Pago de salarios",
		DataCategories:         []string{"nominas", "bancarios"},
		Recipients:             []string{"banco"},
		InternationalTransfers: true,
	}
	v := rules.Violation{
		Kind: rules.KindDuplicateActivity, TenantID: testTenant,
		RelatedID: "rat_1", Candidate: candidate,
	}

	outcome, err := mergeDuplicate{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.Equal("rat_1", outcome.MergedIntoID)
	s.False(outcome.NoOp)

	merged, err := s.gw.GetActivity(s.ctx, testTenant, "rat_1")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"nominas", "bancarios"}, merged.DataCategories)
	s.ElementsMatch([]string{"asesoria", "banco"}, merged.Recipients)
	s.Equal("Pago de salarios", merged.Purpose)
	s.True(merged.InternationalTransfers)
	// The survivor's name is kept, not overwritten by the candidate's.
	s.Equal("Gestión de Nómina", merged.Name)
}

func (s *ActionsSuite) TestMergeDuplicateWithNothingNewIsNoOp() {
	s.seedActivity("rat_1", func(a *models.ProcessingActivity) {
		a.DataCategories = []string{"nominas"}
	})
	v := rules.Violation{
		Kind: rules.KindDuplicateActivity, TenantID: testTenant, RelatedID: "rat_1",
		Candidate: &models.ProcessingActivity{TenantID: testTenant, Name: "Actividad rat_1", DataCategories: []string{"nominas"}},
	}

	outcome, err := mergeDuplicate{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.True(outcome.NoOp)
	s.Equal("rat_1", outcome.MergedIntoID)
}

func (s *ActionsSuite) TestPreCreateAssessmentStaysUnlinked() {
	candidate := &models.ProcessingActivity{
		TenantID:       testTenant,
		Name:           "Control biométrico",
		Purpose:        "Control de acceso",
		DataCategories: []string{models.CategoryBiometric, models.CategoryHealth},
	}
	v := rules.Violation{Kind: rules.KindPreCreateHighRiskNeedsAssessment, TenantID: testTenant, Candidate: candidate}

	outcome, err := preCreateAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.NotEmpty(outcome.PendingAssessmentID)

	created, err := s.gw.GetAssessment(s.ctx, testTenant, outcome.PendingAssessmentID)
	s.Require().NoError(err)
	s.Empty(created.ActivityID)
	s.True(created.EngineGenerated)
	s.Contains(created.Content, `Actividad propuesta: "Control biométrico"`)
}

func (s *ActionsSuite) TestPreCreateAssessmentReusesExistingDraft() {
	candidate := &models.ProcessingActivity{TenantID: testTenant, Name: "Control biométrico"}
	v := rules.Violation{Kind: rules.KindPreCreateHighRiskNeedsAssessment, TenantID: testTenant, Candidate: candidate}

	first, err := preCreateAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	second, err := preCreateAssessment{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)

	s.True(second.NoOp)
	s.Equal(first.PendingAssessmentID, second.PendingAssessmentID)

	n, err := s.gw.CountAssessments(s.ctx, testTenant, store.AssessmentFilter{})
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *ActionsSuite) TestFlagReassessmentMarksLiveAssessments() {
	s.seedActivity("rat_1", nil)
	now := time.Now()
	s.Require().NoError(s.gw.InsertAssessment(s.ctx, &models.ImpactAssessment{
		ID: "eipd_1", TenantID: testTenant, ActivityID: "rat_1",
		Status: models.AssessmentApproved, CreatedAt: now, UpdatedAt: now,
	}))
	s.Require().NoError(s.gw.InsertAssessment(s.ctx, &models.ImpactAssessment{
		ID: "eipd_2", TenantID: testTenant, ActivityID: "rat_1",
		Status: models.AssessmentArchived, CreatedAt: now, UpdatedAt: now,
	}))
	v := rules.Violation{Kind: rules.KindRiskAffectingChangeNeedsReassessment, TenantID: testTenant, TargetID: "rat_1"}

	outcome, err := flagReassessment{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.False(outcome.NoOp)

	flagged, err := s.gw.GetAssessment(s.ctx, testTenant, "eipd_1")
	s.Require().NoError(err)
	s.True(flagged.NeedsReview)
	s.Equal(ReviewReasonRequired, flagged.ReviewReason)
	// The approval history is untouched.
	s.Equal(models.AssessmentApproved, flagged.Status)

	archived, err := s.gw.GetAssessment(s.ctx, testTenant, "eipd_2")
	s.Require().NoError(err)
	s.False(archived.NeedsReview)

	second, err := flagReassessment{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	s.True(second.NoOp)
}

func (s *ActionsSuite) TestResolveDependenciesArchivesAndCancels() {
	s.seedActivity("rat_1", nil)
	now := time.Now()
	s.Require().NoError(s.gw.InsertAssessment(s.ctx, &models.ImpactAssessment{
		ID: "eipd_1", TenantID: testTenant, ActivityID: "rat_1",
		Status: models.AssessmentDraft, CreatedAt: now, UpdatedAt: now,
	}))
	s.Require().NoError(s.gw.InsertTask(s.ctx, &models.ComplianceTask{
		ID: "task_1", TenantID: testTenant, ActivityID: "rat_1",
		Description: "Revisión", Status: models.TaskPending,
		CreatedAt: now, UpdatedAt: now,
	}))
	s.Require().NoError(s.gw.InsertTask(s.ctx, &models.ComplianceTask{
		ID: "task_2", TenantID: testTenant, ActivityID: "rat_1",
		Description: "Hecha", Status: models.TaskCompleted,
		CreatedAt: now, UpdatedAt: now,
	}))
	v := rules.Violation{Kind: rules.KindPendingDependenciesBeforeDelete, TenantID: testTenant, TargetID: "rat_1"}

	outcome, err := resolveDependencies{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.Equal(TagDependenciesResolved, outcome.Tag)

	assessment, err := s.gw.GetAssessment(s.ctx, testTenant, "eipd_1")
	s.Require().NoError(err)
	s.Equal(models.AssessmentArchived, assessment.Status)

	cancelled, err := s.gw.GetTask(s.ctx, testTenant, "task_1")
	s.Require().NoError(err)
	s.Equal(models.TaskCancelled, cancelled.Status)
	s.Equal(ReasonActivityDeleted, cancelled.Reason)

	// Completed tasks are left alone.
	done, err := s.gw.GetTask(s.ctx, testTenant, "task_2")
	s.Require().NoError(err)
	s.Equal(models.TaskCompleted, done.Status)

	second, err := resolveDependencies{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	s.True(second.NoOp)
}

func (s *ActionsSuite) TestRepairRiskLevelKeepsPreviousValue() {
	s.seedActivity("rat_1", func(a *models.ProcessingActivity) {
		a.RiskLevel = models.RiskLow
		a.DataCategories = []string{models.CategoryBiometric, models.CategoryHealth}
	})
	v := rules.Violation{
		Kind: rules.KindInconsistentRiskLevel, TenantID: testTenant,
		TargetID: "rat_1", ExpectedRisk: models.RiskHigh,
	}

	outcome, err := repairRiskLevel{}.Apply(s.ctx, s.gw, v, ModeSoft)

	s.Require().NoError(err)
	s.Equal(TagRiskLevelRepaired, outcome.Tag)

	repaired, err := s.gw.GetActivity(s.ctx, testTenant, "rat_1")
	s.Require().NoError(err)
	s.Equal(models.RiskHigh, repaired.RiskLevel)
	s.Equal(models.RiskLow, repaired.PreviousRiskLevel)
	s.NotNil(repaired.RiskAdjustedAt)

	second, err := repairRiskLevel{}.Apply(s.ctx, s.gw, v, ModeSoft)
	s.Require().NoError(err)
	s.True(second.NoOp)
}

func (s *ActionsSuite) TestDefaultActionsCoverEveryDispatchableKind() {
	kinds := make(map[rules.Kind]bool)
	for _, a := range DefaultActions() {
		kinds[a.Kind()] = true
	}
	for _, kind := range []rules.Kind{
		rules.KindHighRiskMissingAssessment,
		rules.KindApprovedAssessmentMissingApprovalTask,
		rules.KindOrphanTask,
		rules.KindDuplicateActivity,
		rules.KindPreCreateHighRiskNeedsAssessment,
		rules.KindRiskAffectingChangeNeedsReassessment,
		rules.KindPendingDependenciesBeforeDelete,
		rules.KindInconsistentRiskLevel,
	} {
		s.True(kinds[kind], "missing action for %s", kind)
	}
}
