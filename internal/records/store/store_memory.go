package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"concordia/internal/records/models"
	"concordia/internal/sentinel"
)

// InMemoryGateway keeps all four collections in memory. It backs tests and
// local development; the engine treats it exactly like the Mongo gateway.
// All reads return defensive copies so callers cannot mutate stored state.
type InMemoryGateway struct {
	mu          sync.RWMutex
	activities  map[string]*models.ProcessingActivity
	assessments map[string]*models.ImpactAssessment
	tasks       map[string]*models.ComplianceTask
	reports     map[string]*models.ReportRecord
}

// NewInMemoryGateway constructs an empty in-memory gateway.
func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{
		activities:  make(map[string]*models.ProcessingActivity),
		assessments: make(map[string]*models.ImpactAssessment),
		tasks:       make(map[string]*models.ComplianceTask),
		reports:     make(map[string]*models.ReportRecord),
	}
}

func (g *InMemoryGateway) GetActivity(_ context.Context, tenantID, id string) (*models.ProcessingActivity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.activities[id]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (g *InMemoryGateway) ListActivities(_ context.Context, tenantID string, f ActivityFilter) ([]*models.ProcessingActivity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*models.ProcessingActivity
	for _, a := range g.activities {
		if a.TenantID != tenantID || !matchActivity(a, f) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (g *InMemoryGateway) InsertActivity(_ context.Context, activity *models.ProcessingActivity) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.activities[activity.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *activity
	g.activities[activity.ID] = &cp
	return nil
}

func (g *InMemoryGateway) UpdateActivity(_ context.Context, tenantID, id string, upd ActivityUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.activities[id]
	if !ok || a.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Purpose != nil {
		a.Purpose = *upd.Purpose
	}
	if upd.RiskLevel != nil {
		a.RiskLevel = *upd.RiskLevel
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.SensitiveData != nil {
		a.SensitiveData = *upd.SensitiveData
	}
	if upd.InternationalTransfers != nil {
		a.InternationalTransfers = *upd.InternationalTransfers
	}
	if upd.LegalBasis != nil {
		a.LegalBasis = *upd.LegalBasis
	}
	if upd.DataCategories != nil {
		a.DataCategories = append([]string(nil), (*upd.DataCategories)...)
	}
	if upd.Recipients != nil {
		a.Recipients = append([]string(nil), (*upd.Recipients)...)
	}
	if upd.DataVolume != nil {
		a.DataVolume = *upd.DataVolume
	}
	if upd.PreviousRiskLevel != nil {
		a.PreviousRiskLevel = *upd.PreviousRiskLevel
	}
	if upd.RiskAdjustedAt != nil {
		t := *upd.RiskAdjustedAt
		a.RiskAdjustedAt = &t
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (g *InMemoryGateway) CountActivities(ctx context.Context, tenantID string, f ActivityFilter) (int64, error) {
	list, err := g.ListActivities(ctx, tenantID, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (g *InMemoryGateway) GetAssessment(_ context.Context, tenantID, id string) (*models.ImpactAssessment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.assessments[id]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (g *InMemoryGateway) ListAssessments(_ context.Context, tenantID string, f AssessmentFilter) ([]*models.ImpactAssessment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*models.ImpactAssessment
	for _, a := range g.assessments {
		if a.TenantID != tenantID || !matchAssessment(a, f) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (g *InMemoryGateway) InsertAssessment(_ context.Context, assessment *models.ImpactAssessment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.assessments[assessment.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *assessment
	g.assessments[assessment.ID] = &cp
	return nil
}

func (g *InMemoryGateway) UpdateAssessment(_ context.Context, tenantID, id string, upd AssessmentUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.assessments[id]
	if !ok || a.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	if upd.ActivityID != nil {
		a.ActivityID = *upd.ActivityID
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.Content != nil {
		a.Content = *upd.Content
	}
	if upd.NeedsReview != nil {
		a.NeedsReview = *upd.NeedsReview
	}
	if upd.ReviewReason != nil {
		a.ReviewReason = *upd.ReviewReason
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (g *InMemoryGateway) CountAssessments(ctx context.Context, tenantID string, f AssessmentFilter) (int64, error) {
	list, err := g.ListAssessments(ctx, tenantID, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (g *InMemoryGateway) GetTask(_ context.Context, tenantID, id string) (*models.ComplianceTask, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok || t.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (g *InMemoryGateway) ListTasks(_ context.Context, tenantID string, f TaskFilter) ([]*models.ComplianceTask, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*models.ComplianceTask
	for _, t := range g.tasks {
		if t.TenantID != tenantID || !matchTask(t, f) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (g *InMemoryGateway) InsertTask(_ context.Context, task *models.ComplianceTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tasks[task.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *task
	g.tasks[task.ID] = &cp
	return nil
}

func (g *InMemoryGateway) UpdateTask(_ context.Context, tenantID, id string, upd TaskUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok || t.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Reason != nil {
		t.Reason = *upd.Reason
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (g *InMemoryGateway) CountTasks(ctx context.Context, tenantID string, f TaskFilter) (int64, error) {
	list, err := g.ListTasks(ctx, tenantID, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (g *InMemoryGateway) ListReports(_ context.Context, tenantID string, f ReportFilter) ([]*models.ReportRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*models.ReportRecord
	for _, r := range g.reports {
		if r.TenantID != tenantID {
			continue
		}
		if f.Kind != nil && r.Kind != *f.Kind {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (g *InMemoryGateway) InsertReport(_ context.Context, report *models.ReportRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.reports[report.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *report
	g.reports[report.ID] = &cp
	return nil
}

func (g *InMemoryGateway) CountReports(ctx context.Context, tenantID string, f ReportFilter) (int64, error) {
	list, err := g.ListReports(ctx, tenantID, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func matchActivity(a *models.ProcessingActivity, f ActivityFilter) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.StatusNot != nil && a.Status == *f.StatusNot {
		return false
	}
	if len(f.RiskIn) > 0 {
		found := false
		for _, r := range f.RiskIn {
			if a.RiskLevel == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.NameContains != "" &&
		!strings.Contains(strings.ToLower(a.Name), strings.ToLower(strings.TrimSpace(f.NameContains))) {
		return false
	}
	if f.CreatedBefore != nil && !a.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func matchAssessment(a *models.ImpactAssessment, f AssessmentFilter) bool {
	if f.ActivityID != nil && a.ActivityID != *f.ActivityID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.StatusNot != nil && a.Status == *f.StatusNot {
		return false
	}
	if f.EngineGenerated != nil && a.EngineGenerated != *f.EngineGenerated {
		return false
	}
	return true
}

func matchTask(t *models.ComplianceTask, f TaskFilter) bool {
	if f.ActivityID != nil && t.ActivityID != *f.ActivityID {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.StatusNot != nil && t.Status == *f.StatusNot {
		return false
	}
	if f.DescriptionContains != "" && !strings.Contains(t.Description, f.DescriptionContains) {
		return false
	}
	return true
}

// Interface guard.
var _ Gateway = (*InMemoryGateway)(nil)
