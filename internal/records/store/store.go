package store

import (
	"context"
	"time"

	"concordia/internal/records/models"
	"concordia/internal/sentinel"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = sentinel.ErrNotFound

// ActivityFilter narrows processing-activity reads. All predicates are ANDed;
// zero values mean "no constraint". Results are always ordered by creation
// time ascending so rule evaluation stays deterministic.
type ActivityFilter struct {
	Status        *models.ActivityStatus
	StatusNot     *models.ActivityStatus
	RiskIn        []models.RiskLevel
	NameContains  string // case-insensitive substring match
	CreatedBefore *time.Time
	Limit         int64
}

// AssessmentFilter narrows impact-assessment reads.
type AssessmentFilter struct {
	ActivityID      *string // empty string matches unlinked assessments
	Status          *models.AssessmentStatus
	StatusNot       *models.AssessmentStatus
	EngineGenerated *bool
	Limit           int64
}

// TaskFilter narrows compliance-task reads.
type TaskFilter struct {
	ActivityID          *string
	Status              *models.TaskStatus
	StatusNot           *models.TaskStatus
	DescriptionContains string
	Limit               int64
}

// ReportFilter narrows report reads.
type ReportFilter struct {
	Kind  *models.ReportKind
	Limit int64
}

// ActivityUpdate is a partial update; nil fields are left untouched.
type ActivityUpdate struct {
	Name                   *string
	Purpose                *string
	RiskLevel              *models.RiskLevel
	Status                 *models.ActivityStatus
	SensitiveData          *bool
	InternationalTransfers *bool
	LegalBasis             *string
	DataCategories         *[]string
	Recipients             *[]string
	DataVolume             *string
	PreviousRiskLevel      *models.RiskLevel
	RiskAdjustedAt         *time.Time
}

// AssessmentUpdate is a partial update; nil fields are left untouched.
type AssessmentUpdate struct {
	ActivityID   *string
	Status       *models.AssessmentStatus
	Content      *string
	NeedsReview  *bool
	ReviewReason *string
}

// TaskUpdate is a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Status      *models.TaskStatus
	Description *string
	Reason      *string
}

// Gateway is the entity store contract the engine consumes. Four collections,
// each scoped by tenant id: filtered read, insert, partial update by id, and
// count. The backing store is assumed eventually consistent at worst; the
// engine compensates with idempotent corrective actions, not transactions.
//
// Error Contract:
// - Get/Update methods return ErrNotFound when the record does not exist
//   within the given tenant
// - Other methods return nil on success or wrapped errors on failure
type Gateway interface {
	// Processing activities.
	GetActivity(ctx context.Context, tenantID, id string) (*models.ProcessingActivity, error)
	ListActivities(ctx context.Context, tenantID string, f ActivityFilter) ([]*models.ProcessingActivity, error)
	InsertActivity(ctx context.Context, activity *models.ProcessingActivity) error
	UpdateActivity(ctx context.Context, tenantID, id string, upd ActivityUpdate) error
	CountActivities(ctx context.Context, tenantID string, f ActivityFilter) (int64, error)

	// Impact assessments.
	GetAssessment(ctx context.Context, tenantID, id string) (*models.ImpactAssessment, error)
	ListAssessments(ctx context.Context, tenantID string, f AssessmentFilter) ([]*models.ImpactAssessment, error)
	InsertAssessment(ctx context.Context, assessment *models.ImpactAssessment) error
	UpdateAssessment(ctx context.Context, tenantID, id string, upd AssessmentUpdate) error
	CountAssessments(ctx context.Context, tenantID string, f AssessmentFilter) (int64, error)

	// Compliance tasks.
	GetTask(ctx context.Context, tenantID, id string) (*models.ComplianceTask, error)
	ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]*models.ComplianceTask, error)
	InsertTask(ctx context.Context, task *models.ComplianceTask) error
	UpdateTask(ctx context.Context, tenantID, id string, upd TaskUpdate) error
	CountTasks(ctx context.Context, tenantID string, f TaskFilter) (int64, error)

	// Reports: append-only, never updated.
	ListReports(ctx context.Context, tenantID string, f ReportFilter) ([]*models.ReportRecord, error)
	InsertReport(ctx context.Context, report *models.ReportRecord) error
	CountReports(ctx context.Context, tenantID string, f ReportFilter) (int64, error)
}
