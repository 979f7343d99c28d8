package models

// RiskLevel classifies how dangerous a processing activity is. An empty value
// means the level has not been evaluated yet.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// IsValid reports whether the level is one of the known values.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RequiresAssessment reports whether activities at this level must carry an
// open impact assessment.
func (r RiskLevel) RequiresAssessment() bool {
	return r == RiskHigh || r == RiskCritical
}

// ActivityStatus tracks the lifecycle of a processing activity.
// Activities are soft-deleted, never physically removed.
type ActivityStatus string

const (
	ActivityActive  ActivityStatus = "ACTIVE"
	ActivityDeleted ActivityStatus = "DELETED"
)

// AssessmentStatus tracks the lifecycle of an impact assessment.
type AssessmentStatus string

const (
	AssessmentDraft         AssessmentStatus = "DRAFT"
	AssessmentPendingReview AssessmentStatus = "PENDING_REVIEW"
	AssessmentApproved      AssessmentStatus = "APPROVED"
	AssessmentArchived      AssessmentStatus = "ARCHIVED"
)

// Open reports whether the assessment still counts towards the activity's
// coverage, i.e. anything that is not archived.
func (s AssessmentStatus) Open() bool {
	return s != AssessmentArchived
}

// TaskStatus tracks the lifecycle of a compliance task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskObsolete  TaskStatus = "obsolete"
	TaskCancelled TaskStatus = "cancelled"
)

// Active reports whether the task still represents outstanding or done work,
// as opposed to having been retired by the engine or a user.
func (s TaskStatus) Active() bool {
	return s == TaskPending || s == TaskCompleted
}

// TaskPriority orders compliance tasks for reviewers.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Data category values carried over from the source system. The risk scorer
// matches on these exact strings.
const (
	CategoryBiometric = "biometricos"
	CategoryHealth    = "salud"
)

// VolumeMassive is the declared-volume value that raises the risk score.
const VolumeMassive = "massive"
