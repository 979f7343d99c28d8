package models

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ProcessingActivity documents one use of personal data by the organization
// (the source system calls this a RAT). Risk level and the sensitivity flags
// drive most consistency rules. The engine itself mutates RiskLevel when the
// stored value disagrees with the recomputed score; the previous value is
// kept in PreviousRiskLevel for traceability.
type ProcessingActivity struct {
	ID                     string         `bson:"_id"            json:"id"`
	TenantID               string         `bson:"tenant_id"      json:"tenant_id"`
	Name                   string         `bson:"name"           json:"name"`
	Purpose                string         `bson:"purpose"        json:"purpose"`
	RiskLevel              RiskLevel      `bson:"risk_level"     json:"risk_level"`
	Status                 ActivityStatus `bson:"status"         json:"status"`
	SensitiveData          bool           `bson:"sensitive_data" json:"sensitive_data"`
	InternationalTransfers bool           `bson:"international_transfers" json:"international_transfers"`
	LegalBasis             string         `bson:"legal_basis"     json:"legal_basis"`
	DataCategories         []string       `bson:"data_categories" json:"data_categories"`
	Recipients             []string       `bson:"recipients"      json:"recipients"`
	DataVolume             string         `bson:"data_volume"     json:"data_volume"`
	PreviousRiskLevel      RiskLevel      `bson:"previous_risk_level,omitempty" json:"previous_risk_level,omitempty"`
	RiskAdjustedAt         *time.Time     `bson:"risk_adjusted_at,omitempty"    json:"risk_adjusted_at,omitempty"`
	CreatedAt              time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `bson:"updated_at" json:"updated_at"`
}

// NameMatches reports whether the activity's name approximately matches the
// candidate: case- and accent-insensitive substring in either direction,
// ignoring surrounding whitespace. Used for duplicate detection.
func (a *ProcessingActivity) NameMatches(candidate string) bool {
	this := normalizeName(a.Name)
	other := normalizeName(candidate)
	if this == "" || other == "" {
		return false
	}
	return strings.Contains(this, other) || strings.Contains(other, this)
}

// diacriticFold decomposes runes and drops their combining marks, so
// "gestión" normalizes to "gestion".
var diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeName(s string) string {
	folded, _, err := transform.String(diacriticFold, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// HasCategory reports whether the activity declares the given data category.
func (a *ProcessingActivity) HasCategory(category string) bool {
	for _, c := range a.DataCategories {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}

// ImpactAssessment is a risk evaluation document for a high-risk activity
// (EIPD in the source system). ActivityID stays empty for assessments created
// ahead of their activity and is linked once the activity id is known.
// Assessments are archived, never deleted.
type ImpactAssessment struct {
	ID              string           `bson:"_id"        json:"id"`
	TenantID        string           `bson:"tenant_id"  json:"tenant_id"`
	ActivityID      string           `bson:"activity_id,omitempty" json:"activity_id,omitempty"`
	Status          AssessmentStatus `bson:"status"     json:"status"`
	Content         string           `bson:"content"    json:"content"`
	EngineGenerated bool             `bson:"engine_generated" json:"engine_generated"`
	NeedsReview     bool             `bson:"needs_review,omitempty"  json:"needs_review,omitempty"`
	ReviewReason    string           `bson:"review_reason,omitempty" json:"review_reason,omitempty"`
	CreatedAt       time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `bson:"updated_at" json:"updated_at"`
}

// ComplianceTask is a tracked work item, typically requiring review or
// approval by a compliance officer. A task is linked to an assessment by
// convention: its description contains the assessment id.
type ComplianceTask struct {
	ID          string       `bson:"_id"        json:"id"`
	TenantID    string       `bson:"tenant_id"  json:"tenant_id"`
	ActivityID  string       `bson:"activity_id,omitempty" json:"activity_id,omitempty"`
	Description string       `bson:"description" json:"description"`
	Status      TaskStatus   `bson:"status"      json:"status"`
	Priority    TaskPriority `bson:"priority"    json:"priority"`
	Reason      string       `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

// References reports whether the task's description mentions the given
// assessment id.
func (t *ComplianceTask) References(assessmentID string) bool {
	return assessmentID != "" && strings.Contains(t.Description, assessmentID)
}
