package models

import "time"

// ReportKind distinguishes the entry types stored in the reports collection.
type ReportKind string

const (
	ReportAudit         ReportKind = "audit"
	ReportCorrectionLog ReportKind = "correction_log"
	ReportStabilization ReportKind = "stabilization"
)

// AuditReport is an immutable snapshot of one consistency sweep. Field names
// are kept compatible with the dashboards that read them; do not rename.
type AuditReport struct {
	ID              string           `bson:"_id"       json:"id"`
	TenantID        string           `bson:"tenant_id" json:"tenant_id"`
	Timestamp       time.Time        `bson:"timestamp" json:"timestamp"`
	Summary         ReportSummary    `bson:"summary"   json:"summary"`
	Inconsistencies []Inconsistency  `bson:"inconsistencies" json:"inconsistencies"`
	Recommendations []Recommendation `bson:"recommendations" json:"recommendations"`
	RecordCounts    RecordCounts     `bson:"record_counts"   json:"record_counts"`
}

// ReportSummary holds the rule pass/fail counts for one sweep.
type ReportSummary struct {
	TotalRules           int `bson:"total_rules"  json:"total_rules"`
	PassedRules          int `bson:"passed_rules" json:"passed_rules"`
	FailedRules          int `bson:"failed_rules" json:"failed_rules"`
	TotalInconsistencies int `bson:"total_inconsistencies" json:"total_inconsistencies"`
}

// Inconsistency groups the issues one rule found.
type Inconsistency struct {
	RuleID          string   `bson:"rule_id"          json:"rule_id"`
	RuleDescription string   `bson:"rule_description" json:"rule_description"`
	Issues          []string `bson:"issues"           json:"issues"`
}

// Recommendation describes one corrective action the engine proposes or took.
// Priority reuses the task priority scale.
type Recommendation struct {
	Action     string `bson:"action"    json:"action"`
	TargetID   string `bson:"target_id" json:"target_id"`
	Priority   string `bson:"priority"  json:"priority"`
	CanAutoFix bool   `bson:"can_auto_fix" json:"can_auto_fix"`
}

// RecordCounts snapshots collection sizes at sweep time.
type RecordCounts struct {
	Activities  int64 `bson:"activities"  json:"activities"`
	Assessments int64 `bson:"assessments" json:"assessments"`
	Tasks       int64 `bson:"tasks"       json:"tasks"`
	Reports     int64 `bson:"reports"     json:"reports"`
}

// ReportRecord is the envelope persisted in the reports collection. Audit
// reports, correction logs and stabilization records share the collection
// and are told apart by Kind. All entries are append-only.
type ReportRecord struct {
	ID        string     `bson:"_id"       json:"id"`
	TenantID  string     `bson:"tenant_id" json:"tenant_id"`
	Kind      ReportKind `bson:"kind"      json:"kind"`
	Timestamp time.Time  `bson:"timestamp" json:"timestamp"`

	Audit *AuditReport `bson:"audit,omitempty" json:"audit,omitempty"`

	// Correction log fields.
	RuleID   string `bson:"rule_id,omitempty"   json:"rule_id,omitempty"`
	Action   string `bson:"action,omitempty"    json:"action,omitempty"`
	TargetID string `bson:"target_id,omitempty" json:"target_id,omitempty"`
	Outcome  string `bson:"outcome,omitempty"   json:"outcome,omitempty"`
	Error    string `bson:"error,omitempty"     json:"error,omitempty"`

	// Stabilization fields. Detail documents the unresolved condition without
	// claiming it was fixed.
	Detail string `bson:"detail,omitempty" json:"detail,omitempty"`
}
