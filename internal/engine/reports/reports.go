// Package reports persists what the engine did: audit snapshots, correction
// logs, and last-resort stabilization records. Everything here is append-only.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"concordia/internal/records/models"
	"concordia/internal/records/store"
)

// Correction outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// CorrectionEntry records one corrective-action attempt.
type CorrectionEntry struct {
	RuleID   string
	Action   string
	TargetID string
	Outcome  string
	Error    string
}

// Store writes engine output through the entity gateway.
type Store struct {
	gw     store.Gateway
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore builds a report store over the gateway.
func NewStore(gw store.Gateway, opts ...Option) *Store {
	s := &Store{gw: gw, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PersistAudit writes an audit report snapshot.
func (s *Store) PersistAudit(ctx context.Context, report *models.AuditReport) error {
	if report.ID == "" {
		report.ID = fmt.Sprintf("report_%s", uuid.New().String())
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	record := &models.ReportRecord{
		ID:        report.ID,
		TenantID:  report.TenantID,
		Kind:      models.ReportAudit,
		Timestamp: report.Timestamp,
		Audit:     report,
	}
	if err := s.gw.InsertReport(ctx, record); err != nil {
		return fmt.Errorf("persist audit report: %w", err)
	}
	return nil
}

// LogCorrection records one corrective-action attempt. A failed write here
// must not break the correction batch, so the error is logged and swallowed.
func (s *Store) LogCorrection(ctx context.Context, tenantID string, entry CorrectionEntry) {
	record := &models.ReportRecord{
		ID:        fmt.Sprintf("report_%s", uuid.New().String()),
		TenantID:  tenantID,
		Kind:      models.ReportCorrectionLog,
		Timestamp: time.Now(),
		RuleID:    entry.RuleID,
		Action:    entry.Action,
		TargetID:  entry.TargetID,
		Outcome:   entry.Outcome,
		Error:     entry.Error,
	}
	if err := s.gw.InsertReport(ctx, record); err != nil {
		s.logger.Error("correction_log_write_failed",
			"tenant_id", tenantID,
			"action", entry.Action,
			"target_id", entry.TargetID,
			"error", err,
		)
	}
}

// Stabilize writes a last-resort record documenting an unresolved condition
// without claiming it was fixed. Returns an error only when even this write
// fails, since that leaves no durable trace at all.
func (s *Store) Stabilize(ctx context.Context, tenantID, detail string, cause error) error {
	record := &models.ReportRecord{
		ID:        fmt.Sprintf("report_%s", uuid.New().String()),
		TenantID:  tenantID,
		Kind:      models.ReportStabilization,
		Timestamp: time.Now(),
		Detail:    detail,
	}
	if cause != nil {
		record.Error = cause.Error()
	}
	if err := s.gw.InsertReport(ctx, record); err != nil {
		return fmt.Errorf("persist stabilization record: %w", err)
	}
	return nil
}

// Counts snapshots the four collection sizes for a tenant. The reads are
// independent and read-only, so they fan out concurrently.
func (s *Store) Counts(ctx context.Context, tenantID string) (models.RecordCounts, error) {
	var counts models.RecordCounts
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.gw.CountActivities(ctx, tenantID, store.ActivityFilter{})
		counts.Activities = n
		return err
	})
	g.Go(func() error {
		n, err := s.gw.CountAssessments(ctx, tenantID, store.AssessmentFilter{})
		counts.Assessments = n
		return err
	})
	g.Go(func() error {
		n, err := s.gw.CountTasks(ctx, tenantID, store.TaskFilter{})
		counts.Tasks = n
		return err
	})
	g.Go(func() error {
		n, err := s.gw.CountReports(ctx, tenantID, store.ReportFilter{})
		counts.Reports = n
		return err
	})

	if err := g.Wait(); err != nil {
		return models.RecordCounts{}, fmt.Errorf("count records: %w", err)
	}
	return counts, nil
}
