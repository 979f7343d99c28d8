// Package service wires the detector, dispatcher and report store into the
// two entry points the application layer calls: the synchronous pre-action
// interceptor and the on-demand full audit. The periodic scheduler in
// workers/auditor drives the same RunFullAudit path.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"concordia/internal/engine/actions"
	"concordia/internal/engine/metrics"
	"concordia/internal/engine/reports"
	"concordia/internal/engine/rules"
	"concordia/internal/records/models"
	"concordia/internal/records/store"
	"concordia/internal/sentinel"
	dErrors "concordia/pkg/domain-errors"
	csync "concordia/pkg/platform/sync"
)

const defaultCycleTimeout = 2 * time.Minute

// InterceptRequest is the payload the application layer hands over right
// before persisting a mutation.
type InterceptRequest struct {
	Trigger  rules.Trigger `validate:"required"`
	TenantID string        `validate:"required"`
	// Activity is the candidate record: the full payload for creates, the
	// target id plus new values for updates, the target id for deletes.
	Activity *models.ProcessingActivity `validate:"required"`
	// ChangedFields lists the field names an update touches.
	ChangedFields []string
}

// InterceptResult reports what the engine corrected. Proceed is always true:
// consistency problems are healed inline, never surfaced as a rejection.
type InterceptResult struct {
	Proceed           bool     `json:"proceed"`
	CorrectionApplied bool     `json:"correction_applied"`
	Corrections       []string `json:"corrections,omitempty"`
	// MergedIntoID tells the caller its candidate was folded into an
	// existing record and must not be inserted.
	MergedIntoID string `json:"merged_into_id,omitempty"`
	// PendingAssessmentID names the draft assessment created ahead of the
	// activity; link it via LinkPendingAssessment once the id is known.
	PendingAssessmentID string `json:"pending_assessment_id,omitempty"`
	Message             string `json:"message"`
}

// Service is the consistency engine façade.
type Service struct {
	gw         store.Gateway
	detector   *rules.Detector
	dispatcher *actions.Dispatcher
	reports    *reports.Store
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	validate   *validator.Validate

	// locks serializes audit cycles per tenant within this process. The
	// guard is process-local; running several engine instances against the
	// same tenant remains out of scope.
	locks        *csync.KeyedMutex
	cycleTimeout time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCycleTimeout bounds one full audit cycle.
func WithCycleTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.cycleTimeout = timeout
		}
	}
}

// New builds the engine service.
func New(gw store.Gateway, detector *rules.Detector, dispatcher *actions.Dispatcher, reportStore *reports.Store, opts ...Option) *Service {
	s := &Service{
		gw:           gw,
		detector:     detector,
		dispatcher:   dispatcher,
		reports:      reportStore,
		logger:       slog.Default(),
		tracer:       otel.Tracer("concordia/engine"),
		validate:     validator.New(),
		locks:        csync.NewKeyedMutex(),
		cycleTimeout: defaultCycleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Intercept validates a pending mutation and heals anything it can, inline
// and synchronously. It always signals proceed, whatever happens internally;
// failures degrade to logged records, never to a rejection.
func (s *Service) Intercept(ctx context.Context, req InterceptRequest) *InterceptResult {
	ctx, span := s.tracer.Start(ctx, "engine.intercept",
		trace.WithAttributes(
			attribute.String("trigger", string(req.Trigger)),
			attribute.String("tenant_id", req.TenantID),
		))
	defer span.End()

	if s.metrics != nil {
		s.metrics.InterceptsTotal.WithLabelValues(string(req.Trigger)).Inc()
		s.metrics.InterceptsInFlight.Inc()
		defer s.metrics.InterceptsInFlight.Dec()
	}

	if err := s.validateRequest(req); err != nil {
		// Fail-open: a payload the engine cannot inspect is the caller's
		// problem to persist, not the engine's to block.
		s.logger.Warn("intercept_payload_rejected",
			"trigger", req.Trigger,
			"tenant_id", req.TenantID,
			"error", err,
		)
		return &InterceptResult{
			Proceed: true,
			Message: "payload not inspectable, no consistency checks ran",
		}
	}

	cc := &rules.CheckContext{Candidate: req.Activity, ChangedFields: req.ChangedFields}
	violations := s.detector.Detect(ctx, req.Trigger, req.TenantID, cc)
	s.countViolations(violations)
	if len(violations) == 0 {
		return &InterceptResult{Proceed: true, Message: "no corrections needed"}
	}

	results := s.dispatcher.Dispatch(ctx, violations, actions.ModeSoft)
	return s.buildInterceptResult(results)
}

func (s *Service) validateRequest(req InterceptRequest) error {
	if !req.Trigger.IsValid() || req.Trigger == rules.TriggerPeriodic {
		return fmt.Errorf("invalid reactive trigger %q", req.Trigger)
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("validate intercept payload: %w", err)
	}
	if req.Activity.TenantID != "" && req.Activity.TenantID != req.TenantID {
		return fmt.Errorf("payload tenant %q does not match request tenant %q", req.Activity.TenantID, req.TenantID)
	}
	return nil
}

func (s *Service) buildInterceptResult(results []actions.Result) *InterceptResult {
	res := &InterceptResult{Proceed: true}
	var parts []string
	for _, r := range results {
		if r.Err != nil || r.Outcome == nil {
			continue
		}
		if r.Outcome.MergedIntoID != "" {
			res.MergedIntoID = r.Outcome.MergedIntoID
		}
		if r.Outcome.PendingAssessmentID != "" {
			res.PendingAssessmentID = r.Outcome.PendingAssessmentID
		}
		if r.Outcome.NoOp && r.Outcome.MergedIntoID == "" && r.Outcome.PendingAssessmentID == "" {
			continue
		}
		res.CorrectionApplied = true
		res.Corrections = append(res.Corrections, r.Outcome.Tag)
		parts = append(parts, fmt.Sprintf("%s: %s", r.Outcome.Tag, r.Outcome.Detail))
	}
	if len(parts) == 0 {
		res.Message = "violations detected, no corrections applied"
		return res
	}
	res.Message = strings.Join(parts, "; ")
	return res
}

// RunFullAudit performs one complete sweep for a tenant: detect, persist the
// report, correct, re-check convergence, escalate survivors aggressively,
// and stabilize whatever remains. Overlapping cycles for the same tenant are
// rejected with CodeAuditInProgress rather than queued.
func (s *Service) RunFullAudit(ctx context.Context, tenantID string) (*models.AuditReport, error) {
	if tenantID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant id must not be empty")
	}
	if !s.locks.TryLock(tenantID) {
		if s.metrics != nil {
			s.metrics.AuditCyclesSkipped.Inc()
		}
		return nil, dErrors.Wrap(sentinel.ErrAuditInProgress, dErrors.CodeAuditInProgress,
			fmt.Sprintf("audit already running for tenant %s", tenantID))
	}
	defer s.locks.Unlock(tenantID)

	ctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "engine.audit_cycle",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	start := time.Now()
	report, err := s.runCycle(ctx, tenantID)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.AuditCyclesTotal.WithLabelValues("error").Inc()
			s.metrics.AuditCycleDuration.Observe(duration.Seconds())
		}
		// Cycle-level failures route to the stabilization path instead of
		// killing the scheduler.
		s.stabilize(ctx, tenantID, "audit cycle aborted before completion", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit cycle failed")
	}

	if s.metrics != nil {
		s.metrics.AuditCyclesTotal.WithLabelValues("success").Inc()
		s.metrics.AuditCycleDuration.Observe(duration.Seconds())
	}
	s.logger.Info("audit_cycle_completed",
		"tenant_id", tenantID,
		"inconsistencies", report.Summary.TotalInconsistencies,
		"duration_ms", duration.Milliseconds(),
	)
	return report, nil
}

func (s *Service) runCycle(ctx context.Context, tenantID string) (*models.AuditReport, error) {
	violations := s.detector.Detect(ctx, rules.TriggerPeriodic, tenantID, nil)
	s.countViolations(violations)

	report, err := s.buildReport(ctx, tenantID, violations)
	if err != nil {
		return nil, err
	}
	if err := s.reports.PersistAudit(ctx, report); err != nil {
		return nil, err
	}

	if len(violations) == 0 {
		if s.metrics != nil {
			s.metrics.UnresolvedAfterFix.Set(0)
		}
		return report, nil
	}

	// Soft pass, then one convergence check.
	s.dispatcher.Dispatch(ctx, violations, actions.ModeSoft)
	remaining := s.detector.Detect(ctx, rules.TriggerPeriodic, tenantID, nil)

	// Escalation ladder: survivors get the aggressive pass with relaxed
	// preconditions; whatever still fails is only stabilized, not fixed.
	unresolved := 0
	if len(remaining) > 0 {
		if s.metrics != nil {
			s.metrics.AggressiveFixes.Add(float64(len(remaining)))
		}
		results := s.dispatcher.Dispatch(ctx, remaining, actions.ModeAggressive)
		for _, r := range results {
			if r.Violation.Kind == rules.KindRuleError || r.Resolved() {
				continue
			}
			unresolved++
			s.stabilize(ctx, tenantID,
				fmt.Sprintf("violation %s on %s unresolved after aggressive pass: %s",
					r.Violation.Kind, r.Violation.TargetID, r.Violation.Detail),
				r.Err)
		}
	}
	if s.metrics != nil {
		s.metrics.UnresolvedAfterFix.Set(float64(unresolved))
	}
	return report, nil
}

// stabilize writes the last-resort record. If even that write fails there is
// nothing left to do but log; the scheduler must keep running.
func (s *Service) stabilize(ctx context.Context, tenantID, detail string, cause error) {
	if s.metrics != nil {
		s.metrics.Stabilizations.Inc()
	}
	s.logger.Warn("stabilization_record_written",
		"tenant_id", tenantID,
		"detail", detail,
		"cause", cause,
	)
	if err := s.reports.Stabilize(ctx, tenantID, detail, cause); err != nil {
		s.logger.Error("stabilization_write_failed",
			"tenant_id", tenantID,
			"detail", detail,
			"error", err,
		)
	}
}

func (s *Service) buildReport(ctx context.Context, tenantID string, violations []rules.Violation) (*models.AuditReport, error) {
	counts, err := s.reports.Counts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	totalRules := s.detector.RuleCount(rules.TriggerPeriodic)
	byRule := make(map[string]*models.Inconsistency)
	var order []string
	for _, v := range violations {
		inc, ok := byRule[v.RuleID]
		if !ok {
			inc = &models.Inconsistency{RuleID: v.RuleID, RuleDescription: v.RuleDescription}
			byRule[v.RuleID] = inc
			order = append(order, v.RuleID)
		}
		issue := v.Detail
		if v.Err != "" {
			issue = fmt.Sprintf("%s (error: %s)", v.Detail, v.Err)
		}
		inc.Issues = append(inc.Issues, issue)
	}

	report := &models.AuditReport{
		TenantID:  tenantID,
		Timestamp: time.Now(),
		Summary: models.ReportSummary{
			TotalRules:           totalRules,
			PassedRules:          totalRules - len(order),
			FailedRules:          len(order),
			TotalInconsistencies: len(violations),
		},
		Inconsistencies: make([]models.Inconsistency, 0, len(order)),
		Recommendations: make([]models.Recommendation, 0, len(violations)),
		RecordCounts:    counts,
	}
	for _, ruleID := range order {
		report.Inconsistencies = append(report.Inconsistencies, *byRule[ruleID])
	}
	for _, v := range violations {
		report.Recommendations = append(report.Recommendations, models.Recommendation{
			Action:     string(v.Kind),
			TargetID:   v.TargetID,
			Priority:   recommendationPriority(v.Kind),
			CanAutoFix: v.Kind != rules.KindRuleError,
		})
	}
	return report, nil
}

func recommendationPriority(kind rules.Kind) string {
	switch kind {
	case rules.KindHighRiskMissingAssessment, rules.KindInconsistentRiskLevel:
		return string(models.PriorityHigh)
	case rules.KindRuleError:
		return string(models.PriorityLow)
	default:
		return string(models.PriorityMedium)
	}
}

// LinkPendingAssessment attaches an assessment created ahead of its activity
// once the activity id is known. Linking the same pair twice is a no-op.
func (s *Service) LinkPendingAssessment(ctx context.Context, tenantID, assessmentID, activityID string) error {
	if tenantID == "" || assessmentID == "" || activityID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "tenant, assessment and activity ids are required")
	}
	assessment, err := s.gw.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "pending assessment not found")
	}
	if assessment.ActivityID == activityID {
		return nil
	}
	if assessment.ActivityID != "" {
		return dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("assessment %s is already linked to activity %s", assessmentID, assessment.ActivityID))
	}
	if err := s.gw.UpdateAssessment(ctx, tenantID, assessmentID, store.AssessmentUpdate{ActivityID: &activityID}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "link pending assessment")
	}
	return nil
}

func (s *Service) countViolations(violations []rules.Violation) {
	if s.metrics == nil {
		return
	}
	for _, v := range violations {
		s.metrics.ViolationsDetected.WithLabelValues(string(v.Kind)).Inc()
	}
}
