package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"concordia/internal/engine/reports"
	"concordia/internal/engine/rules"
	"concordia/internal/records/models"
	"concordia/internal/records/store"
)

type DispatcherSuite struct {
	suite.Suite
	ctx    context.Context
	gw     *store.InMemoryGateway
	logger *slog.Logger
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.gw = store.NewInMemoryGateway()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) newDispatcher(opts ...DispatcherOption) *Dispatcher {
	reportStore := reports.NewStore(s.gw, reports.WithLogger(s.logger))
	opts = append([]DispatcherOption{WithLogger(s.logger)}, opts...)
	return NewDispatcher(s.gw, reportStore, opts...)
}

func (s *DispatcherSuite) correctionLogs() []*models.ReportRecord {
	kind := models.ReportCorrectionLog
	records, err := s.gw.ListReports(s.ctx, testTenant, store.ReportFilter{Kind: &kind})
	s.Require().NoError(err)
	return records
}

// stubAction lets tests script an action's behavior per call.
type stubAction struct {
	kind  rules.Kind
	apply func(v rules.Violation) (*Outcome, error)
}

func (a stubAction) Kind() rules.Kind { return a.kind }
func (a stubAction) Apply(_ context.Context, _ store.Gateway, v rules.Violation, _ Mode) (*Outcome, error) {
	return a.apply(v)
}

func (s *DispatcherSuite) TestFailureDoesNotAbortTheBatch() {
	calls := 0
	d := s.newDispatcher(WithActions(
		stubAction{kind: rules.KindOrphanTask, apply: func(rules.Violation) (*Outcome, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("store write failed")
			}
			return &Outcome{Tag: TagTaskObsoleted, TargetID: "task_2"}, nil
		}},
	))

	results := d.Dispatch(s.ctx, []rules.Violation{
		{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_1", RuleID: "r"},
		{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_2", RuleID: "r"},
	}, ModeSoft)

	s.Require().Len(results, 2)
	s.Error(results[0].Err)
	s.False(results[0].Resolved())
	s.NoError(results[1].Err)
	s.True(results[1].Resolved())

	logs := s.correctionLogs()
	s.Require().Len(logs, 2)
	outcomes := map[string]string{}
	for _, l := range logs {
		outcomes[l.TargetID] = l.Outcome
	}
	s.Equal(reports.OutcomeFailed, outcomes["task_1"])
	s.Equal(reports.OutcomeApplied, outcomes["task_2"])
}

func (s *DispatcherSuite) TestRuleErrorEntriesAreSkipped() {
	d := s.newDispatcher(WithActions(
		stubAction{kind: rules.KindOrphanTask, apply: func(rules.Violation) (*Outcome, error) {
			s.Fail("rule errors must not reach an action")
			return nil, nil
		}},
	))

	results := d.Dispatch(s.ctx, []rules.Violation{
		{Kind: rules.KindRuleError, TenantID: testTenant, RuleID: "rule_broken", Err: "boom"},
	}, ModeSoft)

	s.Require().Len(results, 1)
	s.Nil(results[0].Outcome)
	s.NoError(results[0].Err)

	logs := s.correctionLogs()
	s.Require().Len(logs, 1)
	s.Equal(reports.OutcomeSkipped, logs[0].Outcome)
	s.Equal("boom", logs[0].Error)
}

func (s *DispatcherSuite) TestUnmappedKindIsSkipped() {
	d := s.newDispatcher(WithActions()) // empty action set

	results := d.Dispatch(s.ctx, []rules.Violation{
		{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_1"},
	}, ModeSoft)

	s.Require().Len(results, 1)
	s.False(results[0].Resolved())

	logs := s.correctionLogs()
	s.Require().Len(logs, 1)
	s.Equal(reports.OutcomeSkipped, logs[0].Outcome)
}

func (s *DispatcherSuite) TestPanickingActionIsContained() {
	d := s.newDispatcher(WithActions(
		stubAction{kind: rules.KindOrphanTask, apply: func(rules.Violation) (*Outcome, error) {
			panic("action blew up")
		}},
		stubAction{kind: rules.KindInconsistentRiskLevel, apply: func(v rules.Violation) (*Outcome, error) {
			return &Outcome{Tag: TagRiskLevelRepaired, TargetID: v.TargetID}, nil
		}},
	))

	results := d.Dispatch(s.ctx, []rules.Violation{
		{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_1"},
		{Kind: rules.KindInconsistentRiskLevel, TenantID: testTenant, TargetID: "rat_1"},
	}, ModeSoft)

	s.Require().Len(results, 2)
	s.Require().Error(results[0].Err)
	s.Contains(results[0].Err.Error(), "action blew up")
	s.True(results[1].Resolved())
}

func (s *DispatcherSuite) TestActionTimeoutIsEnforced() {
	blocking := stubActionCtx{kind: rules.KindOrphanTask}
	d := s.newDispatcher(
		WithActions(blocking),
		WithActionTimeout(10*time.Millisecond),
	)

	results := d.Dispatch(s.ctx, []rules.Violation{
		{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_1"},
	}, ModeSoft)

	s.Require().Len(results, 1)
	s.Require().Error(results[0].Err)
	s.ErrorIs(results[0].Err, context.DeadlineExceeded)
}

// stubActionCtx blocks until its context is cancelled.
type stubActionCtx struct {
	kind rules.Kind
}

func (a stubActionCtx) Kind() rules.Kind { return a.kind }
func (a stubActionCtx) Apply(ctx context.Context, _ store.Gateway, _ rules.Violation, _ Mode) (*Outcome, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *DispatcherSuite) TestEndToEndCorrectionWithDefaultActions() {
	now := time.Now()
	s.Require().NoError(s.gw.InsertTask(s.ctx, &models.ComplianceTask{
		ID: "task_1", TenantID: testTenant, ActivityID: "rat_gone",
		Description: "Revisión", Status: models.TaskPending,
		CreatedAt: now, UpdatedAt: now,
	}))
	d := s.newDispatcher()

	results := d.Dispatch(s.ctx, []rules.Violation{
		{Kind: rules.KindOrphanTask, TenantID: testTenant, TargetID: "task_1", RelatedID: "rat_gone", RuleID: "pending_task_requires_live_activity"},
	}, ModeSoft)

	s.Require().Len(results, 1)
	s.True(results[0].Resolved())

	task, err := s.gw.GetTask(s.ctx, testTenant, "task_1")
	s.Require().NoError(err)
	s.Equal(models.TaskObsolete, task.Status)

	logs := s.correctionLogs()
	s.Require().Len(logs, 1)
	s.Equal("pending_task_requires_live_activity", logs[0].RuleID)
	s.Equal(reports.OutcomeApplied, logs[0].Outcome)
}
