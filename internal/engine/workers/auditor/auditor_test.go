package auditor

//go:generate mockgen -source=auditor.go -destination=mocks/mocks.go -package=mocks Runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"concordia/internal/engine/workers/auditor/mocks"
	"concordia/internal/records/models"
	"concordia/internal/sentinel"
)

type AuditorSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	runner *mocks.MockRunner
	logger *slog.Logger
}

func (s *AuditorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.runner = mocks.NewMockRunner(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *AuditorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestAuditorSuite(t *testing.T) {
	suite.Run(t, new(AuditorSuite))
}

func emptyReport() *models.AuditReport {
	return &models.AuditReport{Summary: models.ReportSummary{TotalRules: 4, PassedRules: 4}}
}

func (s *AuditorSuite) TestStartTenantSweepsImmediately() {
	swept := make(chan string, 1)
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-a").
		DoAndReturn(func(_ context.Context, tenantID string) (*models.AuditReport, error) {
			swept <- tenantID
			return emptyReport(), nil
		})

	m := New(s.runner, WithLogger(s.logger), WithInterval(time.Hour), WithJitter(0))
	m.StartTenant(context.Background(), "tenant-a")
	defer m.StopAll()

	select {
	case tenantID := <-swept:
		s.Equal("tenant-a", tenantID)
	case <-time.After(2 * time.Second):
		s.Fail("first sweep did not run")
	}
}

func (s *AuditorSuite) TestStartingSameTenantTwiceRunsOneLoop() {
	swept := make(chan struct{}, 1)
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-a").
		DoAndReturn(func(context.Context, string) (*models.AuditReport, error) {
			swept <- struct{}{}
			return emptyReport(), nil
		}).
		Times(1)

	m := New(s.runner, WithLogger(s.logger), WithInterval(time.Hour), WithJitter(0))
	ctx := context.Background()
	m.StartTenant(ctx, "tenant-a")
	m.StartTenant(ctx, "tenant-a")

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		s.Fail("sweep did not run")
	}
	// A second loop would fire a second immediate sweep and trip Times(1).
	time.Sleep(50 * time.Millisecond)
	m.StopAll()
}

func (s *AuditorSuite) TestLoopSurvivesCycleErrors() {
	calls := make(chan struct{}, 8)
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-a").
		DoAndReturn(func(context.Context, string) (*models.AuditReport, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return nil, errors.New("store unreachable")
		}).
		MinTimes(2)

	m := New(s.runner, WithLogger(s.logger), WithInterval(10*time.Millisecond), WithJitter(0))
	m.StartTenant(context.Background(), "tenant-a")
	defer m.StopAll()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			s.Fail("loop stopped after an error")
		}
	}
}

func (s *AuditorSuite) TestOverlapErrorsAreSkippedQuietly() {
	calls := make(chan struct{}, 8)
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-a").
		DoAndReturn(func(context.Context, string) (*models.AuditReport, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return nil, sentinel.ErrAuditInProgress
		}).
		MinTimes(2)

	m := New(s.runner, WithLogger(s.logger), WithInterval(10*time.Millisecond), WithJitter(0))
	m.StartTenant(context.Background(), "tenant-a")
	defer m.StopAll()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			s.Fail("loop stopped after an overlap skip")
		}
	}
}

func (s *AuditorSuite) TestStopTenantCancelsTheLoop() {
	swept := make(chan struct{}, 8)
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-a").
		DoAndReturn(func(context.Context, string) (*models.AuditReport, error) {
			swept <- struct{}{}
			return emptyReport(), nil
		}).
		AnyTimes()

	m := New(s.runner, WithLogger(s.logger), WithInterval(time.Hour), WithJitter(0))
	m.StartTenant(context.Background(), "tenant-a")
	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		s.Fail("sweep did not run")
	}

	m.StopTenant("tenant-a")
	// Stopping an unknown tenant is a no-op.
	m.StopTenant("tenant-unknown")
	m.StopAll()
}

func (s *AuditorSuite) TestTenantsRunIndependently() {
	sweptA := make(chan struct{}, 1)
	sweptB := make(chan struct{}, 1)
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-a").
		DoAndReturn(func(context.Context, string) (*models.AuditReport, error) {
			sweptA <- struct{}{}
			return emptyReport(), nil
		})
	s.runner.EXPECT().
		RunFullAudit(gomock.Any(), "tenant-b").
		DoAndReturn(func(context.Context, string) (*models.AuditReport, error) {
			sweptB <- struct{}{}
			return emptyReport(), nil
		})

	m := New(s.runner, WithLogger(s.logger), WithInterval(time.Hour), WithJitter(0))
	ctx := context.Background()
	m.StartTenant(ctx, "tenant-a")
	m.StartTenant(ctx, "tenant-b")
	defer m.StopAll()

	for _, ch := range []chan struct{}{sweptA, sweptB} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			s.Fail("a tenant loop did not sweep")
		}
	}
}
