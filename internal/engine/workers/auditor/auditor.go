// Package auditor runs the periodic consistency sweep for each configured
// tenant on its own ticker.
package auditor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"concordia/internal/records/models"
	"concordia/internal/sentinel"
	dErrors "concordia/pkg/domain-errors"
)

// Runner executes one full audit cycle for a tenant. The engine service
// satisfies it.
type Runner interface {
	RunFullAudit(ctx context.Context, tenantID string) (*models.AuditReport, error)
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithJitter caps the random delay applied before a tenant's first sweep so
// that all loops do not hammer the store at the same instant after startup.
func WithJitter(max time.Duration) Option {
	return func(m *Manager) {
		m.jitter = max
	}
}

// Manager owns one audit loop per tenant. StartTenant and StopTenant may be
// called at any time; StopAll blocks until every loop has exited.
type Manager struct {
	runner   Runner
	logger   *slog.Logger
	interval time.Duration
	jitter   time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func New(runner Runner, opts ...Option) *Manager {
	m := &Manager{
		runner:   runner,
		logger:   slog.Default(),
		interval: 15 * time.Minute,
		jitter:   30 * time.Second,
		cancels:  make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartTenant launches the audit loop for a tenant. Starting an already
// scheduled tenant is a no-op.
func (m *Manager) StartTenant(ctx context.Context, tenantID string) {
	if tenantID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.cancels[tenantID]; running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancels[tenantID] = cancel
	m.wg.Add(1)
	go m.run(loopCtx, tenantID)
	m.logger.Info("audit_loop_started", "tenant_id", tenantID, "interval", m.interval.String())
}

// StopTenant cancels a tenant's loop. Unknown tenants are ignored.
func (m *Manager) StopTenant(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[tenantID]; ok {
		cancel()
		delete(m.cancels, tenantID)
	}
}

// StopAll cancels every loop and waits for them to drain.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for tenantID, cancel := range m.cancels {
		cancel()
		delete(m.cancels, tenantID)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, tenantID string) {
	defer m.wg.Done()

	if m.jitter > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(m.jitter)))):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First sweep right after the jitter delay, then on every tick.
	m.sweep(ctx, tenantID)
	for {
		select {
		case <-ticker.C:
			m.sweep(ctx, tenantID)
		case <-ctx.Done():
			m.logger.Info("audit_loop_stopped", "tenant_id", tenantID, "reason", ctx.Err())
			return
		}
	}
}

// sweep runs one cycle and logs the outcome. Scheduler errors are absorbed;
// the loop must outlive any single bad cycle.
func (m *Manager) sweep(ctx context.Context, tenantID string) {
	start := time.Now()
	report, err := m.runner.RunFullAudit(ctx, tenantID)
	duration := time.Since(start)

	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAuditInProgress) || errors.Is(err, sentinel.ErrAuditInProgress) {
			m.logger.Warn("audit_cycle_overlap_skipped", "tenant_id", tenantID)
			return
		}
		m.logger.Error("audit_cycle_failed",
			"tenant_id", tenantID,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}

	m.logger.Info("audit_cycle_completed",
		"tenant_id", tenantID,
		"total_inconsistencies", report.Summary.TotalInconsistencies,
		"failed_rules", report.Summary.FailedRules,
		"duration_ms", duration.Milliseconds(),
	)
}
