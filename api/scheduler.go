/*
scheduler.go - Periodic accrual runs

PURPOSE:
  Runs the accrual job in the background so monthly RTT steps and yearly
  grants land without anyone calling POST /api/admin/accruals.

DESIGN:
  - One goroutine, one ticker, first run immediately on Start
  - Each tick calls AccrualService.Run. Accrual entries carry per-day
    idempotency keys, so ticks within the same day write nothing new
  - Stop cancels an in-flight run and waits for the goroutine

USAGE:
  scheduler := NewAccrualScheduler(accruals, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/accrual.go: AccrualService
  - handlers.go: RunAccruals endpoint (manual run)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// AccrualRunner is the part of leave.AccrualService the scheduler needs.
type AccrualRunner interface {
	Run(ctx context.Context) (leave.AccrualReport, error)
}

// AccrualScheduler runs accruals on a fixed interval.
type AccrualScheduler struct {
	runner   AccrualRunner
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   leave.AccrualReport
}

func NewAccrualScheduler(runner AccrualRunner, interval time.Duration, logger *slog.Logger) *AccrualScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccrualScheduler{runner: runner, interval: interval, logger: logger.With("component", "scheduler")}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("accrual scheduler started", "interval", s.interval)
}

// Stop stops the scheduler and waits for an in-flight run to return.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("accrual scheduler stopped")
}

func (s *AccrualScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one accrual run synchronously.
func (s *AccrualScheduler) RunNow(ctx context.Context) {
	report, err := s.runner.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("accrual run failed", "error", err)
		}
		return
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if len(report.Failed) > 0 {
		s.logger.Warn("accrual run had failures", "failed", len(report.Failed))
	}
}

// LastReport returns the report of the most recent successful run.
func (s *AccrualScheduler) LastReport() leave.AccrualReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
