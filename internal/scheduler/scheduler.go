// Package scheduler runs the periodic payment maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/robfig/cron/v3"
)

// Jobs is implemented by service.PaymentService.
type Jobs interface {
	ExpireStaleDeposits(ctx context.Context, maxAge time.Duration) (int, error)
	ResetDailyWithdrawalUsage(ctx context.Context) (int64, error)
}

// Config sets the cron schedules and the checkout expiry.
type Config struct {
	ExpirySchedule     string
	LimitResetSchedule string
	CheckoutExpiry     time.Duration
	// JobTimeout bounds a single run. Zero means 5 minutes.
	JobTimeout time.Duration
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	cfg    Config
	logger *slog.Logger
}

// New creates a scheduler. Schedules are evaluated in UTC so the daily reset
// lines up with the usage window.
func New(jobs Jobs, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	return &Scheduler{cron: c, jobs: jobs, cfg: cfg, logger: logger}
}

// Start registers the jobs and starts the cron scheduler. An invalid
// schedule is an error and nothing is started.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.ExpirySchedule, s.ExpireDeposits); err != nil {
		return fmt.Errorf("schedule deposit expiry %q: %w", s.cfg.ExpirySchedule, err)
	}
	s.logger.Info("scheduled deposit expiry job", "schedule", s.cfg.ExpirySchedule, "checkout_expiry", s.cfg.CheckoutExpiry)

	if _, err := s.cron.AddFunc(s.cfg.LimitResetSchedule, s.ResetWithdrawalUsage); err != nil {
		return fmt.Errorf("schedule limit reset %q: %w", s.cfg.LimitResetSchedule, err)
	}
	s.logger.Info("scheduled withdrawal usage reset job", "schedule", s.cfg.LimitResetSchedule)

	s.cron.Start()
	return nil
}

// Stop stops scheduling and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ExpireDeposits cancels PENDING deposits older than the checkout expiry.
func (s *Scheduler) ExpireDeposits() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.jobs.ExpireStaleDeposits(ctx, s.cfg.CheckoutExpiry)
	s.observe("expire_deposits", start, err)
	if err != nil {
		s.logger.Error("deposit expiry job failed", "error", err, "expired", n)
		return
	}
	s.logger.Info("deposit expiry job finished", "expired", n, "duration_ms", time.Since(start).Milliseconds())
}

// ResetWithdrawalUsage zeroes every user's daily withdrawal usage.
func (s *Scheduler) ResetWithdrawalUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.jobs.ResetDailyWithdrawalUsage(ctx)
	s.observe("reset_withdrawal_usage", start, err)
	if err != nil {
		s.logger.Error("withdrawal usage reset failed", "error", err)
		return
	}
	s.logger.Info("withdrawal usage reset", "users", n)
}

func (s *Scheduler) observe(job string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.GetOrCreateCounter(`scheduler_runs_total{job="` + job + `",result="` + result + `"}`).Inc()
	metrics.GetOrCreateHistogram(`scheduler_run_duration_seconds{job="` + job + `"}`).UpdateDuration(start)
}
