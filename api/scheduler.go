/*
scheduler.go - Scheduled accrual, expiry sweep and alert dispatch

PURPOSE:
  Runs the engine's batch jobs on cron schedules so credits accrue and
  expire without anyone pressing a button. Each job is also reachable
  through the HR endpoints for manual runs.

JOBS:
  monthly-accrual   ACCRUAL_SCHEDULE (default "0 1 1 * *")
                    RunMonthlyAccrual as the system actor. Safe to re-run:
                    accrual transactions are keyed per employee and month.
  expiry-sweep      EXPIRY_SWEEP_SCHEDULE (default "0 2 * * *")
                    SweepExpired, then DispatchExpiryAlerts for the
                    configured alert window.

  Schedules are standard five-field cron specs evaluated in UTC. A job that
  is still running when its next tick fires is skipped, and a panicking job
  is recovered and logged.

USAGE:
  s, err := api.NewScheduler(engine, api.ScheduleConfig{...}, logger)
  s.Start()
  defer s.Stop(ctx)

SEE ALSO:
  - handlers.go: RunAccrual, SweepExpired, DispatchAlerts (manual triggers)
  - leave/engine.go: The batch operations themselves
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/govhr/leave-engine/leave"
)

const (
	JobMonthlyAccrual = "monthly-accrual"
	JobExpirySweep    = "expiry-sweep"

	jobTimeout = 30 * time.Minute
)

type ScheduleConfig struct {
	AccrualSpec     string
	SweepSpec       string
	AlertWindowDays int
}

// Scheduler owns the cron runner for the engine's batch jobs.
type Scheduler struct {
	engine      *leave.Engine
	logger      *zap.Logger
	alertWindow int

	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	started bool
}

// NewScheduler validates both specs and registers the jobs. Nothing runs
// until Start.
func NewScheduler(engine *leave.Engine, cfg ScheduleConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	s := &Scheduler{
		engine:      engine,
		logger:      logger,
		alertWindow: cfg.AlertWindowDays,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		entries: make(map[string]cron.EntryID),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobMonthlyAccrual, cfg.AccrualSpec, s.RunAccrual},
		{JobExpirySweep, cfg.SweepSpec, s.RunSweep},
	}
	for _, j := range jobs {
		if _, err := cron.ParseStandard(j.spec); err != nil {
			return nil, fmt.Errorf("invalid cron expression for %s: %w", j.name, err)
		}
		id, err := s.cron.AddFunc(j.spec, func() { s.execute(j.name, j.run) })
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
		s.entries[j.name] = id
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	for name, next := range s.NextRuns() {
		s.logger.Info("job scheduled", zap.String("job", name), zap.Time("next_run", next))
	}
}

// Stop stops scheduling and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// NextRuns maps job name to its next fire time. Zero before Start.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) execute(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

// RunAccrual is the monthly-accrual job body.
func (s *Scheduler) RunAccrual(ctx context.Context) error {
	run, err := s.engine.RunMonthlyAccrual(ctx, leave.SystemActor)
	if err != nil {
		return err
	}
	s.logger.Info("monthly accrual",
		zap.String("run_id", run.ID),
		zap.String("period", run.Period),
		zap.Int("processed", run.Processed),
		zap.Int("skipped", run.Skipped),
		zap.Int("errors", run.Errors),
	)
	return nil
}

// RunSweep is the expiry-sweep job body. Alerts are still dispatched when
// nothing expired.
func (s *Scheduler) RunSweep(ctx context.Context) error {
	res, err := s.engine.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	sent, err := s.engine.DispatchExpiryAlerts(ctx, s.alertWindow)
	if err != nil {
		return fmt.Errorf("dispatch alerts: %w", err)
	}
	s.logger.Info("expiry sweep",
		zap.Int("expired", res.Expired),
		zap.Int("forfeited", len(res.Forfeited)),
		zap.Int("alerts", sent),
	)
	return nil
}
