// Package scheduler triggers dashboard scan cycles on a cron schedule.
// Scheduled triggers go through the same single-flight guard as manual
// ones, so a tick that lands during a running scan is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/labscan/internal/logging"
)

// Trigger starts a scan cycle in the background, reporting false when one
// is already running.
type Trigger interface {
	TriggerAsync(ctx context.Context) bool
}

// Status describes the scheduled job.
type Status struct {
	Expression string    `json:"expression"`
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"last_run,omitzero"`
	NextRun    time.Time `json:"next_run,omitzero"`
	Fired      uint64    `json:"fired"`
	Skipped    uint64    `json:"skipped"`
}

// Scheduler fires a trigger on a standard five-field cron expression.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	trigger  Trigger
	cron     *cron.Cron
	cronID   cron.EntryID
	logger   *logging.Logger

	mu      sync.RWMutex
	running bool
	lastRun time.Time
	fired   uint64
	skipped uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler for expr. It fails on an invalid expression.
func New(expr string, trigger Trigger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		expr:     expr,
		schedule: schedule,
		trigger:  trigger,
		cron:     cron.New(),
		logger:   logging.Default().WithComponent("scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins firing the trigger.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	id, err := s.cron.AddFunc(s.expr, s.fire)
	if err != nil {
		return fmt.Errorf("failed to schedule scan job: %w", err)
	}
	s.cronID = id

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "expression", s.expr, "next_run", s.schedule.Next(time.Now()))
	return nil
}

// Stop stops the scheduler and waits for a firing tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.cronID)
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()

	s.logger.Info("Scheduler stopped")
}

// Status returns a snapshot of the scheduled job.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Expression: s.expr,
		Running:    s.running,
		LastRun:    s.lastRun,
		Fired:      s.fired,
		Skipped:    s.skipped,
	}
	if s.running {
		status.NextRun = s.schedule.Next(time.Now())
	}
	return status
}

// fire runs on every cron tick.
func (s *Scheduler) fire() {
	now := time.Now()
	started := s.trigger.TriggerAsync(s.ctx)

	s.mu.Lock()
	s.lastRun = now
	if started {
		s.fired++
	} else {
		s.skipped++
	}
	s.mu.Unlock()

	if started {
		s.logger.Info("Scheduled scan started")
	} else {
		s.logger.Info("Scan already in progress, scheduled run skipped")
	}
}
