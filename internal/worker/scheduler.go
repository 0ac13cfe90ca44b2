// Package worker runs reconciliation cycles on a fixed schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/service"
)

// ErrCycleInFlight is returned by TriggerCycle while a cycle is running.
var ErrCycleInFlight = errors.New("a reconciliation cycle is already in progress")

// CycleRunner is the unit of work the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*service.CycleResult, error)
}

// Scheduler triggers reconciliation cycles at a fixed interval.
// Cycles never overlap: a tick that arrives while a cycle is still
// running is skipped.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	logger   *logging.Logger

	mu        sync.RWMutex
	running   bool
	cycling   bool
	lastRun   time.Time
	lastError error
	runs      int
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// SchedulerStatus is a point-in-time view of the scheduler state.
type SchedulerStatus struct {
	Running   bool      `json:"running"`
	CycleBusy bool      `json:"cycle_busy"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

// NewScheduler creates a scheduler for the given runner.
func NewScheduler(runner CycleRunner, interval time.Duration) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("cycle runner cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("cycle interval must be positive, got %v", interval)
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logging.GetGlobalLogger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs an immediate cycle and then begins the ticker loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithField("interval", s.interval.String()).Info("Starting reconciliation scheduler")

	go s.loop(ctx)
	return nil
}

// Stop signals the loop to exit and waits for any in-flight cycle.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		s.logger.Info("Reconciliation scheduler stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// TriggerCycle runs one cycle out of band, for the manual API trigger.
// It returns an error if a cycle is already in flight.
func (s *Scheduler) TriggerCycle(ctx context.Context) (*service.CycleResult, error) {
	s.mu.Lock()
	if s.cycling {
		s.mu.Unlock()
		return nil, ErrCycleInFlight
	}
	s.cycling = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycling = false
		s.mu.Unlock()
	}()

	result, err := s.runner.RunCycle(ctx)
	s.recordRun(err)
	return result, err
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() *SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &SchedulerStatus{
		Running:   s.running,
		CycleBusy: s.cycling,
		LastRun:   s.lastRun,
		Runs:      s.runs,
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	// First cycle runs immediately so a restart never waits a full
	// interval before producing a snapshot.
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	if s.cycling {
		s.mu.Unlock()
		s.logger.Warn("Skipping scheduled cycle, previous cycle still running")
		return
	}
	s.cycling = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycling = false
		s.mu.Unlock()
	}()

	start := time.Now()
	result, err := s.runner.RunCycle(ctx)
	s.recordRun(err)

	if err != nil {
		s.logger.WithError(err).Error("Reconciliation cycle failed")
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"duration":    time.Since(start).String(),
		"positions":   result.Snapshot.PositionCount(),
		"changes":     len(result.Changes),
		"significant": len(result.Significant),
		"degraded":    result.Degraded,
	}).Info("Reconciliation cycle complete")
}

func (s *Scheduler) recordRun(err error) {
	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.lastError = err
	s.runs++
	s.mu.Unlock()
}
