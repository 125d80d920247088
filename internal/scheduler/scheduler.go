package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Publisher builds and pushes one digest.
type Publisher interface {
	Publish(ctx context.Context) error
}

// Scheduler runs the digest publisher on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	schedule  string
	publisher Publisher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a scheduler. schedule is a cron expression with a
// seconds field.
func NewScheduler(schedule string, publisher Publisher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		schedule:  schedule,
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	entryID, err := s.cron.AddFunc(s.schedule, s.runDigest)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with schedule: %s", s.schedule)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	// Cancel context to stop any running operations
	s.cancel()

	// Drop the entry so a later Start does not double-schedule
	s.cron.Remove(s.entryID)

	// Stop the cron scheduler
	ctx := s.cron.Stop()

	// Wait for all jobs to complete
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runDigest is the scheduled job body.
func (s *Scheduler) runDigest() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping digest run")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	logrus.Info("Starting digest publish run")
	startTime := time.Now()

	if err := s.publisher.Publish(ctx); err != nil {
		logrus.Errorf("Digest publish run failed: %v", err)
		return
	}

	logrus.Infof("Digest publish run completed in %v", time.Since(startTime))
}

// RunOnce runs the digest publish once (for manual triggering)
func (s *Scheduler) RunOnce() error {
	logrus.Info("Running digest publish once")
	s.wg.Add(1)
	defer s.wg.Done()
	return s.publisher.Publish(context.Background())
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Next
}

// GetLastRun returns the time of the last run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}

	entry := s.cron.Entry(s.entryID)
	return entry.Prev
}

// Wait waits for in-flight runs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
