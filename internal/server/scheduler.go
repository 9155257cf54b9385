package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	syncengine "github.com/gobeyondidentity/marketo-sync/internal/sync"
)

// Scheduler handles scheduled sync operations
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	syncEngine SyncEngine
	logger     logrus.FieldLogger
	stats      *Stats
	mu         sync.RWMutex
	running    bool
	lastSync   *time.Time
	nextSync   *time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(schedule string, syncEngine SyncEngine, logger logrus.FieldLogger, stats *Stats) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(logger)))

	return &Scheduler{
		cron:       c,
		schedule:   schedule,
		syncEngine: syncEngine,
		logger:     logger,
		stats:      stats,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	// A stopped cron keeps its entries, so only add the job once
	if len(s.cron.Entries()) == 0 {
		if _, err := s.cron.AddFunc(s.schedule, s.runSync); err != nil {
			return fmt.Errorf("failed to add cron job: %w", err)
		}
	}

	s.cron.Start()
	s.running = true

	entries := s.cron.Entries()
	if len(entries) > 0 {
		nextTime := entries[0].Next
		s.nextSync = &nextTime
	}

	s.logger.Infof("Scheduler started with schedule '%s'", s.schedule)
	if s.nextSync != nil {
		s.logger.Infof("Next sync scheduled for: %s", s.nextSync.Format(time.RFC3339))
	}

	return nil
}

// Stop stops the scheduler and waits for a running sync to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.nextSync = nil
	s.mu.Unlock()

	// runSync takes the lock, so wait outside it
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetLastSync returns the time of the last scheduled sync
func (s *Scheduler) GetLastSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// GetNextSync returns the time of the next scheduled sync
func (s *Scheduler) GetNextSync() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running {
		return nil
	}

	entries := s.cron.Entries()
	if len(entries) > 0 {
		nextTime := entries[0].Next
		return &nextTime
	}

	return s.nextSync
}

// runSync executes a sync operation (called by cron)
func (s *Scheduler) runSync() {
	s.logger.Info("Starting scheduled sync operation")

	startTime := time.Now()
	run, err := s.syncEngine.Run(context.Background(), syncengine.TriggerSchedule)
	if errors.Is(err, syncengine.ErrRunInProgress) {
		s.logger.Warn("Skipping scheduled sync, another sync is still running")
		return
	}

	s.mu.Lock()
	s.lastSync = &startTime
	entries := s.cron.Entries()
	if len(entries) > 0 {
		nextTime := entries[0].Next
		s.nextSync = &nextTime
	}
	s.mu.Unlock()

	s.stats.RecordRun(run, err)

	if err != nil {
		s.logger.Errorf("Scheduled sync failed: %v", err)
		return
	}

	s.logger.Infof("Scheduled sync completed in %v", time.Since(startTime))
	if len(run.Errors) > 0 {
		s.logger.Warnf("Scheduled sync completed with %d errors", len(run.Errors))
	}
}
