package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/source"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

// ErrRunInProgress is returned by Run while another run is active
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Run triggers
const (
	TriggerCLI      = "cli"
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// Engine imports leads from a source into Marketo
type Engine struct {
	source   source.Source
	leads    LeadSyncer
	store    RunStore
	observer RunObserver
	config   *config.Config
	logger   logrus.FieldLogger
	running  atomic.Bool
	now      func() time.Time
}

// NewEngine creates a new sync engine. store may be nil to skip run history.
func NewEngine(src source.Source, leads LeadSyncer, runStore RunStore, cfg *config.Config, logger logrus.FieldLogger) *Engine {
	return &Engine{
		source: src,
		leads:  leads,
		store:  runStore,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetObserver registers an observer for finished runs
func (e *Engine) SetObserver(observer RunObserver) {
	e.observer = observer
}

// Running reports whether a run is active
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run performs one complete import. The returned run is filled in even when
// an error is returned, except for ErrRunInProgress.
func (e *Engine) Run(ctx context.Context, trigger string) (*store.SyncRun, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer e.running.Store(false)

	run := &store.SyncRun{
		StartedAt: e.now(),
		Source:    e.source.Name(),
		Trigger:   trigger,
		DryRun:    e.config.App.TestMode,
	}

	log := e.logger.WithField("trigger", trigger)
	log.Infof("Starting sync from %s", run.Source)

	runErr := e.run(ctx, run, log)
	if runErr != nil {
		run.Errors = append(run.Errors, runErr.Error())
	}

	e.finish(run, runErr, log)
	return run, runErr
}

func (e *Engine) run(ctx context.Context, run *store.SyncRun, log logrus.FieldLogger) error {
	leads, err := e.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch leads: %w", err)
	}
	run.LeadsRead = len(leads)
	log.Infof("Read %d leads from %s", len(leads), run.Source)

	var syncable []*marketo.Lead
	for i, lead := range leads {
		if lead.Email == "" && lead.ID == 0 {
			run.LeadsSkipped++
			run.Errors = append(run.Errors, fmt.Sprintf("lead %d has neither email nor id", i+1))
			continue
		}
		syncable = append(syncable, lead)
	}

	for i, batch := range splitBatches(syncable, e.batchSize()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.Batches++

		if e.config.App.TestMode {
			log.Infof("TEST MODE: Would sync batch %d with %d leads", i+1, len(batch))
			for _, lead := range batch {
				log.Debugf("TEST MODE: Would sync lead %s", describeLead(lead))
			}
			continue
		}

		e.syncBatch(ctx, i+1, batch, run, log)
	}

	return ctx.Err()
}

func (e *Engine) syncBatch(ctx context.Context, number int, batch []*marketo.Lead, run *store.SyncRun, log logrus.FieldLogger) {
	var (
		synced   []*marketo.Lead
		statuses []marketo.SyncStatus
	)

	err := e.RetryWithBackoff(ctx, func() error {
		var err error
		synced, statuses, err = e.leads.SyncMultiple(ctx, batch, marketo.WithDedup(e.config.Dedup()))
		return err
	}, e.config.Sync.RetryAttempts, e.config.RetryDelay())
	if err != nil {
		log.WithField("batch", number).Errorf("Failed to sync batch: %v", err)
		run.LeadsFailed += len(batch)
		run.Errors = append(run.Errors, fmt.Sprintf("batch %d: %v", number, err))
		return
	}

	var created, updated, failed int
	for i, status := range statuses {
		switch status.Status {
		case marketo.SyncStatusCreated:
			created++
		case marketo.SyncStatusUpdated:
			updated++
		case marketo.SyncStatusFailed:
			failed++
			who := fmt.Sprintf("#%d", i+1)
			if i < len(batch) {
				who = describeLead(batch[i])
			}
			run.Errors = append(run.Errors, fmt.Sprintf("lead %s: %s", who, status.Error))
		}
	}
	run.LeadsCreated += created
	run.LeadsUpdated += updated
	run.LeadsFailed += failed

	log.WithFields(logrus.Fields{
		"batch":   number,
		"created": created,
		"updated": updated,
		"failed":  failed,
	}).Infof("Synced batch of %d leads", len(batch))

	e.cacheLeadIDs(synced, log)
}

func (e *Engine) cacheLeadIDs(leads []*marketo.Lead, log logrus.FieldLogger) {
	if e.store == nil {
		return
	}
	for _, lead := range leads {
		if lead.Email == "" || lead.ID == 0 {
			continue
		}
		if err := e.store.CacheLeadID(lead.Email, lead.ID); err != nil {
			log.Warnf("Failed to cache lead id for %s: %v", lead.Email, err)
		}
	}
}

func (e *Engine) finish(run *store.SyncRun, runErr error, log logrus.FieldLogger) {
	run.FinishedAt = e.now()

	if e.store != nil {
		if err := e.store.SaveRun(run); err != nil {
			log.Errorf("Failed to save sync run: %v", err)
		}
	}

	if e.observer != nil {
		e.observer.ObserveRun(run.Trigger, run.LeadsCreated, run.LeadsUpdated, run.LeadsFailed, runErr, run.FinishedAt)
	}

	log.Infof("Sync completed. Leads read: %d, Created: %d, Updated: %d, Failed: %d, Skipped: %d, Batches: %d, Errors: %d",
		run.LeadsRead, run.LeadsCreated, run.LeadsUpdated, run.LeadsFailed, run.LeadsSkipped, run.Batches, len(run.Errors))
}

func (e *Engine) batchSize() int {
	if e.config.Sync.BatchSize <= 0 {
		return 300
	}
	return e.config.Sync.BatchSize
}

// splitBatches cuts leads into consecutive batches of at most size leads
func splitBatches(leads []*marketo.Lead, size int) [][]*marketo.Lead {
	var batches [][]*marketo.Lead
	for start := 0; start < len(leads); start += size {
		end := start + size
		if end > len(leads) {
			end = len(leads)
		}
		batches = append(batches, leads[start:end])
	}
	return batches
}

func describeLead(lead *marketo.Lead) string {
	if lead.Email != "" {
		return lead.Email
	}
	return fmt.Sprintf("id %d", lead.ID)
}

// RetryWithBackoff executes a function with linear backoff retry logic
func (e *Engine) RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := operation(); err != nil {
			lastErr = err

			if attempt == maxAttempts {
				break
			}

			delay := time.Duration(attempt) * baseDelay
			e.logger.Warnf("Operation failed (attempt %d/%d), retrying in %v: %v",
				attempt, maxAttempts, delay, err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		return nil // Success
	}

	return fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}
