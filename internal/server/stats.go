package server

import (
	"sync"
	"time"

	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

// Stats tracks sync run totals since the server started
type Stats struct {
	mu                  sync.RWMutex
	totalSyncs          int
	successfulSyncs     int
	failedSyncs         int
	totalLeadsRead      int
	totalLeadsCreated   int
	totalLeadsUpdated   int
	totalLeadsFailed    int
	totalLeadsSkipped   int
	lastSyncDuration    time.Duration
	averageSyncDuration time.Duration
	lastSyncTime        *time.Time
	lastError           string
	uptime              time.Time
}

// StatsSnapshot represents the current sync statistics
type StatsSnapshot struct {
	TotalSyncs          int           `json:"total_syncs"`
	SuccessfulSyncs     int           `json:"successful_syncs"`
	FailedSyncs         int           `json:"failed_syncs"`
	SuccessRate         float64       `json:"success_rate"`
	TotalLeadsRead      int           `json:"total_leads_read"`
	TotalLeadsCreated   int           `json:"total_leads_created"`
	TotalLeadsUpdated   int           `json:"total_leads_updated"`
	TotalLeadsFailed    int           `json:"total_leads_failed"`
	TotalLeadsSkipped   int           `json:"total_leads_skipped"`
	LastSyncDuration    time.Duration `json:"last_sync_duration"`
	AverageSyncDuration time.Duration `json:"average_sync_duration"`
	LastSyncTime        *time.Time    `json:"last_sync_time"`
	LastError           string        `json:"last_error,omitempty"`
	Uptime              time.Duration `json:"uptime"`
}

// NewStats creates a new stats tracker
func NewStats() *Stats {
	return &Stats{
		uptime: time.Now(),
	}
}

// RecordRun records a finished sync run. A run counts as failed when it
// returned an error or recorded lead errors.
func (m *Stats) RecordRun(run *store.SyncRun, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSyncs++

	var duration time.Duration
	if run != nil {
		duration = run.Duration()
		m.totalLeadsRead += run.LeadsRead
		m.totalLeadsCreated += run.LeadsCreated
		m.totalLeadsUpdated += run.LeadsUpdated
		m.totalLeadsFailed += run.LeadsFailed
		m.totalLeadsSkipped += run.LeadsSkipped
	}

	switch {
	case runErr != nil:
		m.failedSyncs++
		m.lastError = runErr.Error()
	case run != nil && len(run.Errors) > 0:
		m.failedSyncs++
		m.lastError = run.Errors[0] // Store first error
	default:
		m.successfulSyncs++
		m.lastError = ""
	}

	m.lastSyncDuration = duration
	totalDuration := time.Duration(int64(m.averageSyncDuration) * int64(m.totalSyncs-1))
	m.averageSyncDuration = (totalDuration + duration) / time.Duration(m.totalSyncs)

	now := time.Now()
	m.lastSyncTime = &now
}

// GetStats returns the current statistics
func (m *Stats) GetStats() *StatsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var successRate float64
	if m.totalSyncs > 0 {
		successRate = float64(m.successfulSyncs) / float64(m.totalSyncs) * 100
	}

	return &StatsSnapshot{
		TotalSyncs:          m.totalSyncs,
		SuccessfulSyncs:     m.successfulSyncs,
		FailedSyncs:         m.failedSyncs,
		SuccessRate:         successRate,
		TotalLeadsRead:      m.totalLeadsRead,
		TotalLeadsCreated:   m.totalLeadsCreated,
		TotalLeadsUpdated:   m.totalLeadsUpdated,
		TotalLeadsFailed:    m.totalLeadsFailed,
		TotalLeadsSkipped:   m.totalLeadsSkipped,
		LastSyncDuration:    m.lastSyncDuration,
		AverageSyncDuration: m.averageSyncDuration,
		LastSyncTime:        m.lastSyncTime,
		LastError:           m.lastError,
		Uptime:              time.Since(m.uptime),
	}
}

// Reset resets all statistics
func (m *Stats) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSyncs = 0
	m.successfulSyncs = 0
	m.failedSyncs = 0
	m.totalLeadsRead = 0
	m.totalLeadsCreated = 0
	m.totalLeadsUpdated = 0
	m.totalLeadsFailed = 0
	m.totalLeadsSkipped = 0
	m.lastSyncDuration = 0
	m.averageSyncDuration = 0
	m.lastSyncTime = nil
	m.lastError = ""
	m.uptime = time.Now()
}
