package server

import (
	"errors"
	"testing"
	"time"

	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

func testRun(created, updated, failed int, duration time.Duration, errs ...string) *store.SyncRun {
	started := time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)
	return &store.SyncRun{
		StartedAt:    started,
		FinishedAt:   started.Add(duration),
		LeadsRead:    created + updated + failed,
		LeadsCreated: created,
		LeadsUpdated: updated,
		LeadsFailed:  failed,
		Errors:       errs,
	}
}

func TestNewStats(t *testing.T) {
	stats := NewStats()

	if stats == nil {
		t.Fatal("Expected stats to be created, got nil")
	}

	if stats.uptime.IsZero() {
		t.Error("Expected uptime to be set")
	}

	if time.Since(stats.uptime) > time.Second {
		t.Error("Expected uptime to be recent")
	}
}

func TestRecordRun(t *testing.T) {
	stats := NewStats()

	stats.RecordRun(testRun(5, 3, 0, 100*time.Millisecond), nil)

	snapshot := stats.GetStats()
	if snapshot.TotalSyncs != 1 || snapshot.SuccessfulSyncs != 1 || snapshot.FailedSyncs != 0 {
		t.Errorf("Expected 1 successful sync, got %+v", snapshot)
	}
	if snapshot.TotalLeadsCreated != 5 {
		t.Errorf("Expected 5 leads created, got %d", snapshot.TotalLeadsCreated)
	}
	if snapshot.TotalLeadsUpdated != 3 {
		t.Errorf("Expected 3 leads updated, got %d", snapshot.TotalLeadsUpdated)
	}
	if snapshot.TotalLeadsRead != 8 {
		t.Errorf("Expected 8 leads read, got %d", snapshot.TotalLeadsRead)
	}
	if snapshot.LastSyncDuration != 100*time.Millisecond {
		t.Errorf("Expected last duration 100ms, got %v", snapshot.LastSyncDuration)
	}
	if snapshot.LastSyncTime == nil {
		t.Error("Expected last sync time to be set")
	}
	if snapshot.SuccessRate != 100 {
		t.Errorf("Expected success rate 100, got %f", snapshot.SuccessRate)
	}
}

func TestRecordRun_Failures(t *testing.T) {
	stats := NewStats()

	stats.RecordRun(testRun(1, 0, 1, 100*time.Millisecond, "lead a@example.com: rejected"), nil)
	snapshot := stats.GetStats()
	if snapshot.FailedSyncs != 1 {
		t.Errorf("Expected run with lead errors to count as failed, got %d", snapshot.FailedSyncs)
	}
	if snapshot.LastError != "lead a@example.com: rejected" {
		t.Errorf("Expected first run error as last error, got %q", snapshot.LastError)
	}

	stats.RecordRun(nil, errors.New("source unavailable"))
	snapshot = stats.GetStats()
	if snapshot.FailedSyncs != 2 || snapshot.LastError != "source unavailable" {
		t.Errorf("Expected 2 failed syncs with source error, got %+v", snapshot)
	}

	stats.RecordRun(testRun(1, 0, 0, 400*time.Millisecond), nil)
	snapshot = stats.GetStats()
	if snapshot.LastError != "" {
		t.Errorf("Expected successful sync to clear last error, got %q", snapshot.LastError)
	}
	if snapshot.TotalSyncs != 3 {
		t.Errorf("Expected 3 syncs, got %d", snapshot.TotalSyncs)
	}
	if snapshot.SuccessRate < 33 || snapshot.SuccessRate > 34 {
		t.Errorf("Expected success rate of about 33.3, got %f", snapshot.SuccessRate)
	}
}

func TestAverageSyncDuration(t *testing.T) {
	stats := NewStats()

	stats.RecordRun(testRun(1, 0, 0, 100*time.Millisecond), nil)
	stats.RecordRun(testRun(1, 0, 0, 300*time.Millisecond), nil)

	if avg := stats.GetStats().AverageSyncDuration; avg != 200*time.Millisecond {
		t.Errorf("Expected average duration 200ms, got %v", avg)
	}
}

func TestStatsReset(t *testing.T) {
	stats := NewStats()
	stats.RecordRun(testRun(2, 1, 0, time.Second), nil)

	stats.Reset()

	snapshot := stats.GetStats()
	if snapshot.TotalSyncs != 0 || snapshot.TotalLeadsCreated != 0 {
		t.Errorf("Expected reset stats, got %+v", snapshot)
	}
	if snapshot.LastSyncTime != nil {
		t.Error("Expected last sync time to be cleared")
	}
}
