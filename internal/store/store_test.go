package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "sync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)

	if runs, err := s.Runs(10); err != nil || len(runs) != 0 {
		t.Fatalf("Expected no runs in a new store, got %v, %v", runs, err)
	}
	if _, err := s.LastRun(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for LastRun, got %v", err)
	}

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &SyncRun{
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			FinishedAt:   base.Add(time.Duration(i)*time.Hour + time.Minute),
			Source:       "csv:leads.csv",
			Trigger:      "schedule",
			LeadsCreated: i,
		}
		if err := s.SaveRun(run); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
		if run.ID == 0 {
			t.Error("Expected run id to be assigned")
		}
	}

	runs, err := s.Runs(2)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].LeadsCreated != 2 || runs[1].LeadsCreated != 1 {
		t.Errorf("Expected newest first, got %d then %d", runs[0].LeadsCreated, runs[1].LeadsCreated)
	}

	last, err := s.LastRun()
	if err != nil {
		t.Fatalf("Failed to get last run: %v", err)
	}
	if last.Duration() != time.Minute {
		t.Errorf("Expected 1m duration, got %v", last.Duration())
	}

	all, err := s.Runs(0)
	if err != nil || len(all) != 3 {
		t.Errorf("Expected all 3 runs, got %d, %v", len(all), err)
	}
}

func TestLeadIDCache(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.LeadID("jane@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on miss, got %v", err)
	}

	if err := s.CacheLeadID("Jane@Example.com ", 1089); err != nil {
		t.Fatalf("Failed to cache lead id: %v", err)
	}
	id, err := s.LeadID("jane@example.com")
	if err != nil {
		t.Fatalf("Failed to read lead id: %v", err)
	}
	if id != 1089 {
		t.Errorf("Expected 1089, got %d", id)
	}

	if err := s.CacheLeadID("jane@example.com", 2000); err != nil {
		t.Fatalf("Failed to update lead id: %v", err)
	}
	if id, _ := s.LeadID("JANE@example.com"); id != 2000 {
		t.Errorf("Expected updated id 2000, got %d", id)
	}
}
