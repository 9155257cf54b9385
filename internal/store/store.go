package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// SyncRun records one lead sync run
type SyncRun struct {
	ID           int       `storm:"id,increment" json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Source       string    `json:"source"`
	Trigger      string    `storm:"index" json:"trigger"`
	DryRun       bool      `json:"dry_run"`
	LeadsRead    int       `json:"leads_read"`
	LeadsCreated int       `json:"leads_created"`
	LeadsUpdated int       `json:"leads_updated"`
	LeadsFailed  int       `json:"leads_failed"`
	LeadsSkipped int       `json:"leads_skipped"`
	Batches      int       `json:"batches"`
	Errors       []string  `json:"errors,omitempty"`
}

// Duration returns how long the run took
func (r *SyncRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// cachedLead maps a lead email to its Marketo id
type cachedLead struct {
	Email     string `storm:"id"`
	LeadID    int64
	UpdatedAt time.Time
}

// Store persists sync run history and the lead id cache
type Store struct {
	db *storm.DB
}

// Open opens or creates the store at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := storm.Open(path, storm.BoltOptions(0600, &bolt.Options{
		Timeout: 1 * time.Second,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts or updates a sync run
func (s *Store) SaveRun(run *SyncRun) error {
	if err := s.db.Save(run); err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// Runs returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *Store) Runs(limit int) ([]*SyncRun, error) {
	query := s.db.Select(q.True()).OrderBy("ID").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []*SyncRun
	if err := query.Find(&runs); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return []*SyncRun{}, nil
		}
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent run
func (s *Store) LastRun() (*SyncRun, error) {
	runs, err := s.Runs(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// CacheLeadID remembers the Marketo id for an email
func (s *Store) CacheLeadID(email string, leadID int64) error {
	entry := &cachedLead{
		Email:     normalizeEmail(email),
		LeadID:    leadID,
		UpdatedAt: time.Now(),
	}
	if err := s.db.Save(entry); err != nil {
		return fmt.Errorf("failed to cache lead id for %s: %w", email, err)
	}
	return nil
}

// LeadID returns the cached Marketo id for an email
func (s *Store) LeadID(email string) (int64, error) {
	var entry cachedLead
	if err := s.db.One("Email", normalizeEmail(email), &entry); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to read lead id for %s: %w", email, err)
	}
	return entry.LeadID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
