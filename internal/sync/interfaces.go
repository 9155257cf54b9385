package sync

import (
	"context"
	"time"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

// LeadSyncer pushes lead batches to Marketo
type LeadSyncer interface {
	SyncMultiple(ctx context.Context, leads []*marketo.Lead, opts ...marketo.SyncOption) ([]*marketo.Lead, []marketo.SyncStatus, error)
}

// RunStore records run history and the lead id cache
type RunStore interface {
	SaveRun(run *store.SyncRun) error
	CacheLeadID(email string, leadID int64) error
}

// RunObserver is told about every finished run
type RunObserver interface {
	ObserveRun(trigger string, created, updated, failed int, runErr error, finished time.Time)
}
