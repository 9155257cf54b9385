package server

import (
	"context"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

// SyncEngine interface for sync operations
type SyncEngine interface {
	Run(ctx context.Context, trigger string) (*store.SyncRun, error)
}

// LeadService interface for direct lead operations
type LeadService interface {
	GetByKey(ctx context.Context, typeOrName, value string) (*marketo.Lead, error)
	Sync(ctx context.Context, lead *marketo.Lead) (*marketo.Lead, error)
	SyncMultiple(ctx context.Context, leads []*marketo.Lead, opts ...marketo.SyncOption) ([]*marketo.Lead, []marketo.SyncStatus, error)
}

// RunHistory interface for stored sync runs
type RunHistory interface {
	Runs(limit int) ([]*store.SyncRun, error)
}
