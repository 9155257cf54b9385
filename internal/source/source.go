// Package source reads leads from the systems marketo-sync imports from.
package source

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
)

// Source produces the leads to push into Marketo
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]*marketo.Lead, error)
}

// New creates the source selected by source.type
func New(cfg config.SourceConfig, logger logrus.FieldLogger) (Source, error) {
	switch cfg.Type {
	case "", config.SourceCSV:
		return NewCSVSource(cfg.CSV.Path, cfg.CSV.Types), nil
	case config.SourceS3:
		return NewS3Source(cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Key, cfg.S3.Types)
	case config.SourceGoogleWorkspace:
		gws := cfg.GoogleWorkspace
		return NewWorkspaceSource(gws.ServiceAccountKeyPath, gws.Domain, gws.SuperAdminEmail, gws.Groups, logger)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}
