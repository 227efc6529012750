// Package sink writes gazetteer records to files and databases.
package sink

import (
	"context"
	"fmt"

	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/record"
)

// Sink consumes records from a single goroutine
type Sink interface {
	Write(r *record.Record) error
	// Close flushes pending rows and releases resources
	Close() error
}

// Open creates the sink selected by cfg.Format
func Open(ctx context.Context, cfg *config.Config) (Sink, error) {
	switch cfg.Format {
	case config.FormatCSV:
		return NewCSV(cfg.OutputFile)
	case config.FormatParquet:
		return NewParquet(cfg.OutputFile, cfg.BatchSize)
	case config.FormatPostgres:
		return NewPostgres(ctx, cfg)
	case config.FormatRedis:
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}
