package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/metrics"
	"github.com/wegman-software/osm-gazetteer/internal/record"
	"github.com/wegman-software/osm-gazetteer/internal/sink"
)

// LoadCSV copies a gazetteer CSV file into the configured sink
func (c *Coordinator) LoadCSV(ctx context.Context, path string) (*LoadStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	s, err := c.openSink(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", c.cfg.Format, err)
	}

	stats, err := c.Copy(ctx, f, s)
	if err != nil {
		cancel()
		s.Close()
		return nil, err
	}
	if err := s.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s sink: %w", c.cfg.Format, err)
	}
	return stats, nil
}

// Copy streams CSV rows from r into s. s is not closed.
func (c *Coordinator) Copy(ctx context.Context, r io.Reader, s sink.Sink) (*LoadStats, error) {
	log := logger.Get()
	start := time.Now()

	reader, err := record.NewCSVReader(r)
	if err != nil {
		return nil, err
	}
	written := metrics.RecordsWritten.WithLabelValues(c.cfg.Format)

	stats := &LoadStats{}
	for {
		if stats.Rows%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := s.Write(&rec); err != nil {
			return nil, fmt.Errorf("sink write failed for %s: %w", rec.OSMID, err)
		}
		stats.Rows++
		written.Inc()
	}

	stats.Duration = time.Since(start)
	log.Info("CSV load complete",
		zap.String("format", c.cfg.Format),
		zap.Int64("rows", stats.Rows),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))
	return stats, nil
}
