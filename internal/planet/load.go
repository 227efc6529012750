package planet

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/progress"
	"github.com/wegman-software/osm-gazetteer/internal/selection"
)

// LoadOptions controls PBF ingestion
type LoadOptions struct {
	Selection *selection.Selection
	Procs     int           // decoder goroutines, defaults to NumCPU
	Interval  time.Duration // progress log interval, defaults to 2s
}

// Load decodes a PBF stream into a frozen Planet. size is the stream
// length in bytes and only drives progress estimates; pass 0 if unknown.
func Load(ctx context.Context, r io.Reader, size int64, opts LoadOptions) (*Planet, error) {
	log := logger.Named("planet")

	procs := opts.Procs
	if procs <= 0 {
		procs = runtime.NumCPU()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	scanner := osmpbf.New(ctx, r, procs)
	defer scanner.Close()

	b := NewBuilder(opts.Selection)
	tracker := progress.NewTracker(size, "planet load")
	var count atomic.Int64

	tickerCtx, cancelTicker := context.WithCancel(ctx)
	defer cancelTicker()
	go progress.Every(tickerCtx, interval, func() {
		scanned := scanner.FullyScannedBytes()
		s := tracker.Snapshot(count.Load(), scanned)
		log.Debug("Planet load progress",
			zap.Int64("objects", s.Items),
			zap.String("processed", progress.FormatBytes(scanned)),
			zap.String("total", progress.FormatBytes(size)),
			zap.String("percent", progress.FormatPercent(s.Percentage)),
			zap.String("throughput", progress.FormatThroughput(s.Throughput)),
			zap.String("eta", progress.FormatETA(s.ETA)))
	})

	for scanner.Scan() {
		if err := b.Insert(scanner.Object()); err != nil {
			return nil, fmt.Errorf("insert failed: %w", err)
		}
		count.Add(1)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("pbf decode failed: %w", err)
	}

	p := b.Planet()
	c := p.Counts()
	log.Info("Planet loaded",
		zap.Int("nodes", c.Nodes),
		zap.Int("ways", c.Ways),
		zap.Int("relations", c.Relations),
		zap.Int("named_features", c.Named))

	return p, nil
}
