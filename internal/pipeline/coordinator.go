// Package pipeline wires the planet store, boundary index, resolver and
// sinks into the gazetteer commands.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm-gazetteer/internal/boundary"
	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/metrics"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
	"github.com/wegman-software/osm-gazetteer/internal/record"
	"github.com/wegman-software/osm-gazetteer/internal/resolve"
	"github.com/wegman-software/osm-gazetteer/internal/selection"
	"github.com/wegman-software/osm-gazetteer/internal/sink"
	"github.com/wegman-software/osm-gazetteer/internal/source"
)

// channelBuffer is the capacity of the resolver to sink channel
const channelBuffer = 10000

// Coordinator orchestrates a gazetteer run
type Coordinator struct {
	cfg       *config.Config
	selection *selection.Selection
	openSink  func(context.Context, *config.Config) (sink.Sink, error)
}

// NewCoordinator compiles the tag selection and prepares a run
func NewCoordinator(cfg *config.Config) (*Coordinator, error) {
	selCfg := selection.DefaultConfig()
	if cfg.SelectionFile != "" {
		var err error
		selCfg, err = selection.LoadConfig(cfg.SelectionFile)
		if err != nil {
			return nil, err
		}
	}

	return &Coordinator{
		cfg:       cfg,
		selection: selection.New(selCfg),
		openSink:  sink.Open,
	}, nil
}

// startMetrics runs the system collector and the optional /metrics
// endpoint until ctx is cancelled
func (c *Coordinator) startMetrics(ctx context.Context) {
	log := logger.Get()

	if c.cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(c.cfg.MetricsInterval, logger.Named("metrics"))
		go collector.Start(ctx)
		log.Info("System metrics collection started",
			zap.Duration("interval", c.cfg.MetricsInterval))
	}

	if c.cfg.MetricsAddr != "" {
		if _, err := metrics.Serve(ctx, c.cfg.MetricsAddr); err != nil {
			log.Warn("Metrics endpoint disabled", zap.String("addr", c.cfg.MetricsAddr), zap.Error(err))
		}
	}
}

// Run builds the planet from the configured input, resolves every record
// and writes it to the configured sink
func (c *Coordinator) Run(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.startMetrics(ctx)

	in, err := source.Open(ctx, c.cfg.InputFile, c.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	stats := &Stats{BytesRead: in.Size}
	p, idx, err := c.Build(ctx, in, in.Size, stats)
	if err != nil {
		return nil, err
	}

	s, err := c.openSink(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", c.cfg.Format, err)
	}

	if err := c.Emit(ctx, p, idx, s, stats); err != nil {
		// a cancelled context keeps the sink from committing partial output
		cancel()
		s.Close()
		return nil, err
	}
	if err := s.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s sink: %w", c.cfg.Format, err)
	}

	return stats, nil
}

// Build loads the planet and indexes its boundaries
func (c *Coordinator) Build(ctx context.Context, r io.Reader, size int64, stats *Stats) (*planet.Planet, *boundary.Index, error) {
	loadStart := time.Now()
	p, err := planet.Load(ctx, r, size, planet.LoadOptions{
		Selection: c.selection,
		Procs:     c.cfg.Workers,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("planet load failed: %w", err)
	}
	stats.Durations.Load = time.Since(loadStart)
	stats.Planet = p.Counts()
	metrics.PhaseSeconds.WithLabelValues("load").Set(stats.Durations.Load.Seconds())
	metrics.PlanetObjects.WithLabelValues("node").Set(float64(stats.Planet.Nodes))
	metrics.PlanetObjects.WithLabelValues("way").Set(float64(stats.Planet.Ways))
	metrics.PlanetObjects.WithLabelValues("relation").Set(float64(stats.Planet.Relations))
	metrics.PlanetObjects.WithLabelValues("named").Set(float64(stats.Planet.Named))

	indexStart := time.Now()
	idx, indexStats, err := boundary.Build(ctx, p, c.selection)
	if err != nil {
		return nil, nil, fmt.Errorf("boundary index failed: %w", err)
	}
	stats.Durations.Index = time.Since(indexStart)
	stats.Index = indexStats
	metrics.PhaseSeconds.WithLabelValues("index").Set(stats.Durations.Index.Seconds())
	metrics.BoundariesIndexed.Set(float64(indexStats.Indexed))
	metrics.BoundariesSkipped.Set(float64(indexStats.Skipped))

	return p, idx, nil
}

// Emit resolves features, then boundaries when enabled, and streams the
// records to s from a single goroutine. s is not closed.
func (c *Coordinator) Emit(ctx context.Context, p *planet.Planet, idx *boundary.Index, s sink.Sink, stats *Stats) error {
	log := logger.Get()
	start := time.Now()

	res := resolve.New(p, idx, resolve.Options{BBox: c.cfg.BBox})
	written := metrics.RecordsWritten.WithLabelValues(c.cfg.Format)

	out := make(chan record.Record, channelBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(out)
		if err := res.Features(gctx, c.cfg.Workers, out); err != nil {
			return fmt.Errorf("feature resolution failed: %w", err)
		}
		if !c.cfg.Boundaries {
			return nil
		}
		if err := res.Boundaries(gctx, out); err != nil {
			return fmt.Errorf("boundary emission failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for rec := range out {
			if err := s.Write(&rec); err != nil {
				return fmt.Errorf("sink write failed for %s: %w", rec.OSMID, err)
			}
			stats.Written++
			written.Inc()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	stats.Resolve = res.Stats()
	stats.Durations.Resolve = time.Since(start)
	metrics.PhaseSeconds.WithLabelValues("resolve").Set(stats.Durations.Resolve.Seconds())
	metrics.FeaturesResolved.Add(float64(stats.Resolve.Features))
	metrics.FeaturesSkipped.WithLabelValues("no_coordinates").Add(float64(stats.Resolve.NoCoordinates))
	metrics.FeaturesSkipped.WithLabelValues("outside_bbox").Add(float64(stats.Resolve.OutsideBBox))

	log.Info("Records written",
		zap.String("format", c.cfg.Format),
		zap.Int64("records", stats.Written),
		zap.Int64("features", stats.Resolve.Features),
		zap.Int64("boundaries", stats.Resolve.Boundaries),
		zap.Duration("duration", stats.Durations.Resolve.Round(time.Millisecond)))
	return nil
}

// DumpRings builds the planet and writes every assembled boundary ring to
// w as GeoJSON
func (c *Coordinator) DumpRings(ctx context.Context, w io.Writer) (*Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.startMetrics(ctx)

	in, err := source.Open(ctx, c.cfg.InputFile, c.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	stats := &Stats{BytesRead: in.Size}
	p, idx, err := c.Build(ctx, in, in.Size, stats)
	if err != nil {
		return nil, err
	}

	n, err := sink.WriteRings(w, p, idx)
	if err != nil {
		return nil, err
	}
	stats.Written = int64(n)
	return stats, nil
}
