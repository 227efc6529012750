// Package resolve turns named features and administrative boundaries into
// gazetteer records.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm-gazetteer/internal/boundary"
	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/osmid"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
	"github.com/wegman-software/osm-gazetteer/internal/progress"
	"github.com/wegman-software/osm-gazetteer/internal/record"
)

// ErrAdminLevelRange is returned when a boundary's admin level collides
// with the building sentinel
var ErrAdminLevelRange = errors.New("admin level out of range")

// Options configures a Resolver
type Options struct {
	// BBox limits emitted features to a box; nil or unset means everywhere
	BBox *config.BBox
	// ProgressInterval sets how often feature progress is logged, defaults to 2s
	ProgressInterval time.Duration
}

// Stats counts resolver outcomes
type Stats struct {
	Features       int64 // feature records emitted
	Boundaries     int64 // boundary records emitted
	NoCoordinates  int64 // features without a resolvable coordinate
	OutsideBBox    int64
	BoundarySkips  int64 // boundaries without name, admin level or centre
	EmptyLocations int64 // feature records no boundary contains
}

// Resolver reads a frozen planet and boundary index. Its methods may be
// called from multiple goroutines.
type Resolver struct {
	planet *planet.Planet
	index  *boundary.Index
	opts   Options

	features       atomic.Int64
	boundaries     atomic.Int64
	noCoordinates  atomic.Int64
	outsideBBox    atomic.Int64
	boundarySkips  atomic.Int64
	emptyLocations atomic.Int64
}

// New creates a resolver
func New(p *planet.Planet, idx *boundary.Index, opts Options) *Resolver {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 2 * time.Second
	}
	return &Resolver{planet: p, index: idx, opts: opts}
}

// Feature resolves one named node or way. It returns false when the object
// is not a named feature, has no coordinate or lies outside the bbox.
func (r *Resolver) Feature(id osmid.ID) (record.Record, bool) {
	meta, ok := r.planet.Meta(id)
	if !ok {
		return record.Record{}, false
	}

	pt, ok := r.planet.ObjectCoordinates(id)
	if !ok {
		r.noCoordinates.Add(1)
		return record.Record{}, false
	}
	if !r.opts.BBox.Contains(pt.Lat(), pt.Lon()) {
		r.outsideBBox.Add(1)
		return record.Record{}, false
	}

	location := r.Chain(r.index.Containing(pt))
	if len(location) == 0 {
		r.emptyLocations.Add(1)
	}
	r.features.Add(1)

	return record.Record{
		Name:       meta.Name,
		AltName:    meta.AltName,
		Operator:   meta.Operator,
		OSMID:      id,
		Location:   location,
		Latitude:   record.Round(pt.Lat()),
		Longitude:  record.Round(pt.Lon()),
		AdminLevel: record.BuildingLevel,
	}, true
}

type level struct {
	name  string
	level uint8
}

// Chain orders the names of the given boundaries from most to least
// specific. Boundaries without a name or parseable admin level are left
// out; equal levels keep their input order.
func (r *Resolver) Chain(ids []osm.RelationID) []string {
	levels := make([]level, 0, len(ids))
	for _, id := range ids {
		b, ok := r.index.Boundary(id)
		if !ok {
			continue
		}
		name, ok := b.Name()
		if !ok {
			continue
		}
		lvl, ok := b.AdminLevel()
		if !ok {
			continue
		}
		levels = append(levels, level{name: name, level: lvl})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].level > levels[j].level
	})

	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.name
	}
	return names
}

// Features resolves every named feature across workers goroutines and
// sends the records to out. Records arrive in no particular order. out is
// not closed.
func (r *Resolver) Features(ctx context.Context, workers int, out chan<- record.Record) error {
	log := logger.Named("resolve")
	ids := r.planet.NamedFeatures()
	if workers < 1 {
		workers = 1
	}

	var done atomic.Int64
	tracker := progress.NewTracker(int64(len(ids)), "feature resolution")
	tickerCtx, cancelTicker := context.WithCancel(ctx)
	defer cancelTicker()
	go progress.Every(tickerCtx, r.opts.ProgressInterval, func() {
		s := tracker.Snapshot(done.Load(), done.Load())
		log.Debug("Feature resolution progress",
			zap.Int64("features", s.Items),
			zap.Int64("total", s.Total),
			zap.String("percent", progress.FormatPercent(s.Percentage)),
			zap.String("throughput", progress.FormatThroughput(s.Throughput)),
			zap.String("eta", progress.FormatETA(s.ETA)))
	})

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(ids) + workers - 1) / workers
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		part := ids[start:end]

		g.Go(func() error {
			for _, id := range part {
				rec, ok := r.Feature(id)
				done.Add(1)
				if !ok {
					continue
				}
				select {
				case out <- rec:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Features resolved",
		zap.Int("named", len(ids)),
		zap.Int64("emitted", r.features.Load()),
		zap.Int64("no_coordinates", r.noCoordinates.Load()),
		zap.Int64("outside_bbox", r.outsideBBox.Load()),
		zap.Int64("empty_location", r.emptyLocations.Load()))
	return nil
}

// Boundary builds the record of an administrative area. It returns false
// when the boundary lacks a name, admin level or centre, and an error when
// the admin level is not below record.BuildingLevel.
func (r *Resolver) Boundary(b *boundary.Boundary) (record.Record, bool, error) {
	name, ok := b.Name()
	if !ok {
		return record.Record{}, false, nil
	}
	lvl, ok := b.AdminLevel()
	if !ok {
		return record.Record{}, false, nil
	}
	if lvl >= record.BuildingLevel {
		return record.Record{}, false, fmt.Errorf("%w: relation %d has admin_level %d", ErrAdminLevelRange, b.ID, lvl)
	}

	centre, ok := r.index.AdminCentre(r.planet, b)
	if !ok {
		return record.Record{}, false, nil
	}

	return record.Record{
		Name:       name,
		OSMID:      osmid.RelationID(b.ID),
		Location:   []string{},
		Latitude:   record.Round(centre.Lat()),
		Longitude:  record.Round(centre.Lon()),
		AdminLevel: lvl,
	}, true, nil
}

// Boundaries sends one record per indexed boundary to out, in ascending
// relation id order. out is not closed.
func (r *Resolver) Boundaries(ctx context.Context, out chan<- record.Record) error {
	for _, b := range r.index.Boundaries() {
		rec, ok, err := r.Boundary(b)
		if err != nil {
			return err
		}
		if !ok {
			r.boundarySkips.Add(1)
			continue
		}
		if !r.opts.BBox.Contains(rec.Latitude, rec.Longitude) {
			r.outsideBBox.Add(1)
			continue
		}
		select {
		case out <- rec:
			r.boundaries.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Named("resolve").Info("Boundaries emitted",
		zap.Int("indexed", r.index.Len()),
		zap.Int64("emitted", r.boundaries.Load()),
		zap.Int64("skipped", r.boundarySkips.Load()))
	return nil
}

// Stats returns a snapshot of the counters
func (r *Resolver) Stats() Stats {
	return Stats{
		Features:       r.features.Load(),
		Boundaries:     r.boundaries.Load(),
		NoCoordinates:  r.noCoordinates.Load(),
		OutsideBBox:    r.outsideBBox.Load(),
		BoundarySkips:  r.boundarySkips.Load(),
		EmptyLocations: r.emptyLocations.Load(),
	}
}
