package pipeline

import (
	"time"

	"github.com/wegman-software/osm-gazetteer/internal/boundary"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
	"github.com/wegman-software/osm-gazetteer/internal/resolve"
)

// Durations records wall time per phase
type Durations struct {
	Load    time.Duration
	Index   time.Duration
	Resolve time.Duration
}

// Stats holds combined statistics of a gazetteer run
type Stats struct {
	BytesRead int64
	Planet    planet.Counts
	Index     boundary.Stats
	Resolve   resolve.Stats
	Written   int64
	Durations Durations
}

// LoadStats holds statistics of a CSV reload
type LoadStats struct {
	Rows     int64
	Duration time.Duration
}
