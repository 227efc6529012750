package proj

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRID constants for supported projections
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // Web Mercator
)

// maxLat keeps Web Mercator y finite
const maxLat = 85.06

// Transformer projects WGS84 coordinates into the target SRID
type Transformer struct {
	TargetSRID int
}

// NewTransformer creates a transformer from WGS84 to the target SRID
func NewTransformer(targetSRID int) (*Transformer, error) {
	if targetSRID != SRID4326 && targetSRID != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}
	return &Transformer{TargetSRID: targetSRID}, nil
}

// Transform converts a lon/lat point. Latitudes beyond the Mercator
// limit are clamped.
func (t *Transformer) Transform(p orb.Point) orb.Point {
	if !t.NeedsTransform() {
		return p
	}
	if p[1] > maxLat {
		p[1] = maxLat
	} else if p[1] < -maxLat {
		p[1] = -maxLat
	}
	return project.Point(p, project.WGS84.ToMercator)
}

// NeedsTransform returns true if transformation is required
func (t *Transformer) NeedsTransform() bool {
	return t.TargetSRID != SRID4326
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch s {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
