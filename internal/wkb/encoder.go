// Package wkb encodes record coordinates as PostGIS EWKB.
package wkb

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"

	"github.com/wegman-software/osm-gazetteer/internal/proj"
)

// Encoder encodes WGS84 points as EWKB in the configured SRID
type Encoder struct {
	transformer *proj.Transformer
}

// NewEncoder creates an encoder for the given SRID (4326 or 3857)
func NewEncoder(srid int) (*Encoder, error) {
	t, err := proj.NewTransformer(srid)
	if err != nil {
		return nil, err
	}
	return &Encoder{transformer: t}, nil
}

// SRID returns the encoder's output SRID
func (e *Encoder) SRID() int {
	return e.transformer.TargetSRID
}

// EncodePoint projects and encodes a lon/lat point, little-endian with SRID
func (e *Encoder) EncodePoint(lon, lat float64) ([]byte, error) {
	p := e.transformer.Transform(orb.Point{lon, lat})
	return ewkb.Marshal(p, e.SRID())
}
