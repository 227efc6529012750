package sink

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/osm-gazetteer/internal/boundary"
	"github.com/wegman-software/osm-gazetteer/internal/osmid"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
)

// RingCollection builds one LineString feature per assembled ring. Ring
// nodes missing from the planet are left out of the line.
func RingCollection(p *planet.Planet, idx *boundary.Index) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range idx.Boundaries() {
		name, _ := b.Name()
		for _, ring := range b.Rings {
			ls := p.LineString(ring)
			if len(ls) < 2 {
				continue
			}
			f := geojson.NewFeature(ls)
			f.Properties["osm_id"] = osmid.RelationID(b.ID).String()
			f.Properties["name"] = name
			if level, ok := b.AdminLevel(); ok {
				f.Properties["admin_level"] = level
			} else {
				f.Properties["admin_level"] = nil
			}
			fc.Append(f)
		}
	}
	return fc
}

// WriteRings writes the ring collection as a single GeoJSON document
func WriteRings(w io.Writer, p *planet.Planet, idx *boundary.Index) (int, error) {
	fc := RingCollection(p, idx)
	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to encode rings: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return 0, err
	}
	return len(fc.Features), nil
}
