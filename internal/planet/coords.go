package planet

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osm-gazetteer/internal/osmid"
)

// NodeCoordinates returns the node position as lon/lat
func (p *Planet) NodeCoordinates(id osm.NodeID) (orb.Point, bool) {
	n, ok := p.nodes[id]
	if !ok {
		return orb.Point{}, false
	}
	return orb.Point{n.Lon, n.Lat}, true
}

// ObjectCoordinates returns a representative point for a node or way.
// Relations have none; see boundary.Index.AdminCentre.
func (p *Planet) ObjectCoordinates(id osmid.ID) (orb.Point, bool) {
	switch id.Kind {
	case osmid.Node:
		return p.NodeCoordinates(osm.NodeID(id.Ref))
	case osmid.Way:
		w, ok := p.ways[osm.WayID(id.Ref)]
		if !ok {
			return orb.Point{}, false
		}
		return p.wayCentroid(w)
	default:
		return orb.Point{}, false
	}
}

// LineString resolves node references, dropping the ones not in the store
func (p *Planet) LineString(nodes []osm.NodeID) orb.LineString {
	ls := make(orb.LineString, 0, len(nodes))
	for _, id := range nodes {
		if pt, ok := p.NodeCoordinates(id); ok {
			ls = append(ls, pt)
		}
	}
	return ls
}

// wayCentroid is the length-weighted centroid of the resolvable part of
// the polyline
func (p *Planet) wayCentroid(w *Way) (orb.Point, bool) {
	ls := p.LineString(w.Nodes)

	switch {
	case len(ls) == 0:
		return orb.Point{}, false
	case len(ls) == 1:
		return ls[0], true
	case planar.Length(ls) == 0:
		return meanPoint(ls), true
	}

	c, _ := planar.CentroidArea(ls)
	return c, true
}

func meanPoint(pts []orb.Point) orb.Point {
	var x, y float64
	for _, pt := range pts {
		x += pt[0]
		y += pt[1]
	}
	n := float64(len(pts))
	return orb.Point{x / n, y / n}
}
