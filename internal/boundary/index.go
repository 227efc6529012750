// Package boundary realizes administrative relations as polygons and
// answers point containment queries against them.
package boundary

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/osmid"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
	"github.com/wegman-software/osm-gazetteer/internal/rings"
	"github.com/wegman-software/osm-gazetteer/internal/selection"
)

// pad keeps degenerate bounding boxes valid for the R-tree
const pad = 1e-9

// Boundary is an indexed relation with its realized outer rings
type Boundary struct {
	ID      osm.RelationID
	Tags    map[string]string
	Rings   []rings.Ring
	Polygon orb.MultiPolygon
	Bound   orb.Bound
}

// Name returns the name tag, if any
func (b *Boundary) Name() (string, bool) {
	name := b.Tags["name"]
	return name, name != ""
}

// AdminLevel parses the admin_level tag
func (b *Boundary) AdminLevel() (uint8, bool) {
	v, ok := b.Tags["admin_level"]
	if !ok {
		return 0, false
	}
	level, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(level), true
}

// Stats counts what happened while building the index
type Stats struct {
	Candidates   int // relations matching the boundary selection
	Indexed      int
	Skipped      int // assembly failed or no ring could be realized
	DroppedRings int // rings referencing nodes missing from the planet
}

// Index holds boundaries in ascending relation id order
type Index struct {
	boundaries []*Boundary
	byID       map[osm.RelationID]int
	tree       *rtreego.Rtree
}

// entry is one polygon of a boundary in the R-tree
type entry struct {
	boundary int
	rect     rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Build assembles every relation selected as a boundary. Relations whose
// rings cannot be assembled are skipped; role violations abort the build.
func Build(ctx context.Context, p *planet.Planet, sel *selection.Selection) (*Index, Stats, error) {
	log := logger.Named("boundary")
	if sel == nil {
		sel = selection.Default()
	}

	var stats Stats
	idx := &Index{byID: make(map[osm.RelationID]int)}
	var objs []rtreego.Spatial

	for i, id := range p.RelationIDs() {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		rel, _ := p.Relation(id)
		if !sel.Boundaries.Match(rel.Tags) {
			continue
		}
		stats.Candidates++

		assembled, err := rings.Assemble(p, rel)
		if err != nil {
			if rings.Skippable(err) {
				log.Debug("Skipping boundary", zap.Int64("relation", int64(id)), zap.Error(err))
				stats.Skipped++
				continue
			}
			return nil, stats, err
		}

		b := &Boundary{ID: id, Tags: rel.Tags}
		for _, r := range assembled {
			ring, ok := realize(p, r)
			if !ok {
				stats.DroppedRings++
				continue
			}
			b.Rings = append(b.Rings, r)
			b.Polygon = append(b.Polygon, orb.Polygon{ring})
		}
		if len(b.Polygon) == 0 {
			log.Debug("Skipping boundary without resolvable rings", zap.Int64("relation", int64(id)))
			stats.Skipped++
			continue
		}
		b.Bound = b.Polygon.Bound()

		n := len(idx.boundaries)
		for _, poly := range b.Polygon {
			rect, err := toRect(poly.Bound())
			if err != nil {
				return nil, stats, err
			}
			objs = append(objs, &entry{boundary: n, rect: rect})
		}
		idx.byID[id] = n
		idx.boundaries = append(idx.boundaries, b)
		stats.Indexed++
	}

	idx.tree = rtreego.NewTree(2, 25, 50, objs...)

	log.Info("Boundary index built",
		zap.Int("candidates", stats.Candidates),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("dropped_rings", stats.DroppedRings))

	return idx, stats, nil
}

// realize resolves node ids to points; any missing node drops the ring
func realize(p *planet.Planet, r rings.Ring) (orb.Ring, bool) {
	ring := make(orb.Ring, 0, len(r))
	for _, id := range r {
		pt, ok := p.NodeCoordinates(id)
		if !ok {
			return nil, false
		}
		ring = append(ring, pt)
	}
	return ring, true
}

func toRect(b orb.Bound) (rtreego.Rect, error) {
	min := rtreego.Point{b.Min[0] - pad, b.Min[1] - pad}
	max := rtreego.Point{b.Max[0] + pad, b.Max[1] + pad}
	return rtreego.NewRectFromPoints(min, max)
}

// Len returns the number of indexed boundaries
func (idx *Index) Len() int {
	return len(idx.boundaries)
}

// Boundaries returns all boundaries in ascending relation id order.
// The returned slice must not be modified.
func (idx *Index) Boundaries() []*Boundary {
	return idx.boundaries
}

// Boundary looks up an indexed relation
func (idx *Index) Boundary(id osm.RelationID) (*Boundary, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return idx.boundaries[i], true
}

// Containing returns the relations whose polygons contain pt, boundary
// included, in index order. Each relation appears at most once.
func (idx *Index) Containing(pt orb.Point) []osm.RelationID {
	if idx.tree == nil || idx.tree.Size() == 0 {
		return nil
	}

	hits := idx.tree.SearchIntersect(rtreego.Point{pt[0], pt[1]}.ToRect(pad))
	if len(hits) == 0 {
		return nil
	}

	candidates := make([]int, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, h.(*entry).boundary)
	}
	sort.Ints(candidates)

	var ids []osm.RelationID
	prev := -1
	for _, c := range candidates {
		if c == prev {
			continue
		}
		prev = c
		b := idx.boundaries[c]
		if planar.MultiPolygonContains(b.Polygon, pt) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// ContainingLinear is Containing without the R-tree prefilter
func (idx *Index) ContainingLinear(pt orb.Point) []osm.RelationID {
	var ids []osm.RelationID
	for _, b := range idx.boundaries {
		if planar.MultiPolygonContains(b.Polygon, pt) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// AdminCentre returns the first admin_centre member that resolves to a
// coordinate, falling back to the centroid of the boundary's polygons
func (idx *Index) AdminCentre(p *planet.Planet, b *Boundary) (orb.Point, bool) {
	if rel, ok := p.Relation(b.ID); ok {
		for _, m := range rel.Members {
			if m.Role != rings.RoleAdminCentre || m.ID.Kind == osmid.Relation {
				continue
			}
			if pt, ok := p.ObjectCoordinates(m.ID); ok {
				return pt, true
			}
		}
	}

	if len(b.Polygon) == 0 {
		return orb.Point{}, false
	}
	c, _ := planar.CentroidArea(b.Polygon)
	if math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return b.Bound.Center(), true
	}
	return c, true
}
