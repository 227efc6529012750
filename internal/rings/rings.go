// Package rings stitches the outer way members of a relation into closed rings.
package rings

import (
	"errors"
	"fmt"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osm-gazetteer/internal/osmid"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
)

// Member roles
const (
	RoleOuter       = "outer"
	RoleInner       = "inner"
	RoleSubarea     = "subarea"
	RoleAdminCentre = "admin_centre"
)

// Assembly failures that drop a single relation
var (
	ErrNoOuterWays    = errors.New("relation has no outer ways")
	ErrShortWay       = errors.New("outer way has fewer than 2 nodes")
	ErrOpenRing       = errors.New("ring cannot be closed")
	ErrDegenerateRing = errors.New("ring has fewer than 4 nodes")
)

// RoleError reports a member role the planet model does not account for
type RoleError struct {
	Relation osm.RelationID
	Member   osmid.ID
	Role     string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("relation %d: unexpected role %q on member %s", e.Relation, e.Role, e.Member)
}

// Skippable reports whether err only disqualifies the relation it came from
func Skippable(err error) bool {
	return errors.Is(err, ErrNoOuterWays) ||
		errors.Is(err, ErrShortWay) ||
		errors.Is(err, ErrOpenRing) ||
		errors.Is(err, ErrDegenerateRing)
}

// Ring is a closed sequence of node ids, first == last
type Ring []osm.NodeID

// Closed reports whether the ring ends where it starts
func (r Ring) Closed() bool {
	return len(r) > 0 && r[0] == r[len(r)-1]
}

// Assemble returns every closed ring formed by the relation's outer ways.
// Members with an empty role count as outer. Ways missing from the planet
// are skipped. When several fragments continue a ring, the first one left
// in member order is taken. If any fragment cannot be placed in a closed
// ring no ring is returned.
func Assemble(p *planet.Planet, rel *planet.Relation) ([]Ring, error) {
	fragments, err := outerFragments(p, rel)
	if err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, ErrNoOuterWays
	}

	var rings []Ring
	for len(fragments) > 0 {
		last := len(fragments) - 1
		ring := append(Ring(nil), fragments[last]...)
		fragments = fragments[:last]

		for !ring.Closed() {
			tail := ring[len(ring)-1]

			idx := -1
			reversed := false
			for i, f := range fragments {
				if f[0] == tail {
					idx = i
					break
				}
				if f[len(f)-1] == tail {
					idx, reversed = i, true
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("relation %d: %w at node %d", rel.ID, ErrOpenRing, tail)
			}

			f := fragments[idx]
			if reversed {
				for j := len(f) - 2; j >= 0; j-- {
					ring = append(ring, f[j])
				}
			} else {
				ring = append(ring, f[1:]...)
			}

			fragments[idx] = fragments[len(fragments)-1]
			fragments = fragments[:len(fragments)-1]
		}

		if len(ring) < 4 {
			return nil, fmt.Errorf("relation %d: %w", rel.ID, ErrDegenerateRing)
		}
		rings = append(rings, ring)
	}

	return rings, nil
}

// outerFragments applies the role policy and resolves outer ways
func outerFragments(p *planet.Planet, rel *planet.Relation) ([][]osm.NodeID, error) {
	var fragments [][]osm.NodeID

	for _, m := range rel.Members {
		switch m.ID.Kind {
		case osmid.Node:
			// admin_centre and label nodes are read by the polygon index
			continue

		case osmid.Way:
			switch m.Role {
			case RoleOuter, "":
			case RoleInner, RoleSubarea:
				continue
			default:
				return nil, &RoleError{Relation: rel.ID, Member: m.ID, Role: m.Role}
			}

			w, ok := p.Way(osm.WayID(m.ID.Ref))
			if !ok {
				continue
			}
			if len(w.Nodes) < 2 {
				return nil, fmt.Errorf("relation %d way %d: %w", rel.ID, w.ID, ErrShortWay)
			}
			fragments = append(fragments, w.Nodes)

		case osmid.Relation:
			switch m.Role {
			case RoleSubarea, RoleInner, "":
			default:
				return nil, &RoleError{Relation: rel.ID, Member: m.ID, Role: m.Role}
			}
		}
	}

	return fragments, nil
}
