package planet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osm-gazetteer/internal/osmid"
	"github.com/wegman-software/osm-gazetteer/internal/selection"
)

// ErrFrozen is returned when inserting into a builder whose planet was taken
var ErrFrozen = errors.New("planet builder already frozen")

// Meta is the display information of a selected feature
type Meta struct {
	Name     string
	AltName  string
	Operator string
}

// Node is a point with optional feature metadata
type Node struct {
	ID   osm.NodeID
	Lat  float64
	Lon  float64
	Meta *Meta
}

// Way is an ordered polyline of node references
type Way struct {
	ID    osm.WayID
	Nodes []osm.NodeID
	Meta  *Meta
}

// Member is a typed relation member with its role
type Member struct {
	ID   osmid.ID
	Role string
}

// Relation groups members under a tag map
type Relation struct {
	ID      osm.RelationID
	Tags    map[string]string
	Members []Member
}

// Counts summarizes the store contents
type Counts struct {
	Nodes     int
	Ways      int
	Relations int
	Named     int
}

// Builder ingests decoded objects. It is not safe for concurrent use.
type Builder struct {
	features  *selection.Filter
	nodes     map[osm.NodeID]Node
	ways      map[osm.WayID]*Way
	relations map[osm.RelationID]*Relation
	frozen    bool
}

// NewBuilder creates an empty builder. A nil selection uses the defaults.
func NewBuilder(sel *selection.Selection) *Builder {
	if sel == nil {
		sel = selection.Default()
	}
	return &Builder{
		features:  sel.Features,
		nodes:     make(map[osm.NodeID]Node),
		ways:      make(map[osm.WayID]*Way),
		relations: make(map[osm.RelationID]*Relation),
	}
}

// Insert classifies a decoded object and stores it, replacing any
// previous object with the same id
func (b *Builder) Insert(obj osm.Object) error {
	if b.frozen {
		return ErrFrozen
	}

	switch o := obj.(type) {
	case *osm.Node:
		b.nodes[o.ID] = Node{
			ID:   o.ID,
			Lat:  o.Lat,
			Lon:  o.Lon,
			Meta: b.meta(o.Tags),
		}

	case *osm.Way:
		nodes := make([]osm.NodeID, len(o.Nodes))
		for i, wn := range o.Nodes {
			nodes[i] = wn.ID
		}
		b.ways[o.ID] = &Way{
			ID:    o.ID,
			Nodes: nodes,
			Meta:  b.meta(o.Tags),
		}

	case *osm.Relation:
		members := make([]Member, 0, len(o.Members))
		for _, m := range o.Members {
			id, err := osmid.FromMember(m)
			if err != nil {
				return fmt.Errorf("relation %d: %w", o.ID, err)
			}
			members = append(members, Member{ID: id, Role: m.Role})
		}
		b.relations[o.ID] = &Relation{
			ID:      o.ID,
			Tags:    o.Tags.Map(),
			Members: members,
		}

	default:
		return fmt.Errorf("unsupported object type %T", obj)
	}

	return nil
}

// meta returns display info for selected features that carry a name
func (b *Builder) meta(tags osm.Tags) *Meta {
	if !b.features.MatchOSM(tags) {
		return nil
	}
	name := tags.Find("name")
	if name == "" {
		return nil
	}
	return &Meta{
		Name:     name,
		AltName:  tags.Find("alt_name"),
		Operator: tags.Find("operator"),
	}
}

// Planet freezes the builder and returns the read-only store
func (b *Builder) Planet() *Planet {
	b.frozen = true

	p := &Planet{
		nodes:     b.nodes,
		ways:      b.ways,
		relations: b.relations,
	}

	for id, n := range b.nodes {
		if n.Meta != nil {
			p.named = append(p.named, osmid.NodeID(id))
		}
	}
	for id, w := range b.ways {
		if w.Meta != nil {
			p.named = append(p.named, osmid.WayID(id))
		}
	}
	sort.Slice(p.named, func(i, j int) bool {
		return p.named[i].Compare(p.named[j]) < 0
	})

	b.nodes, b.ways, b.relations = nil, nil, nil
	return p
}

// Planet is the frozen object store. All methods are safe for concurrent use.
type Planet struct {
	nodes     map[osm.NodeID]Node
	ways      map[osm.WayID]*Way
	relations map[osm.RelationID]*Relation
	named     []osmid.ID
}

// Node returns a node by id
func (p *Planet) Node(id osm.NodeID) (Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// Way returns a way by id
func (p *Planet) Way(id osm.WayID) (*Way, bool) {
	w, ok := p.ways[id]
	return w, ok
}

// Relation returns a relation by id
func (p *Planet) Relation(id osm.RelationID) (*Relation, bool) {
	r, ok := p.relations[id]
	return r, ok
}

// RelationIDs returns all relation ids in ascending order
func (p *Planet) RelationIDs() []osm.RelationID {
	ids := make([]osm.RelationID, 0, len(p.relations))
	for id := range p.relations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Meta returns the feature metadata of a node or way
func (p *Planet) Meta(id osmid.ID) (*Meta, bool) {
	switch id.Kind {
	case osmid.Node:
		if n, ok := p.nodes[osm.NodeID(id.Ref)]; ok && n.Meta != nil {
			return n.Meta, true
		}
	case osmid.Way:
		if w, ok := p.ways[osm.WayID(id.Ref)]; ok && w.Meta != nil {
			return w.Meta, true
		}
	}
	return nil, false
}

// NamedFeatures lists every named node and way, nodes first, by ascending id.
// The returned slice must not be modified.
func (p *Planet) NamedFeatures() []osmid.ID {
	return p.named
}

// Counts returns the number of stored objects
func (p *Planet) Counts() Counts {
	return Counts{
		Nodes:     len(p.nodes),
		Ways:      len(p.ways),
		Relations: len(p.relations),
		Named:     len(p.named),
	}
}
