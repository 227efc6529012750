package osmid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/osm"
)

// Kind discriminates the three OSM id spaces
type Kind uint8

const (
	Node Kind = iota
	Way
	Relation
)

// Parse errors
var (
	ErrInvalidDiscriminant = errors.New("invalid osm id discriminant")
	ErrInvalidRef          = errors.New("invalid osm inner id")
)

// Letter returns the single character used in the text form
func (k Kind) Letter() byte {
	switch k {
	case Node:
		return 'N'
	case Way:
		return 'W'
	case Relation:
		return 'R'
	default:
		return '?'
	}
}

func (k Kind) String() string {
	switch k {
	case Node:
		return "node"
	case Way:
		return "way"
	case Relation:
		return "relation"
	default:
		return "unknown"
	}
}

// ID identifies an object in one of the three disjoint id spaces.
// A node and a way may share Ref; they are different IDs.
type ID struct {
	Kind Kind
	Ref  int64
}

func NodeID(id osm.NodeID) ID         { return ID{Kind: Node, Ref: int64(id)} }
func WayID(id osm.WayID) ID           { return ID{Kind: Way, Ref: int64(id)} }
func RelationID(id osm.RelationID) ID { return ID{Kind: Relation, Ref: int64(id)} }

// FromMember converts a relation member reference
func FromMember(m osm.Member) (ID, error) {
	switch m.Type {
	case osm.TypeNode:
		return ID{Kind: Node, Ref: m.Ref}, nil
	case osm.TypeWay:
		return ID{Kind: Way, Ref: m.Ref}, nil
	case osm.TypeRelation:
		return ID{Kind: Relation, Ref: m.Ref}, nil
	default:
		return ID{}, fmt.Errorf("unsupported member type %q for ref %d", m.Type, m.Ref)
	}
}

// String renders the id as discriminant letter followed by the decimal ref, e.g. W42
func (id ID) String() string {
	b := make([]byte, 0, 21)
	b = append(b, id.Kind.Letter())
	return string(strconv.AppendInt(b, id.Ref, 10))
}

// Compare orders ids by kind, then by ref
func (id ID) Compare(other ID) int {
	switch {
	case id.Kind < other.Kind:
		return -1
	case id.Kind > other.Kind:
		return 1
	case id.Ref < other.Ref:
		return -1
	case id.Ref > other.Ref:
		return 1
	default:
		return 0
	}
}

// Parse reads the text form produced by String
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty string", ErrInvalidDiscriminant)
	}

	var kind Kind
	switch s[0] {
	case 'N':
		kind = Node
	case 'W':
		kind = Way
	case 'R':
		kind = Relation
	default:
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidDiscriminant, s[:1])
	}

	ref, err := strconv.ParseInt(s[1:], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidRef, s[1:], err)
	}

	return ID{Kind: kind, Ref: ref}, nil
}

// MarshalText implements encoding.TextMarshaler
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
