package graph

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/cockroachdb/errors"
)

// Set is what Collection and PeerCollection have in common; Flip, Split
// and the sort helpers accept either.
type Set interface {
	Graph() *Graph
	Len() int
	Entities() []*Entity
}

var (
	_ Set = (*Collection)(nil)
	_ Set = (*PeerCollection)(nil)
)

// PeerCollection is an unordered set of entities that may have different
// schemas. Link loading produces them as peer values.
type PeerCollection struct {
	g       *Graph
	members *roaring.Bitmap
}

// NewPeerCollection builds a set from entities of g.
func NewPeerCollection(g *Graph, ents ...*Entity) *PeerCollection {
	bm := roaring.New()
	for _, e := range ents {
		bm.Add(uint32(e.id))
	}
	return &PeerCollection{g: g, members: bm}
}

func (p *PeerCollection) Graph() *Graph { return p.g }
func (p *PeerCollection) Len() int      { return int(p.members.GetCardinality()) }

// IDs returns the member ids in ascending order.
func (p *PeerCollection) IDs() []EntityID {
	out := make([]EntityID, 0, p.Len())
	it := p.members.Iterator()
	for it.HasNext() {
		out = append(out, EntityID(it.Next()))
	}
	return out
}

func (p *PeerCollection) Entities() []*Entity {
	out := make([]*Entity, 0, p.Len())
	for _, id := range p.IDs() {
		out = append(out, p.g.arena[id])
	}
	return out
}

// Promote returns an equivalent Collection when every member shares one
// schema. Empty sets have no schema and are never promoted.
func (p *PeerCollection) Promote() (*Collection, bool) {
	var schema *SchemaNode
	for _, e := range p.Entities() {
		if schema == nil {
			schema = e.schema
			continue
		}
		if e.schema != schema {
			return nil, false
		}
	}
	if schema == nil {
		return nil, false
	}
	return newCollection(p.g, schema, p.members.Clone(), false), true
}

func (p *PeerCollection) Contains(v any) (bool, error) {
	e, ok := v.(*Entity)
	if !ok || e.g != p.g {
		return false, nil
	}
	return p.members.Contains(uint32(e.id)), nil
}

// Attr projects name over the members that declare it.
func (p *PeerCollection) Attr(name string) (any, error) {
	return project(p.g, p.Entities(), name, nil)
}

// One returns the single member.
func (p *PeerCollection) One() (*Entity, error) {
	if n := p.Len(); n != 1 {
		return nil, errors.Mark(
			errors.AssertionFailedf("peers: expected exactly one entity, found %d", n),
			ErrCardinality)
	}
	return p.g.arena[p.members.Minimum()], nil
}

func (p *PeerCollection) Extract() (any, error) { return p.One() }

// Equal compares membership with another set.
func (p *PeerCollection) Equal(other any) (bool, error) {
	switch o := other.(type) {
	case *PeerCollection:
		return p.members.Equals(o.members), nil
	case *Collection:
		return p.members.Equals(o.members), nil
	}
	return false, nil
}

func (p *PeerCollection) String() string {
	return fmt.Sprintf("peers%v", p.Entities())
}
