package graph

import (
	"math"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound       = errors.New("attribute not found")
	ErrCardinality    = errors.New("expected exactly one entity")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrFieldConflict  = errors.New("field redeclared with a different type")
)

// EntityID addresses an Entity in its Graph's arena. It doubles as the
// member id in roaring bitmaps.
type EntityID uint32

// NoEntity is the parent of top-level entities and of the root.
const NoEntity EntityID = math.MaxUint32

// Sequence hands out persistence identities. It is process-wide state that
// the loader injects into every Graph and resets at the start of a load.
type Sequence struct {
	next atomic.Uint64
}

func NewSequence() *Sequence { return &Sequence{} }

// Next returns the next identity. The first identity is 1.
func (s *Sequence) Next() uint64 { return s.next.Add(1) }

// Current returns the last identity handed out.
func (s *Sequence) Current() uint64 { return s.next.Load() }

// Reset restarts numbering. Called by the loader before the first row.
func (s *Sequence) Reset() { s.next.Store(0) }

// Advance moves the counter forward to at least n.
func (s *Sequence) Advance(n uint64) {
	for {
		cur := s.next.Load()
		if cur >= n || s.next.CompareAndSwap(cur, n) {
			return
		}
	}
}

// TieBreak decides between two indexes with equally small buckets.
type TieBreak int

const (
	// TieDeclared prefers the field declared first in the schema.
	TieDeclared TieBreak = iota
	// TieRequested prefers the requested key that sorts first by name.
	TieRequested
)

// Graph owns every Entity of one load. Entities refer to each other
// (parent, peer) by EntityID, never by owning pointers.
type Graph struct {
	// TieBreak is consulted by Collection.Filter when choosing an index.
	TieBreak TieBreak

	schema *SchemaNode
	seq    *Sequence
	arena  []*Entity
	root   *Entity
	gen    uint64 // bumped on every mutation; drops cached filter results
	idxGen uint64 // bumped when an indexable attribute changes; drops indexes
}

// New creates an empty graph with a root Entity. A nil seq gets a private
// Sequence.
func New(seq *Sequence) *Graph {
	if seq == nil {
		seq = NewSequence()
	}
	g := &Graph{schema: NewSchema(), seq: seq}
	g.root = g.newEntity(g.schema, NoEntity, nil)
	return g
}

func (g *Graph) Schema() *SchemaNode { return g.schema }
func (g *Graph) Root() *Entity       { return g.root }
func (g *Graph) Sequence() *Sequence { return g.seq }
func (g *Graph) Len() int            { return len(g.arena) }
func (g *Graph) Generation() uint64  { return g.gen }

func (g *Graph) touch(indexed bool) {
	g.gen++
	if indexed {
		g.idxGen++
	}
}

func (g *Graph) validID(id EntityID) bool {
	return int(id) < len(g.arena)
}

// Entity returns the entity with the given id, or nil.
func (g *Graph) Entity(id EntityID) *Entity {
	if !g.validID(id) {
		return nil
	}
	return g.arena[id]
}

func (g *Graph) newEntity(schema *SchemaNode, parent EntityID, attrs map[string]any) *Entity {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	e := &Entity{
		g:      g,
		id:     EntityID(len(g.arena)),
		serial: g.seq.Next(),
		schema: schema,
		parent: parent,
		attrs:  attrs,
	}
	g.arena = append(g.arena, e)
	return e
}

// Insert creates an Entity of container's child schema name and appends it
// to container's collection of that name. Entities inserted under the root
// are top-level and have no parent.
func (g *Graph) Insert(container *Entity, name string, attrs map[string]any) (*Entity, error) {
	child := container.schema.childNode(name)
	if child == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s has no child table %q", container.schema.Label(), name)
	}
	parent := container.id
	if container == g.root {
		parent = NoEntity
	}
	e := g.newEntity(child, parent, attrs)
	container.childCollection(name).add(e.id)
	return e, nil
}

// Materialize runs every pending block in the schema tree.
func (g *Graph) Materialize() error {
	return g.schema.Process(false)
}

// Collection walks a dotted path from the root, projecting collection
// attributes level by level: "sites.switches" is root.sites.switches.
func (g *Graph) Collection(path string) (*Collection, error) {
	var cur Attributer = g.root
	for _, seg := range strings.Split(path, ".") {
		v, err := cur.Attr(seg)
		if err != nil {
			return nil, err
		}
		next, ok := v.(*Collection)
		if !ok {
			return nil, errors.Newf("%q in %q is not a collection", seg, path)
		}
		cur = next
	}
	c, ok := cur.(*Collection)
	if !ok {
		return nil, errors.Newf("empty path %q", path)
	}
	return c, nil
}

// Attributer is anything that resolves attribute names.
type Attributer interface {
	Attr(name string) (any, error)
}

// SetOf wraps entities in a Collection when they share one schema and in a
// PeerCollection otherwise.
func (g *Graph) SetOf(ents []*Entity) Set {
	pc := NewPeerCollection(g, ents...)
	if c, ok := pc.Promote(); ok {
		return c
	}
	return pc
}
