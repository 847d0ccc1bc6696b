package graph

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// Field names added to every link-table schema.
const (
	PositionField = "position"
	PeerField     = "peer"
)

// Flip reverses links: every member with a single peer swaps its position
// with that peer. Each pair is swapped once per call even when both ends
// are members, so A.position != B.position still holds afterwards. Members
// whose peer is a PeerCollection are left alone. Flip returns the number of
// pairs swapped.
func Flip(s Set) int {
	done := roaring.New()
	n := 0
	for _, e := range s.Entities() {
		if done.Contains(uint32(e.id)) {
			continue
		}
		peer, ok := e.attrs[PeerField].(*Entity)
		if !ok {
			continue
		}
		mine, theirs := e.attrs[PositionField], peer.attrs[PositionField]
		e.attrs[PositionField], peer.attrs[PositionField] = theirs, mine
		done.Add(uint32(e.id))
		done.Add(uint32(peer.id))
		n++
	}
	if n > 0 {
		s.Graph().touch(false)
	}
	return n
}

// Split duplicates each member once per element of its multi-valued attr,
// storing the element under newAttr. The copies keep the original parent
// but are not added to any table collection. A copy's peer is the original
// peer, which still points back at the original member, so the peer
// symmetry of links does not extend to copies. Members with an empty attr
// produce no copies.
func Split(s Set, attr, newAttr string) (Set, error) {
	g := s.Graph()
	var clones []*Entity
	for _, e := range s.Entities() {
		fd := e.schema.Field(attr)
		if fd == nil {
			return nil, errors.Wrapf(ErrNotFound, "%s has no attribute %q", e.schema.Label(), attr)
		}
		if fd.Kind != KindValue {
			return nil, errors.Newf("%s.%s is a %s field and cannot be split", e.schema.Label(), attr, fd.Kind)
		}
		elem := fd.Type
		if el, ok := fd.Type.(field.Elementer); ok {
			elem = el.Elem()
		}
		if err := e.schema.AddField(ValueField(newAttr, elem)); err != nil {
			return nil, err
		}

		v, _ := e.value(attr)
		items, ok := v.([]any)
		if !ok {
			if field.IsEmpty(v) {
				continue
			}
			items = []any{v}
		}
		for _, item := range items {
			attrs := make(map[string]any, len(e.attrs)+1)
			for k, val := range e.attrs {
				attrs[k] = val
			}
			attrs[newAttr] = item
			clones = append(clones, g.newEntity(e.schema, e.parent, attrs))
		}
	}
	if c, ok := s.(*Collection); ok {
		bm := roaring.New()
		for _, e := range clones {
			bm.Add(uint32(e.id))
		}
		return newCollection(g, c.schema, bm, false), nil
	}
	return g.SetOf(clones), nil
}

// SortBy orders members ascending by attr; empty values sort last and ties
// keep arena order.
func SortBy(s Set, attr string) []*Entity { return sortSet(s, attr, false) }

// SortAsc is SortBy.
func SortAsc(s Set, attr string) []*Entity { return sortSet(s, attr, false) }

// SortDesc orders members descending by attr; empty values still sort last.
func SortDesc(s Set, attr string) []*Entity { return sortSet(s, attr, true) }

func sortSet(s Set, attr string, desc bool) []*Entity {
	ents := s.Entities()
	sort.SliceStable(ents, func(i, j int) bool {
		a, _ := ents[i].value(attr)
		b, _ := ents[j].value(attr)
		ea, eb := field.IsEmpty(a), field.IsEmpty(b)
		if ea || eb {
			return !ea && eb
		}
		o := field.Order(a, b)
		if desc {
			return o > 0
		}
		return o < 0
	})
	return ents
}
