package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// Predicate is a deferred test evaluated against each candidate Entity.
type Predicate interface {
	Test(subject any) (bool, error)
}

// Collection is a homogeneous, unordered set of entities of one schema.
// Indexes, filter results and projections are cached per collection until
// the graph is mutated.
type Collection struct {
	g       *Graph
	schema  *SchemaNode
	members *roaring.Bitmap
	derived bool // output of a filter; gets linear indexes

	mu          sync.Mutex
	gen         uint64
	idxGen      uint64
	indexes     map[string]Index
	results     map[string]*Collection
	projections map[string]any
}

func newCollection(g *Graph, schema *SchemaNode, members *roaring.Bitmap, derived bool) *Collection {
	if members == nil {
		members = roaring.New()
	}
	return &Collection{g: g, schema: schema, members: members, derived: derived}
}

func (c *Collection) Graph() *Graph       { return c.g }
func (c *Collection) Schema() *SchemaNode { return c.schema }
func (c *Collection) Len() int            { return int(c.members.GetCardinality()) }
func (c *Collection) IsEmpty() bool       { return c.members.IsEmpty() }

// Bitmap returns a copy of the member ids.
func (c *Collection) Bitmap() *roaring.Bitmap { return c.members.Clone() }

// Entities returns the members in arena order.
func (c *Collection) Entities() []*Entity {
	out := make([]*Entity, 0, c.Len())
	it := c.members.Iterator()
	for it.HasNext() {
		out = append(out, c.g.arena[it.Next()])
	}
	return out
}

func (c *Collection) add(id EntityID) {
	c.mu.Lock()
	c.members.Add(uint32(id))
	c.indexes = nil
	c.results = nil
	c.mu.Unlock()
	c.g.touch(false)
}

// lockCaches takes the cache lock and drops whatever was cached before a
// relevant graph mutation: indexes survive changes to unindexed attributes,
// filter results and projections do not.
func (c *Collection) lockCaches() {
	c.mu.Lock()
	if c.indexes == nil || c.idxGen != c.g.idxGen {
		c.indexes = make(map[string]Index)
		c.idxGen = c.g.idxGen
	}
	if c.results == nil || c.gen != c.g.gen {
		c.results = make(map[string]*Collection)
		c.projections = make(map[string]any)
		c.gen = c.g.gen
	}
}

// Contains reports membership of an Entity.
func (c *Collection) Contains(v any) (bool, error) {
	e, ok := v.(*Entity)
	if !ok || e.g != c.g {
		return false, nil
	}
	return c.members.Contains(uint32(e.id)), nil
}

// Index returns the index for name, building it on first use.
func (c *Collection) Index(name string) (Index, error) {
	fd := c.schema.Field(name)
	if fd == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s has no field %q", c.schema.Label(), name)
	}
	c.lockCaches()
	defer c.mu.Unlock()
	return c.indexLocked(name, fd), nil
}

func (c *Collection) indexLocked(name string, fd *FieldDescriptor) Index {
	if ix, ok := c.indexes[name]; ok {
		return ix
	}
	var ix Index
	if c.derived || !fd.Indexable() {
		ix = &linearIndex{c: c, name: name}
	} else {
		ix = buildSortedIndex(c, name)
	}
	c.indexes[name] = ix
	return ix
}

// Where filters by keyword shortcuts only.
func (c *Collection) Where(shortcuts map[string]any) (*Collection, error) {
	return c.Filter(nil, shortcuts)
}

// Filter returns the members matching every predicate and shortcut. One
// shortcut is answered by the best index; the rest are checked by scanning
// that index's bucket. A result covering every member is c itself.
func (c *Collection) Filter(preds []Predicate, shortcuts map[string]any) (*Collection, error) {
	if len(preds) == 0 && len(shortcuts) == 0 {
		return c, nil
	}
	want := make(map[string]any, len(shortcuts))
	for k, v := range shortcuts {
		if c.schema.Field(k) == nil {
			return nil, errors.Wrapf(ErrNotFound, "%s has no field %q", c.schema.Label(), k)
		}
		v = field.Normalize(v)
		if v == nil {
			v = Absent
		}
		want[k] = v
	}
	key, cacheable := criteriaKey(preds, want)

	c.lockCaches()
	if cacheable {
		if r, ok := c.results[key]; ok {
			c.mu.Unlock()
			return r, nil
		}
	}
	base, used := c.bestIndexLocked(want)
	c.mu.Unlock()

	if base == nil {
		base = c.members
	}
	out := roaring.New()
	it := base.Iterator()
	for it.HasNext() {
		id := it.Next()
		ok, err := matches(c.g.arena[id], want, used, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Add(id)
		}
	}

	res := c
	if out.GetCardinality() != c.members.GetCardinality() {
		res = newCollection(c.g, c.schema, out, true)
	}
	if cacheable {
		c.lockCaches()
		c.results[key] = res
		c.mu.Unlock()
	}
	return res, nil
}

// bestIndexLocked picks the requested key whose lookup bucket is smallest.
// Derived collections only have linear indexes, so the first candidate is
// taken without probing.
func (c *Collection) bestIndexLocked(want map[string]any) (*roaring.Bitmap, string) {
	var (
		best     *roaring.Bitmap
		bestName string
	)
	for _, name := range c.candidateKeys(want) {
		fd := c.schema.Field(name)
		if fd == nil || !fd.Indexable() {
			continue
		}
		bm := Lookup(c.indexLocked(name, fd), want[name])
		if c.derived {
			return bm, name
		}
		if best == nil || bm.GetCardinality() < best.GetCardinality() {
			best, bestName = bm, name
		}
	}
	return best, bestName
}

// candidateKeys orders the requested keys by the graph's tie-break rule.
func (c *Collection) candidateKeys(want map[string]any) []string {
	keys := make([]string, 0, len(want))
	if c.g.TieBreak == TieDeclared {
		for _, fd := range c.schema.fields {
			if _, ok := want[fd.Name]; ok {
				keys = append(keys, fd.Name)
			}
		}
		return keys
	}
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func matches(e *Entity, want map[string]any, skip string, preds []Predicate) (bool, error) {
	for name, v := range want {
		if name == skip {
			continue
		}
		if !matchShortcut(e, name, v) {
			return false, nil
		}
	}
	for _, p := range preds {
		ok, err := p.Test(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchShortcut(e *Entity, name string, want any) bool {
	v, _ := e.value(name)
	switch want {
	case Present:
		return !field.IsEmpty(v)
	case Absent:
		return field.IsEmpty(v)
	}
	return !field.IsEmpty(v) && field.Same(v, want)
}

// criteriaKey renders the filter criteria as a cache key. Predicates that
// cannot describe themselves make the result uncacheable.
func criteriaKey(preds []Predicate, want map[string]any) (string, bool) {
	names := make([]string, 0, len(want))
	for k := range want {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		v := want[k]
		switch v.(type) {
		case *Entity, *Collection, *PeerCollection:
			return "", false
		}
		fmt.Fprintf(&b, "%q=%s;", k, keyValue(v))
	}
	for _, p := range preds {
		s, ok := p.(fmt.Stringer)
		if !ok {
			return "", false
		}
		b.WriteString("|" + s.String())
	}
	return b.String(), true
}

// keyValue renders a shortcut value so that distinct values never share a
// cache key.
func keyValue(v any) string {
	if xs, ok := v.([]any); ok {
		parts := make([]string, len(xs))
		for i, x := range xs {
			parts[i] = keyValue(x)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprintf("%T:%q", v, field.Format(v))
}

// Call adapts Filter to the predicate builder: positional arguments must be
// Predicates, keywords are shortcuts.
func (c *Collection) Call(args []any, kw map[string]any) (any, error) {
	preds := make([]Predicate, 0, len(args))
	for _, a := range args {
		p, ok := a.(Predicate)
		if !ok {
			return nil, errors.Newf("filter argument %v (%T) is not a predicate", a, a)
		}
		preds = append(preds, p)
	}
	return c.Filter(preds, kw)
}

// Attr projects an attribute across all members: distinct values for value
// fields, the union of child collections for table fields, and the joined
// peers for object fields.
func (c *Collection) Attr(name string) (any, error) {
	c.lockCaches()
	if v, ok := c.projections[name]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	fd := c.schema.Field(name)
	if fd == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s has no attribute %q", c.schema.Label(), name)
	}
	v, err := project(c.g, c.Entities(), name, fd)
	if err != nil {
		return nil, err
	}
	c.lockCaches()
	c.projections[name] = v
	c.mu.Unlock()
	return v, nil
}

// One returns the single member. Any other cardinality is a precondition
// violation.
func (c *Collection) One() (*Entity, error) {
	if n := c.Len(); n != 1 {
		return nil, errors.Mark(
			errors.AssertionFailedf("%s: expected exactly one entity, found %d", c.schema.Label(), n),
			ErrCardinality)
	}
	return c.g.arena[c.members.Minimum()], nil
}

// Extract is One for callers that work with untyped values.
func (c *Collection) Extract() (any, error) {
	return c.One()
}

// Concat joins two collections of the same schema.
func (c *Collection) Concat(o *Collection) (*Collection, error) {
	if o.schema != c.schema || o.g != c.g {
		return nil, errors.Mark(
			errors.Newf("cannot concatenate %s and %s", c.schema.Label(), o.schema.Label()),
			ErrSchemaMismatch)
	}
	return newCollection(c.g, c.schema, roaring.Or(c.members, o.members), false), nil
}

// Equal compares membership. Comparing collections of different schemas is
// an error.
func (c *Collection) Equal(other any) (bool, error) {
	switch o := other.(type) {
	case *Collection:
		if o.schema != c.schema {
			return false, errors.Mark(
				errors.Newf("cannot compare %s with %s", c.schema.Label(), o.schema.Label()),
				ErrSchemaMismatch)
		}
		return c.members.Equals(o.members), nil
	case *PeerCollection:
		return c.members.Equals(o.members), nil
	}
	return false, nil
}

func (c *Collection) String() string {
	return fmt.Sprintf("%s[%d]", c.schema.Label(), c.Len())
}

// project aggregates name over ents; see Collection.Attr. known, when
// set, is the descriptor to use if ents is empty.
func project(g *Graph, ents []*Entity, name string, known *FieldDescriptor) (any, error) {
	first := known
	for _, e := range ents {
		fd := e.schema.Field(name)
		if fd == nil {
			continue
		}
		if first != nil && fd.Kind != first.Kind {
			return nil, errors.Wrapf(ErrSchemaMismatch, "%q is a %s and a %s", name, first.Kind, fd.Kind)
		}
		if first == nil {
			first = fd
		}
	}
	if first == nil {
		if len(ents) == 0 {
			return []any{}, nil
		}
		return nil, errors.Wrapf(ErrNotFound, "no member has attribute %q", name)
	}

	switch first.Kind {
	case KindCollection:
		var ids []*Entity
		for _, e := range ents {
			v, err := e.Attr(name)
			if err != nil {
				return nil, err
			}
			if child, ok := v.(*Collection); ok {
				ids = append(ids, child.Entities()...)
			}
		}
		if len(ids) == 0 {
			return newCollection(g, first.Child, nil, false), nil
		}
		return g.SetOf(ids), nil
	case KindObject:
		var peers []*Entity
		for _, e := range ents {
			switch p := e.attrs[name].(type) {
			case *Entity:
				peers = append(peers, p)
			case *PeerCollection:
				peers = append(peers, p.Entities()...)
			}
		}
		return g.SetOf(peers), nil
	case KindMap:
		var out []any
		for _, e := range ents {
			if v, ok := e.value(name); ok && !field.IsEmpty(v) {
				out = append(out, v)
			}
		}
		return out, nil
	}

	var vals []any
	for _, e := range ents {
		v, ok := e.value(name)
		if !ok || field.IsEmpty(v) {
			continue
		}
		if items, vec := v.([]any); vec {
			vals = append(vals, items...)
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return []any{}, nil
	}
	return field.Distinct(vals), nil
}
