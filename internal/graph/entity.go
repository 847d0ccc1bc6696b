package graph

import (
	"strings"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// Entity is one data row. Its schema and parent never change after
// construction.
type Entity struct {
	g      *Graph
	id     EntityID
	serial uint64
	schema *SchemaNode
	parent EntityID
	attrs  map[string]any

	children map[string]*Collection
	defaults map[string]any
}

func (e *Entity) ID() EntityID        { return e.id }
func (e *Entity) Serial() uint64      { return e.serial }
func (e *Entity) Schema() *SchemaNode { return e.schema }
func (e *Entity) Graph() *Graph       { return e.g }

// Parent returns the navigational parent, or nil at the top level.
func (e *Entity) Parent() *Entity {
	if e.parent == NoEntity {
		return nil
	}
	return e.g.Entity(e.parent)
}

// value returns the stored attribute without consulting the schema.
func (e *Entity) value(name string) (any, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// Has reports whether a non-empty value is stored under name.
func (e *Entity) Has(name string) bool {
	v, ok := e.attrs[name]
	return ok && !field.IsEmpty(v)
}

// Keys lists the stored attribute names in schema order.
func (e *Entity) Keys() []string {
	var out []string
	for _, fd := range e.schema.fields {
		if _, ok := e.attrs[fd.Name]; ok {
			out = append(out, fd.Name)
		}
	}
	return out
}

// Attr resolves name through the schema. Unknown names return ErrNotFound;
// known fields without a value return the field's typed empty default.
// Collection fields run the child schema's pending blocks first.
func (e *Entity) Attr(name string) (any, error) {
	fd := e.schema.Field(name)
	if fd == nil {
		if v, ok := e.attrs[name]; ok {
			return v, nil
		}
		return nil, errors.Wrapf(ErrNotFound, "%s has no attribute %q", e.schema.Label(), name)
	}
	if fd.Kind == KindCollection {
		if err := fd.Child.Process(true); err != nil {
			return nil, err
		}
		return e.childCollection(name), nil
	}
	if v, ok := e.attrs[name]; ok {
		return v, nil
	}
	if v, ok := e.defaults[name]; ok {
		return v, nil
	}
	v := fd.DefaultFor(e)
	if e.defaults == nil {
		e.defaults = make(map[string]any)
	}
	e.defaults[name] = v
	return v, nil
}

// Get returns the attribute, or def when it is unknown or empty. It never
// fails; errors raised by lazy materialization yield def as well.
func (e *Entity) Get(name string, def any) any {
	v, err := e.Attr(name)
	if err != nil || v == nil {
		return def
	}
	return v
}

// Set stores a value for a declared field.
func (e *Entity) Set(name string, v any) error {
	fd := e.schema.Field(name)
	if fd == nil {
		return errors.Wrapf(ErrNotFound, "%s has no field %q", e.schema.Label(), name)
	}
	if fd.Kind == KindCollection {
		return errors.Newf("%s.%s is a table and cannot be assigned", e.schema.Label(), name)
	}
	e.attrs[name] = v
	delete(e.defaults, name)
	e.g.touch(fd.Indexable())
	return nil
}

func (e *Entity) childCollection(name string) *Collection {
	if c, ok := e.children[name]; ok {
		return c
	}
	if e.children == nil {
		e.children = make(map[string]*Collection)
	}
	c := newCollection(e.g, e.schema.childNode(name), nil, false)
	e.children[name] = c
	return c
}

// Equal is identity: two entities are equal only if they are the same row.
func (e *Entity) Equal(other any) (bool, error) {
	o, ok := other.(*Entity)
	return ok && o == e, nil
}

// String renders the schema name and summary fields, e.g. "switches(sw1)".
func (e *Entity) String() string {
	var parts []string
	for _, name := range e.schema.Summary() {
		if v, ok := e.attrs[name]; ok && !field.IsEmpty(v) {
			parts = append(parts, field.Format(v))
		}
	}
	label := e.schema.name
	if label == "" {
		label = "root"
	}
	return label + "(" + strings.Join(parts, ", ") + ")"
}

// Fallback returns an inheritance view that climbs the whole parent chain.
func (e *Entity) Fallback() *Fallback { return e.FallbackDepth(-1) }

// FallbackDepth limits the climb to depth parent hops. Negative is unbounded.
func (e *Entity) FallbackDepth(depth int) *Fallback {
	return &Fallback{e: e, depth: depth}
}

// Fallback resolves attributes on an Entity or, failing that, on the
// nearest ancestor that has a non-empty value. Results are memoized on the
// Fallback, not on the Entity.
type Fallback struct {
	e     *Entity
	depth int
	memo  map[string]any
}

func (f *Fallback) Entity() *Entity { return f.e }

func (f *Fallback) Attr(name string) (any, error) {
	if v, ok := f.memo[name]; ok {
		return v, nil
	}
	cur := f.e
	for hops := 0; cur != nil && (f.depth < 0 || hops <= f.depth); hops++ {
		if fd := cur.schema.Field(name); fd != nil {
			var v any
			if fd.Kind == KindCollection {
				c, err := cur.Attr(name)
				if err != nil {
					return nil, err
				}
				v = c
			} else if stored, ok := cur.value(name); ok && !field.IsEmpty(stored) {
				v = stored
			}
			if v != nil {
				if f.memo == nil {
					f.memo = make(map[string]any)
				}
				f.memo[name] = v
				return v, nil
			}
		}
		cur = cur.Parent()
	}
	return nil, errors.Wrapf(ErrNotFound, "%s and its ancestors have no value for %q", f.e.schema.Label(), name)
}

// Get is Attr with a default for missing names.
func (f *Fallback) Get(name string, def any) any {
	v, err := f.Attr(name)
	if err != nil {
		return def
	}
	return v
}
