package graph

import (
	"strings"
	"sync"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// FieldKind selects how a FieldDescriptor stores and projects its values.
type FieldKind int

const (
	KindValue FieldKind = iota
	KindObject
	KindCollection
	KindMap
)

func (k FieldKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindCollection:
		return "collection"
	case KindMap:
		return "map"
	}
	return "value"
}

// MapKey is one bracket-keyed column of a Map field.
type MapKey struct {
	Key  string
	Type field.Type
}

// FieldDescriptor describes one named attribute of a SchemaNode.
type FieldDescriptor struct {
	Name  string
	Kind  FieldKind
	Type  field.Type  // KindValue
	Keys  []MapKey    // KindMap
	Child *SchemaNode // KindCollection

	noIndex bool
}

// ValueField is a field holding converted cell values.
func ValueField(name string, t field.Type) *FieldDescriptor {
	return &FieldDescriptor{Name: name, Kind: KindValue, Type: t}
}

// ObjectField holds a reference to another Entity or a PeerCollection.
func ObjectField(name string) *FieldDescriptor {
	return &FieldDescriptor{Name: name, Kind: KindObject}
}

// MapField aggregates "name[key]" columns.
func MapField(name string, keys []MapKey) *FieldDescriptor {
	return &FieldDescriptor{Name: name, Kind: KindMap, Keys: keys}
}

// Unindexed marks a value field as never indexable.
func (fd *FieldDescriptor) Unindexed() *FieldDescriptor {
	fd.noIndex = true
	return fd
}

// Indexable reports whether Filter may build a sorted index on the field.
func (fd *FieldDescriptor) Indexable() bool {
	return fd.Kind == KindValue && !fd.noIndex && fd.Type.Indexable()
}

// Scalar reports whether the field holds single values (summary candidates).
func (fd *FieldDescriptor) Scalar() bool {
	if fd.Kind != KindValue {
		return false
	}
	_, vec := fd.Type.(field.Elementer)
	return !vec
}

// TypeName is the catalog name for value fields and the kind otherwise.
func (fd *FieldDescriptor) TypeName() string {
	if fd.Kind == KindValue {
		return fd.Type.Name()
	}
	return fd.Kind.String()
}

// MapKeyType returns the type of one key of a map field.
func (fd *FieldDescriptor) MapKeyType(key string) (field.Type, bool) {
	for _, k := range fd.Keys {
		if k.Key == key {
			return k.Type, true
		}
	}
	return nil, false
}

// DefaultFor is the value of a known field the entity never set.
func (fd *FieldDescriptor) DefaultFor(e *Entity) any {
	switch fd.Kind {
	case KindValue:
		return fd.Type.Empty()
	case KindMap:
		return map[string]any{}
	case KindCollection:
		return e.childCollection(fd.Name)
	}
	return nil
}

func (fd *FieldDescriptor) compatible(o *FieldDescriptor) bool {
	if fd.Kind != o.Kind {
		return false
	}
	switch fd.Kind {
	case KindValue:
		return fd.Type.Name() == o.Type.Name() && fd.noIndex == o.noIndex
	case KindCollection:
		return fd.Child == o.Child
	}
	return true
}

// PendingBlock is ingestion work queued on the SchemaNode it fills.
type PendingBlock interface {
	Run() error
}

// SchemaNode is the typed description of one table level.
type SchemaNode struct {
	name     string
	path     string
	parent   *SchemaNode
	fields   []*FieldDescriptor
	byName   map[string]*FieldDescriptor
	children []*SchemaNode

	mu      sync.Mutex
	pending []PendingBlock
	failed  error // first block error; returned by every later Process
}

// NewSchema returns an empty root node.
func NewSchema() *SchemaNode {
	return &SchemaNode{byName: make(map[string]*FieldDescriptor)}
}

func (s *SchemaNode) Name() string        { return s.name }
func (s *SchemaNode) Path() string        { return s.path }
func (s *SchemaNode) Parent() *SchemaNode { return s.parent }
func (s *SchemaNode) IsRoot() bool        { return s.parent == nil }

// Label is the path, or "root" for the root node.
func (s *SchemaNode) Label() string {
	if s.IsRoot() {
		return "root"
	}
	return s.path
}

// Depth is the number of path segments; the root has depth 0.
func (s *SchemaNode) Depth() int {
	if s.path == "" {
		return 0
	}
	return strings.Count(s.path, ".") + 1
}

// Fields returns the descriptors in declaration order.
func (s *SchemaNode) Fields() []*FieldDescriptor {
	return append([]*FieldDescriptor(nil), s.fields...)
}

// Field returns the named descriptor or nil.
func (s *SchemaNode) Field(name string) *FieldDescriptor {
	return s.byName[name]
}

// Children returns child nodes in creation order.
func (s *SchemaNode) Children() []*SchemaNode {
	return append([]*SchemaNode(nil), s.children...)
}

func (s *SchemaNode) childNode(name string) *SchemaNode {
	if fd := s.byName[name]; fd != nil && fd.Kind == KindCollection {
		return fd.Child
	}
	return nil
}

// Child returns the named child, creating it and registering a collection
// field of the same name on s the first time.
func (s *SchemaNode) Child(name string) (*SchemaNode, error) {
	if c := s.childNode(name); c != nil {
		return c, nil
	}
	if fd := s.byName[name]; fd != nil {
		return nil, errors.Wrapf(ErrFieldConflict, "%s.%s is a %s field, not a table", s.Label(), name, fd.TypeName())
	}
	path := name
	if s.path != "" {
		path = s.path + "." + name
	}
	c := &SchemaNode{
		name:   name,
		path:   path,
		parent: s,
		byName: make(map[string]*FieldDescriptor),
	}
	fd := &FieldDescriptor{Name: name, Kind: KindCollection, Child: c}
	s.fields = append(s.fields, fd)
	s.byName[name] = fd
	s.children = append(s.children, c)
	return c, nil
}

// Lookup resolves a dotted path relative to s.
func (s *SchemaNode) Lookup(path string) (*SchemaNode, bool) {
	cur := s
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		cur = cur.childNode(seg)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// AddField registers fd. Redeclaring a field with the same type is a no-op
// and map fields merge their keys; anything else is ErrFieldConflict.
func (s *SchemaNode) AddField(fd *FieldDescriptor) error {
	old, ok := s.byName[fd.Name]
	if !ok {
		if fd.Kind == KindCollection {
			return errors.AssertionFailedf("collection fields are created by Child")
		}
		s.fields = append(s.fields, fd)
		s.byName[fd.Name] = fd
		return nil
	}
	if !old.compatible(fd) {
		return errors.Wrapf(ErrFieldConflict, "%s.%s: %s vs %s", s.Label(), fd.Name, old.TypeName(), fd.TypeName())
	}
	if old.Kind == KindMap {
		for _, k := range fd.Keys {
			prev, found := old.MapKeyType(k.Key)
			if !found {
				old.Keys = append(old.Keys, k)
				continue
			}
			if prev.Name() != k.Type.Name() {
				return errors.Wrapf(ErrFieldConflict, "%s.%s[%s]: %s vs %s", s.Label(), fd.Name, k.Key, prev.Name(), k.Type.Name())
			}
		}
	}
	return nil
}

// Summary returns the names of the first three scalar fields.
func (s *SchemaNode) Summary() []string {
	var out []string
	for _, fd := range s.fields {
		if fd.Scalar() {
			out = append(out, fd.Name)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}

// Enqueue defers b until the node is processed.
func (s *SchemaNode) Enqueue(b PendingBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, b)
}

// Pending reports how many blocks are still queued.
func (s *SchemaNode) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Process runs the queued blocks once. The queue is detached before any
// block runs, so a block that re-enters Process on the same node finds it
// empty. A failed block leaves the node failed: the error is returned by
// every later call. Unless lazy, every child is processed too.
func (s *SchemaNode) Process(lazy bool) error {
	s.mu.Lock()
	if s.failed != nil {
		err := s.failed
		s.mu.Unlock()
		return err
	}
	blocks := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, b := range blocks {
		if err := b.Run(); err != nil {
			s.mu.Lock()
			s.failed = err
			s.mu.Unlock()
			return err
		}
	}
	if lazy {
		return nil
	}
	for _, c := range s.Children() {
		if err := c.Process(false); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits s and its descendants depth first.
func (s *SchemaNode) Walk(fn func(*SchemaNode) error) error {
	if err := fn(s); err != nil {
		return err
	}
	for _, c := range s.children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}
