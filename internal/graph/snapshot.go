package graph

import (
	"encoding/json"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// Snapshot is the serializable form of a fully materialized Graph.
// Entities are stored in arena order, so ids survive a round trip.
type Snapshot struct {
	Schema   *SchemaSnapshot  `json:"schema"`
	Entities []EntitySnapshot `json:"entities"`
	Sequence uint64           `json:"sequence"`
}

type SchemaSnapshot struct {
	Fields []FieldSnapshot `json:"fields,omitempty"`
}

type FieldSnapshot struct {
	Name      string          `json:"name"`
	Kind      FieldKind       `json:"kind"`
	Type      string          `json:"type,omitempty"`
	Keys      []MapKeySnap    `json:"keys,omitempty"`
	Unindexed bool            `json:"unindexed,omitempty"`
	Child     *SchemaSnapshot `json:"child,omitempty"`
}

type MapKeySnap struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

type EntitySnapshot struct {
	Serial   uint64                     `json:"serial"`
	Schema   string                     `json:"schema"`
	Parent   int64                      `json:"parent"`
	Attrs    map[string]json.RawMessage `json:"attrs,omitempty"`
	Children map[string][]byte          `json:"children,omitempty"`
}

type objectRef struct {
	IDs  []uint32 `json:"ids"`
	Many bool     `json:"many,omitempty"`
}

// Snapshot materializes every pending block and captures the graph.
func (g *Graph) Snapshot() (*Snapshot, error) {
	if err := g.Materialize(); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Schema:   snapshotSchema(g.schema),
		Entities: make([]EntitySnapshot, 0, len(g.arena)),
		Sequence: g.seq.Current(),
	}
	for _, e := range g.arena {
		es, err := snapshotEntity(e)
		if err != nil {
			return nil, err
		}
		snap.Entities = append(snap.Entities, es)
	}
	return snap, nil
}

func snapshotSchema(s *SchemaNode) *SchemaSnapshot {
	out := &SchemaSnapshot{}
	for _, fd := range s.fields {
		fs := FieldSnapshot{Name: fd.Name, Kind: fd.Kind, Unindexed: fd.noIndex}
		switch fd.Kind {
		case KindValue:
			fs.Type = fd.Type.Name()
		case KindMap:
			for _, k := range fd.Keys {
				fs.Keys = append(fs.Keys, MapKeySnap{Key: k.Key, Type: k.Type.Name()})
			}
		case KindCollection:
			fs.Child = snapshotSchema(fd.Child)
		}
		out.Fields = append(out.Fields, fs)
	}
	return out
}

func snapshotEntity(e *Entity) (EntitySnapshot, error) {
	es := EntitySnapshot{Serial: e.serial, Schema: e.schema.path, Parent: -1}
	if e.parent != NoEntity {
		es.Parent = int64(e.parent)
	}
	for _, fd := range e.schema.fields {
		if fd.Kind == KindCollection {
			c, ok := e.children[fd.Name]
			if !ok || c.IsEmpty() {
				continue
			}
			b, err := c.members.ToBytes()
			if err != nil {
				return es, errors.Wrapf(err, "encode %s.%s", e.schema.Label(), fd.Name)
			}
			if es.Children == nil {
				es.Children = make(map[string][]byte)
			}
			es.Children[fd.Name] = b
			continue
		}
		v, ok := e.attrs[fd.Name]
		if !ok {
			continue
		}
		raw, err := json.Marshal(encodeValue(fd, v))
		if err != nil {
			return es, errors.Wrapf(err, "encode %s.%s", e.schema.Label(), fd.Name)
		}
		if es.Attrs == nil {
			es.Attrs = make(map[string]json.RawMessage)
		}
		es.Attrs[fd.Name] = raw
	}
	return es, nil
}

func encodeValue(fd *FieldDescriptor, v any) any {
	switch fd.Kind {
	case KindObject:
		switch p := v.(type) {
		case *Entity:
			return objectRef{IDs: []uint32{uint32(p.id)}}
		case *PeerCollection:
			return objectRef{IDs: p.members.ToArray(), Many: true}
		}
		return nil
	case KindMap:
		m, _ := v.(map[string]any)
		out := make(map[string]any, len(m))
		for k, val := range m {
			if t, ok := fd.MapKeyType(k); ok {
				out[k] = t.Encode(val)
			}
		}
		return out
	}
	return fd.Type.Encode(v)
}

// Restore rebuilds a Graph from a snapshot. Type names are resolved
// through cat; seq is advanced past every restored identity.
func Restore(snap *Snapshot, cat *field.Catalog, seq *Sequence) (*Graph, error) {
	if snap == nil || snap.Schema == nil || len(snap.Entities) == 0 {
		return nil, errors.New("empty snapshot")
	}
	if seq == nil {
		seq = NewSequence()
	}
	g := &Graph{schema: NewSchema(), seq: seq}
	if err := restoreSchema(g.schema, snap.Schema, cat); err != nil {
		return nil, err
	}
	nodes := make(map[string]*SchemaNode)
	_ = g.schema.Walk(func(s *SchemaNode) error {
		nodes[s.path] = s
		return nil
	})

	g.arena = make([]*Entity, len(snap.Entities))
	for i, es := range snap.Entities {
		schema, ok := nodes[es.Schema]
		if !ok {
			return nil, errors.Newf("entity %d: unknown schema %q", i, es.Schema)
		}
		parent := NoEntity
		if es.Parent >= 0 {
			if es.Parent >= int64(len(snap.Entities)) {
				return nil, errors.Newf("entity %d: parent %d out of range", i, es.Parent)
			}
			parent = EntityID(es.Parent)
		}
		g.arena[i] = &Entity{
			g:      g,
			id:     EntityID(i),
			serial: es.Serial,
			schema: schema,
			parent: parent,
			attrs:  make(map[string]any, len(es.Attrs)),
		}
	}
	g.root = g.arena[0]
	if !g.root.schema.IsRoot() {
		return nil, errors.New("first entity is not the root")
	}

	for i, es := range snap.Entities {
		e := g.arena[i]
		for name, raw := range es.Attrs {
			fd := e.schema.Field(name)
			if fd == nil {
				return nil, errors.Newf("entity %d: unknown field %q", i, name)
			}
			v, err := g.decodeValue(fd, raw)
			if err != nil {
				return nil, errors.Wrapf(err, "entity %d field %q", i, name)
			}
			e.attrs[name] = v
		}
		for name, b := range es.Children {
			if e.schema.childNode(name) == nil {
				return nil, errors.Newf("entity %d: unknown table %q", i, name)
			}
			bm := roaring.New()
			if err := bm.UnmarshalBinary(b); err != nil {
				return nil, errors.Wrapf(err, "entity %d table %q", i, name)
			}
			if !bm.IsEmpty() && !g.validID(EntityID(bm.Maximum())) {
				return nil, errors.Newf("entity %d table %q: member out of range", i, name)
			}
			e.childCollection(name).members = bm
		}
	}
	seq.Advance(snap.Sequence)
	return g, nil
}

func restoreSchema(s *SchemaNode, snap *SchemaSnapshot, cat *field.Catalog) error {
	for _, fs := range snap.Fields {
		switch fs.Kind {
		case KindCollection:
			child, err := s.Child(fs.Name)
			if err != nil {
				return err
			}
			if fs.Child != nil {
				if err := restoreSchema(child, fs.Child, cat); err != nil {
					return err
				}
			}
		case KindObject:
			if err := s.AddField(ObjectField(fs.Name)); err != nil {
				return err
			}
		case KindMap:
			keys := make([]MapKey, 0, len(fs.Keys))
			for _, k := range fs.Keys {
				t, err := cat.Lookup(k.Type)
				if err != nil {
					return err
				}
				keys = append(keys, MapKey{Key: k.Key, Type: t})
			}
			if err := s.AddField(MapField(fs.Name, keys)); err != nil {
				return err
			}
		default:
			t, err := cat.Lookup(fs.Type)
			if err != nil {
				return err
			}
			fd := ValueField(fs.Name, t)
			if fs.Unindexed {
				fd.Unindexed()
			}
			if err := s.AddField(fd); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) decodeValue(fd *FieldDescriptor, raw json.RawMessage) (any, error) {
	switch fd.Kind {
	case KindObject:
		var ref objectRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, err
		}
		ents := make([]*Entity, 0, len(ref.IDs))
		for _, id := range ref.IDs {
			e := g.Entity(EntityID(id))
			if e == nil {
				return nil, errors.Newf("peer %d out of range", id)
			}
			ents = append(ents, e)
		}
		if !ref.Many && len(ents) == 1 {
			return ents[0], nil
		}
		return NewPeerCollection(g, ents...), nil
	case KindMap:
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(m))
		for k, enc := range m {
			t, ok := fd.MapKeyType(k)
			if !ok {
				return nil, errors.Newf("unknown map key %q", k)
			}
			v, err := t.Decode(enc)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	var enc any
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, err
	}
	return fd.Type.Decode(enc)
}
