package ingest

import (
	"strings"

	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/cockroachdb/errors"
)

// locator narrows from the root to the entities that receive a row: each
// container segment is projected from the previous level and filtered by
// the selector cells collected for it.
type locator struct {
	segs []string
	sels [][]*column
}

func newLocator(segs []string) locator {
	return locator{segs: segs, sels: make([][]*column, len(segs))}
}

// bind attaches a selector to the first container segment at or after
// from that it names, returning that segment's index.
func (l *locator) bind(c *column, from int) (int, bool) {
	for k := from; k < len(l.segs); k++ {
		if l.segs[k] == c.segment {
			l.sels[k] = append(l.sels[k], c)
			return k, true
		}
	}
	return 0, false
}

// typeSelectors gives untyped selectors the type of the field they select.
func (l *locator) typeSelectors(root *graph.SchemaNode) {
	node := root
	for k, seg := range l.segs {
		node, _ = node.Lookup(seg)
		if node == nil {
			return
		}
		for _, c := range l.sels[k] {
			c.resolveSelector(node)
		}
	}
}

// containers returns the entities r is inserted under. A blank selector
// cell yields no containers and no error.
func (l *locator) containers(g *graph.Graph, r Record) ([]*graph.Entity, error) {
	if len(l.segs) == 0 {
		return []*graph.Entity{g.Root()}, nil
	}
	var cur graph.Attributer = g.Root()
	for k, seg := range l.segs {
		v, err := cur.Attr(seg)
		if err != nil {
			return nil, err
		}
		c, ok := v.(*graph.Collection)
		if !ok {
			return nil, errors.Newf("%s is not a table", seg)
		}
		if sels := l.sels[k]; len(sels) > 0 {
			kw := make(map[string]any, len(sels))
			for _, s := range sels {
				raw := r.Cell(s.index)
				if raw == "" {
					return nil, nil
				}
				val, err := s.typ.Convert(raw)
				if err != nil {
					return nil, errors.Wrapf(err, "selector %s", s.label())
				}
				kw[s.name] = val
			}
			if c, err = c.Where(kw); err != nil {
				return nil, err
			}
		}
		cur = c
	}
	return cur.(*graph.Collection).Entities(), nil
}

// tableBlock inserts the rows of one table block. It runs at most once.
type tableBlock struct {
	e      *Engine
	b      *Block
	loc    locator
	target string
	cols   []*column
	done   bool
	err    error
}

// prepareTable resolves the block's path and header against the schema and
// queues the rows on the target node.
func (e *Engine) prepareTable(b *Block) (*tableBlock, error) {
	cols, err := parseColumns(b, e.catalog())
	if err != nil {
		return nil, err
	}
	segs := strings.Split(b.Path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, errors.Wrapf(ErrUnresolvedPath, "malformed path %q", b.Path)
		}
	}
	root := e.Graph.Schema()
	container, ok := root.Lookup(strings.Join(segs[:len(segs)-1], "."))
	if !ok {
		return nil, errors.Wrapf(ErrUnresolvedPath, "%q: parent table is not defined", b.Path)
	}

	t := &tableBlock{e: e, b: b, loc: newLocator(segs[:len(segs)-1]), target: segs[len(segs)-1]}
	for _, c := range cols {
		if c.kind != colSelector {
			t.cols = append(t.cols, c)
			continue
		}
		if _, ok := t.loc.bind(c, 0); !ok {
			return nil, errors.Wrapf(ErrUnresolvedPath, "selector %s does not name a parent of %q", c.label(), b.Path)
		}
	}
	t.loc.typeSelectors(root)

	node, err := container.Child(t.target)
	if err != nil {
		return nil, err
	}
	if err := registerFields(node, t.cols); err != nil {
		return nil, err
	}
	node.Enqueue(t)
	return t, nil
}

// Run inserts the rows once. Later calls return the first run's error, so
// a block queued on several nodes fails every one of them.
func (t *tableBlock) Run() error {
	if !t.done {
		t.done = true
		t.err = t.run()
	}
	return t.err
}

func (t *tableBlock) run() error {
	g := t.e.Graph
	for _, r := range t.b.Rows {
		attrs, problems := rowValues(r, t.cols)
		for _, p := range problems {
			if err := t.e.warn(t.b.Source, r.Line, p); err != nil {
				return err
			}
		}
		containers, err := t.loc.containers(g, r)
		if err != nil {
			if err := t.e.warn(t.b.Source, r.Line, err); err != nil {
				return err
			}
			continue
		}
		for i, c := range containers {
			a := attrs
			if i > 0 {
				a = cloneAttrs(attrs)
			}
			if _, err := g.Insert(c, t.target, a); err != nil {
				if err := t.e.warn(t.b.Source, r.Line, err); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// loadVariables stores each column of the variables table on the root.
// It runs immediately; no variables table remains in the schema.
func (e *Engine) loadVariables(b *Block) error {
	cols, err := parseColumns(b, e.catalog())
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c.kind == colSelector {
			return errors.Wrapf(ErrHeaderOrder, "variables cannot have selector %s", c.label())
		}
	}
	root := e.Graph.Root()
	if err := registerFields(root.Schema(), cols); err != nil {
		return err
	}
	for _, r := range b.Rows {
		attrs, problems := rowValues(r, cols)
		for _, p := range problems {
			if err := e.warn(b.Source, r.Line, p); err != nil {
				return err
			}
		}
		for name, v := range attrs {
			if m, ok := v.(map[string]any); ok {
				if prev, ok := root.Get(name, nil).(map[string]any); ok {
					merged := cloneAttrs(prev)
					for k, mv := range m {
						merged[k] = mv
					}
					v = merged
				}
			}
			if err := root.Set(name, v); err != nil {
				return err
			}
		}
	}
	return nil
}
