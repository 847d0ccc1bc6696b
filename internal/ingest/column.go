package ingest

import (
	"regexp"
	"strings"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/cockroachdb/errors"
)

type columnKind int

const (
	colAttr columnKind = iota
	colSelector
	colMap
)

var mapCell = regexp.MustCompile(`^([^\[\]]+)\[([^\[\]]+)\]$`)

// column is one parsed header cell.
type column struct {
	index   int
	kind    columnKind
	name    string // attribute, map base, or selected attribute
	segment string // selector only
	key     string // map only
	typ     field.Type
	typed   bool
	aliases []string
	shared  bool
	roles   []string
	run     int // columns in one run pick the same role alternative
}

func (c *column) label() string {
	switch c.kind {
	case colSelector:
		return c.segment + "." + c.name
	case colMap:
		return c.name + "[" + c.key + "]"
	}
	return c.name
}

// parseColumns reads the name and type rows of b. Link blocks keep their
// "*" shared marker and role cells; header order is checked per group by
// the caller.
func parseColumns(b *Block, cat *field.Catalog) ([]*column, error) {
	var (
		cols     []*column
		seenAttr bool
		roles    []string
		run      int
	)
	for i := 1; i < len(b.Names.Cells); i++ {
		if b.Kind == LinkBlock {
			if r := b.roleAt(i); r != "" {
				roles = splitRoles(r)
				run++
			}
		}
		raw := b.Names.Cells[i]
		if raw == "" {
			continue
		}
		col := &column{index: i}
		if b.Kind == LinkBlock {
			if strings.HasPrefix(raw, "*") {
				col.shared = true
				raw = strings.TrimSpace(raw[1:])
			}
			col.roles, col.run = roles, run
		}

		name, nameAliases := splitAliases(raw)
		typeName, typeAliases := splitAliases(b.typeAt(i))
		if n, t, ok := strings.Cut(name, ":"); ok {
			name, typeName = strings.TrimSpace(n), strings.TrimSpace(t)
		}
		col.aliases = append(typeAliases, nameAliases...)
		if typeName != "" {
			t, err := cat.Lookup(typeName)
			if err != nil {
				return nil, errors.Wrapf(err, "column %q", raw)
			}
			col.typ, col.typed = t, true
		} else {
			col.typ = field.String
		}

		switch {
		case strings.Contains(name, "."):
			seg, attr, _ := strings.Cut(name, ".")
			if seg == "" || attr == "" || strings.Contains(attr, ".") {
				return nil, errors.Wrapf(ErrHeaderOrder, "malformed selector %q", name)
			}
			if col.shared {
				return nil, errors.Wrapf(ErrHeaderOrder, "selector %q cannot be shared", name)
			}
			if b.Kind == TableBlock && seenAttr {
				return nil, errors.Wrapf(ErrHeaderOrder, "selector %q after attribute columns", name)
			}
			col.kind, col.segment, col.name = colSelector, seg, attr
		case mapCell.MatchString(name):
			m := mapCell.FindStringSubmatch(name)
			col.kind, col.name, col.key = colMap, strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			seenAttr = true
		default:
			if name == "" {
				return nil, errors.Newf("column %d has an empty name", i)
			}
			col.name = name
			seenAttr = true
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func splitRoles(cell string) []string {
	var out []string
	for _, r := range strings.Split(cell, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// resolveSelector fills in the type of an untyped selector from the field it
// selects on, once the ancestor schema is known.
func (c *column) resolveSelector(node *graph.SchemaNode) {
	if c.typed {
		return
	}
	if fd := node.Field(c.name); fd != nil && fd.Kind == graph.KindValue {
		c.typ = fd.Type
	}
}

// registerFields declares the attribute and map columns on node.
func registerFields(node *graph.SchemaNode, cols []*column) error {
	maps := make(map[string][]graph.MapKey)
	var mapOrder []string
	for _, c := range cols {
		switch c.kind {
		case colAttr:
			for _, name := range append([]string{c.name}, c.aliases...) {
				if err := node.AddField(graph.ValueField(name, c.typ)); err != nil {
					return err
				}
			}
		case colMap:
			if _, ok := maps[c.name]; !ok {
				mapOrder = append(mapOrder, c.name)
			}
			maps[c.name] = append(maps[c.name], graph.MapKey{Key: c.key, Type: c.typ})
		}
	}
	for _, name := range mapOrder {
		if err := node.AddField(graph.MapField(name, maps[name])); err != nil {
			return err
		}
	}
	return nil
}

// rowValues converts the attribute and map cells of r. Empty cells are
// left out. Conversion failures are returned one per cell.
func rowValues(r Record, cols []*column) (map[string]any, []error) {
	attrs := make(map[string]any)
	var problems []error
	for _, c := range cols {
		if c.kind == colSelector {
			continue
		}
		raw := r.Cell(c.index)
		if raw == "" {
			continue
		}
		v, err := c.typ.Convert(raw)
		if err != nil {
			problems = append(problems, errors.Wrapf(err, "column %s", c.label()))
			continue
		}
		switch c.kind {
		case colMap:
			m, _ := attrs[c.name].(map[string]any)
			if m == nil {
				m = make(map[string]any)
				attrs[c.name] = m
			}
			m[c.key] = v
		default:
			attrs[c.name] = v
			for _, a := range c.aliases {
				attrs[a] = v
			}
		}
	}
	return attrs, problems
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if m, ok := v.(map[string]any); ok {
			cm := make(map[string]any, len(m))
			for mk, mv := range m {
				cm[mk] = mv
			}
			v = cm
		}
		out[k] = v
	}
	return out
}
