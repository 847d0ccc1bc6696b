package graph

import "github.com/agentic-research/netmodel/internal/field"

// Export materializes the graph and renders it as nested maps and slices
// of JSON-friendly values, rooted at the root Entity. Tables become arrays
// of objects and peers become their summary strings.
func (g *Graph) Export() (map[string]any, error) {
	if err := g.Materialize(); err != nil {
		return nil, err
	}
	return exportEntity(g.root), nil
}

func exportEntity(e *Entity) map[string]any {
	m := make(map[string]any, len(e.attrs)+len(e.children))
	for _, fd := range e.schema.fields {
		switch fd.Kind {
		case KindCollection:
			rows := e.childCollection(fd.Name).Entities()
			items := make([]any, 0, len(rows))
			for _, child := range rows {
				items = append(items, exportEntity(child))
			}
			m[fd.Name] = items
		case KindObject:
			switch p := e.attrs[fd.Name].(type) {
			case *Entity:
				m[fd.Name] = p.String()
			case *PeerCollection:
				var names []any
				for _, pe := range p.Entities() {
					names = append(names, pe.String())
				}
				m[fd.Name] = names
			}
		default:
			if v, ok := e.attrs[fd.Name]; ok {
				m[fd.Name] = exportValue(v)
			}
		}
	}
	return m
}

func exportValue(v any) any {
	switch x := v.(type) {
	case nil, string, int64, bool:
		return x
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = exportValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = exportValue(item)
		}
		return out
	}
	return field.Format(v)
}
