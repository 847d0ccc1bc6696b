package ingest

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/cockroachdb/errors"
)

// maxCombinations bounds the role alternatives of one link block.
const maxCombinations = 256

// linkGroup is the set of columns that creates one side of a link.
type linkGroup struct {
	slot   int
	role   string
	loc    locator
	node   *graph.SchemaNode // container schema
	target string
	cols   []*column // attribute, map and shared columns
	key    string
}

// linkBlock creates the entities of every group in a row and points each
// at the entities created by the other groups. It is queued on every
// target node and runs at most once.
type linkBlock struct {
	e      *Engine
	b      *Block
	groups []*linkGroup
	done   bool
	err    error
}

func (e *Engine) prepareLink(b *Block) (*linkBlock, error) {
	cols, err := parseColumns(b, e.catalog())
	if err != nil {
		return nil, err
	}
	if b.Path == "" {
		return nil, errors.Wrap(ErrUnresolvedPath, "link has no target table")
	}

	var (
		own, shared []*column
		runs        []int
		runRoles    = make(map[int][]string)
	)
	for _, c := range cols {
		if c.shared {
			shared = append(shared, c)
			continue
		}
		if len(c.roles) == 0 {
			return nil, errors.Wrapf(ErrMissingHeader, "column %s has no role", c.label())
		}
		own = append(own, c)
		if _, ok := runRoles[c.run]; !ok {
			runs = append(runs, c.run)
			runRoles[c.run] = c.roles
		}
	}
	if len(own) == 0 {
		return nil, errors.Wrap(ErrNoLinkGroup, "link has no role columns")
	}

	total := 1
	for _, run := range runs {
		total *= len(runRoles[run])
		if total > maxCombinations {
			return nil, errors.Newf("link %q has more than %d role combinations", b.Path, maxCombinations)
		}
	}

	l := &linkBlock{e: e, b: b}
	seen := make(map[string]bool)
	var reasons []string
	for n := 0; n < total; n++ {
		rest := n
		pick := make(map[int]string, len(runs))
		for _, run := range runs {
			alts := runRoles[run]
			pick[run] = alts[rest%len(alts)]
			rest /= len(alts)
		}
		groups, err := e.resolveCombination(b, own, shared, pick)
		if err != nil {
			reasons = append(reasons, err.Error())
			log.Printf("Engine: link %q: dropped combination %v: %v", b.Path, pick, err)
			continue
		}
		for _, g := range groups {
			if !seen[g.key] {
				seen[g.key] = true
				l.groups = append(l.groups, g)
			}
		}
	}
	if len(l.groups) == 0 {
		return nil, errors.Wrapf(ErrNoLinkGroup, "link %q: %s", b.Path, strings.Join(reasons, "; "))
	}
	sort.SliceStable(l.groups, func(i, j int) bool { return l.groups[i].slot < l.groups[j].slot })

	queued := make(map[*graph.SchemaNode]bool)
	for _, g := range l.groups {
		node, err := g.node.Child(g.target)
		if err != nil {
			return nil, err
		}
		if err := registerFields(node, g.cols); err != nil {
			return nil, err
		}
		if err := node.AddField(graph.ValueField(graph.PositionField, field.Int).Unindexed()); err != nil {
			return nil, err
		}
		if err := node.AddField(graph.ObjectField(graph.PeerField)); err != nil {
			return nil, err
		}
		if !queued[node] {
			queued[node] = true
			node.Enqueue(l)
		}
	}
	return l, nil
}

// resolveCombination builds the groups of one role assignment. A group's
// slot is the order in which its role first appears. Any group that fails
// to resolve invalidates the whole combination.
func (e *Engine) resolveCombination(b *Block, own, shared []*column, pick map[int]string) ([]*linkGroup, error) {
	byRole := make(map[string][]*column)
	var roles []string
	for _, c := range own {
		r := pick[c.run]
		if _, ok := byRole[r]; !ok {
			roles = append(roles, r)
		}
		byRole[r] = append(byRole[r], c)
	}
	out := make([]*linkGroup, 0, len(roles))
	for slot, r := range roles {
		g, err := e.resolveGroup(b, r, slot, byRole[r], shared)
		if err != nil {
			return nil, errors.Wrapf(err, "role %s", r)
		}
		out = append(out, g)
	}
	return out, nil
}

func (e *Engine) resolveGroup(b *Block, role string, slot int, cols, shared []*column) (*linkGroup, error) {
	var sels []*column
	g := &linkGroup{slot: slot, role: role}
	seenAttr := false
	for _, c := range cols {
		if c.kind == colSelector {
			if seenAttr {
				return nil, errors.Wrapf(ErrHeaderOrder, "selector %s after attribute columns", c.label())
			}
			// Selectors are shared by the group, so copies keep per-group types.
			cp := *c
			sels = append(sels, &cp)
			continue
		}
		seenAttr = true
		g.cols = append(g.cols, c)
	}
	// Shared columns join every group, wherever they sit in the header.
	g.cols = append(g.cols, shared...)

	root := e.Graph.Schema()
	var containerSegs []string
	if strings.Contains(b.Path, ".") {
		segs := strings.Split(b.Path, ".")
		if _, ok := root.Lookup(strings.Join(segs[:len(segs)-1], ".")); !ok {
			return nil, errors.Wrapf(ErrUnresolvedPath, "%q: parent table is not defined", b.Path)
		}
		containerSegs, g.target = segs[:len(segs)-1], segs[len(segs)-1]
	} else {
		if len(sels) == 0 {
			return nil, errors.Wrap(ErrUnresolvedPath, "no selector columns")
		}
		var chain []string
		for _, s := range sels {
			if len(chain) == 0 || chain[len(chain)-1] != s.segment {
				chain = append(chain, s.segment)
			}
		}
		node, err := findChain(root, chain)
		if err != nil {
			return nil, err
		}
		containerSegs, g.target = strings.Split(node.Path(), "."), b.Path
	}

	g.loc = newLocator(containerSegs)
	from := 0
	for _, s := range sels {
		k, ok := g.loc.bind(s, from)
		if !ok {
			return nil, errors.Wrapf(ErrUnresolvedPath, "selector %s does not name a parent of %s", s.label(), strings.Join(containerSegs, "."))
		}
		from = k
	}
	g.loc.typeSelectors(root)
	g.node, _ = root.Lookup(strings.Join(containerSegs, "."))

	idx := make([]string, 0, len(sels)+len(g.cols))
	for _, s := range sels {
		idx = append(idx, fmt.Sprint(s.index))
	}
	for _, c := range g.cols {
		idx = append(idx, fmt.Sprint(c.index))
	}
	g.key = fmt.Sprintf("%d|%s|%s|%s", slot, strings.Join(containerSegs, "."), g.target, strings.Join(idx, ","))
	return g, nil
}

// findChain returns the unique schema node whose path contains chain as a
// subsequence and ends in its last segment.
func findChain(root *graph.SchemaNode, chain []string) (*graph.SchemaNode, error) {
	var found []*graph.SchemaNode
	_ = root.Walk(func(n *graph.SchemaNode) error {
		if n.IsRoot() || n.Name() != chain[len(chain)-1] {
			return nil
		}
		segs := strings.Split(n.Path(), ".")
		i := 0
		for _, s := range segs {
			if i < len(chain) && s == chain[i] {
				i++
			}
		}
		if i == len(chain) {
			found = append(found, n)
		}
		return nil
	})
	switch len(found) {
	case 0:
		return nil, errors.Wrapf(ErrUnresolvedPath, "no table matches %s", strings.Join(chain, "."))
	case 1:
		return found[0], nil
	}
	paths := make([]string, len(found))
	for i, n := range found {
		paths[i] = n.Path()
	}
	return nil, errors.Wrapf(ErrUnresolvedPath, "%s is ambiguous: %s", strings.Join(chain, "."), strings.Join(paths, ", "))
}

// Run inserts the rows once. Later calls return the first run's error, so
// a block queued on several nodes fails every one of them.
func (l *linkBlock) Run() error {
	if !l.done {
		l.done = true
		l.err = l.run()
	}
	return l.err
}

func (l *linkBlock) run() error {
	g := l.e.Graph
	for _, r := range l.b.Rows {
		reported := make(map[string]bool)
		created := make(map[int][]*graph.Entity)
		for _, grp := range l.groups {
			attrs, problems := rowValues(r, grp.cols)
			for _, p := range problems {
				if reported[p.Error()] {
					continue
				}
				reported[p.Error()] = true
				if err := l.e.warn(l.b.Source, r.Line, p); err != nil {
					return err
				}
			}
			containers, err := grp.loc.containers(g, r)
			if err != nil {
				if err := l.e.warn(l.b.Source, r.Line, err); err != nil {
					return err
				}
				continue
			}
			attrs[graph.PositionField] = int64(grp.slot)
			for _, c := range containers {
				ent, err := g.Insert(c, grp.target, cloneAttrs(attrs))
				if err != nil {
					if err := l.e.warn(l.b.Source, r.Line, err); err != nil {
						return err
					}
					break
				}
				created[grp.slot] = append(created[grp.slot], ent)
			}
		}
		if err := linkPeers(g, created); err != nil {
			return loadErr(l.b.Source, r.Line, err)
		}
	}
	return nil
}

// linkPeers sets each entity's peer to the entities of the other slots:
// a single Entity when there is exactly one, a PeerCollection otherwise.
func linkPeers(g *graph.Graph, created map[int][]*graph.Entity) error {
	slots := make([]int, 0, len(created))
	for s := range created {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	for _, s := range slots {
		var peers []*graph.Entity
		for _, o := range slots {
			if o != s {
				peers = append(peers, created[o]...)
			}
		}
		if len(peers) == 0 {
			continue
		}
		var v any = graph.NewPeerCollection(g, peers...)
		if len(peers) == 1 {
			v = peers[0]
		}
		for _, ent := range created[s] {
			if err := ent.Set(graph.PeerField, v); err != nil {
				return err
			}
		}
	}
	return nil
}
