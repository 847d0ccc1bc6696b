package ingest

import (
	"testing"

	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topologyCSV = `sites;id:int
;1
;2
sites.switches;sites.id;host
;1;sw1
;1;sw2
;2;sw3
sites.routers;sites.id;name
;2;r1
`

func peerOf(t *testing.T, e *graph.Entity) *graph.Entity {
	t.Helper()
	p, ok := e.Get(graph.PeerField, nil).(*graph.Entity)
	require.True(t, ok, "peer of %s is %T", e, e.Get(graph.PeerField, nil))
	return p
}

func switchByHost(t *testing.T, g *graph.Graph, host string) *graph.Entity {
	t.Helper()
	sw, err := where(t, collection(t, g, "sites.switches"), map[string]any{"host": host}).One()
	require.NoError(t, err)
	return sw
}

func TestLink_Symmetry(t *testing.T) {
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;a;a;b;b;
;;;;;
*links;sites.id;switches.host;sites.id;switches.host;*cable
;1;sw1;2;sw3;c-1
;1;sw2;1;sw1;c-2
`}, Options{})
	g := e.Graph

	links := collection(t, g, "sites.switches.links")
	require.Equal(t, 4, links.Len())
	schema := links.Schema()
	require.NotNil(t, schema.Field(graph.PositionField))
	assert.False(t, schema.Field(graph.PositionField).Indexable())
	require.NotNil(t, schema.Field(graph.PeerField))

	for _, a := range links.Entities() {
		b := peerOf(t, a)
		assert.Same(t, a, peerOf(t, b))
		assert.NotEqual(t, a.Get(graph.PositionField, nil), b.Get(graph.PositionField, nil))
		assert.Equal(t, a.Get("cable", nil), b.Get("cable", nil))
	}

	sw1Links, err := switchByHost(t, g, "sw1").Attr("links")
	require.NoError(t, err)
	require.Equal(t, 2, sw1Links.(*graph.Collection).Len())

	c1, err := where(t, links, map[string]any{"cable": "c-1"}).Filter(nil, map[string]any{graph.PositionField: 0})
	require.NoError(t, err)
	a, err := c1.One()
	require.NoError(t, err)
	assert.Same(t, switchByHost(t, g, "sw1"), a.Parent())
	assert.Same(t, switchByHost(t, g, "sw3"), peerOf(t, a).Parent())

	// Flipping the whole table swaps each pair once.
	b := peerOf(t, a)
	assert.Equal(t, 2, graph.Flip(links))
	assert.Equal(t, int64(1), a.Get(graph.PositionField, nil))
	assert.Equal(t, int64(0), b.Get(graph.PositionField, nil))
	assert.Same(t, b, peerOf(t, a))
}

func TestLink_SharedColumnsJoinEveryGroup(t *testing.T) {
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;;a;a;;b;b;;
;;;;;;;;
*links;*kind;sites.id;switches.host;*cable;sites.id;switches.host;port;*note
;fiber;1;sw1;c-1;2;sw3;ge-0;spare
`}, Options{})
	g := e.Graph
	require.Equal(t, 2, collection(t, g, "sites.switches.links").Len())

	sw1Links, err := switchByHost(t, g, "sw1").Attr("links")
	require.NoError(t, err)
	a, err := sw1Links.(*graph.Collection).One()
	require.NoError(t, err)
	b := peerOf(t, a)
	assert.Same(t, switchByHost(t, g, "sw3"), b.Parent())

	for _, m := range []*graph.Entity{a, b} {
		assert.Equal(t, "fiber", m.Get("kind", nil))
		assert.Equal(t, "c-1", m.Get("cable", nil))
		assert.Equal(t, "spare", m.Get("note", nil))
	}
	assert.Nil(t, a.Get("port", nil))
	assert.Equal(t, "ge-0", b.Get("port", nil))
}

func TestLink_RoleAlternatives(t *testing.T) {
	// The second column is either part of group a or its own group b; only
	// the split resolves, since no table sits under both switches and routers.
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;a;a,b
;;
*uplinks;switches.host;routers.name
;sw3;r1
`}, Options{})
	g := e.Graph

	sw3 := switchByHost(t, g, "sw3")
	up, err := sw3.Attr("uplinks")
	require.NoError(t, err)
	link, err := up.(*graph.Collection).One()
	require.NoError(t, err)
	assert.Equal(t, int64(0), link.Get(graph.PositionField, nil))

	peer := peerOf(t, link)
	assert.Equal(t, "sites.routers.uplinks", peer.Schema().Path())
	assert.Equal(t, "r1", peer.Parent().Get("name", nil))
	assert.Equal(t, int64(1), peer.Get(graph.PositionField, nil))
}

func TestLink_AbsolutePath(t *testing.T) {
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;a;b
;;
*sites.switches.stack;switches.host;switches.host
;sw1;sw2
`}, Options{})
	stack := collection(t, e.Graph, "sites.switches.stack")
	assert.Equal(t, 2, stack.Len())
	for _, m := range stack.Entities() {
		assert.Same(t, m, peerOf(t, peerOf(t, m)))
	}
}

func TestLink_ManyPeers(t *testing.T) {
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;a;b;c
;;;
*ring;switches.host;switches.host;switches.host
;sw1;sw2;sw3
`}, Options{})
	ring := collection(t, e.Graph, "sites.switches.ring")
	require.Equal(t, 3, ring.Len())
	for _, m := range ring.Entities() {
		pc, ok := m.Get(graph.PeerField, nil).(*graph.PeerCollection)
		require.True(t, ok)
		assert.Equal(t, 2, pc.Len())
		found, err := pc.Contains(m)
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestLink_NoValidGroup(t *testing.T) {
	err := ingestErr(t, map[string]string{"inv.csv": topologyCSV + `;a;b
;;
*links;racks.id;switches.host
;1;sw1
`}, Options{})
	assert.True(t, errors.Is(err, ErrNoLinkGroup))
}

func TestLink_MissingRole(t *testing.T) {
	err := ingestErr(t, map[string]string{"inv.csv": topologyCSV + `;;a
;;
*links;switches.host;switches.host
;sw1;sw2
`}, Options{})
	assert.True(t, errors.Is(err, ErrMissingHeader))
}

func TestLink_UnknownSelectorValueLinksNothing(t *testing.T) {
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;a;b
;;
*links;switches.host;switches.host
;sw1;nope
`}, Options{})
	links := collection(t, e.Graph, "sites.switches.links")
	require.Equal(t, 1, links.Len())
	one, err := links.One()
	require.NoError(t, err)
	assert.Nil(t, one.Get(graph.PeerField, nil))
}

func TestLink_LazyRunsOnce(t *testing.T) {
	e := ingest(t, map[string]string{"inv.csv": topologyCSV + `;a;b
;;
*links;switches.host;routers.name
;sw3;r1
`}, Options{Lazy: true})
	g := e.Graph
	sw, ok := g.Schema().Lookup("sites.switches.links")
	require.True(t, ok)
	rt, ok := g.Schema().Lookup("sites.routers.links")
	require.True(t, ok)
	assert.Equal(t, 1, sw.Pending())
	assert.Equal(t, 1, rt.Pending())

	assert.Equal(t, 1, collection(t, g, "sites.switches.links").Len())
	// The router side was filled by the same run.
	assert.Equal(t, 1, collection(t, g, "sites.routers.links").Len())
	// root, sites, switches, routers and one link on each side
	assert.Equal(t, 1+2+3+1+2, g.Len())
}
