package query_test

import (
	"testing"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/agentic-research/netmodel/internal/query"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func TestExpr_Comparisons(t *testing.T) {
	subject := row("mtu", int64(1500), "host", "sw1")
	cases := []struct {
		name string
		expr *query.Expr
		want bool
	}{
		{"eq", query.X().Attr("mtu").Eq(1500), true},
		{"ne", query.X().Attr("mtu").Ne(1500), false},
		{"lt", query.X().Attr("mtu").Lt(9000), true},
		{"le", query.X().Attr("mtu").Le(1500), true},
		{"gt", query.X().Attr("mtu").Gt(1500), false},
		{"ge", query.X().Attr("mtu").Ge(1500), true},
		{"string eq", query.X().Attr("host").Eq("sw1"), true},
		{"missing compares false", query.X().Attr("speed").Gt(0), false},
		{"missing equals nil", query.X().Attr("speed").Eq(nil), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.expr.Test(subject)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExpr_IncomparableFails(t *testing.T) {
	_, err := query.X().Attr("host").Lt(5).Test(row("host", "sw1"))
	assert.True(t, errors.Is(err, field.ErrIncomparable))
}

func TestExpr_DeferredOperand(t *testing.T) {
	expr := query.X().Attr("mtu").Gt(query.X().Attr("parent_mtu"))

	ok, err := expr.Test(row("mtu", int64(9000), "parent_mtu", int64(1500)))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = expr.Test(row("mtu", int64(1500), "parent_mtu", int64(9000)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_Membership(t *testing.T) {
	subject := row("vlan", int64(20), "tags", []any{"core", "lab"}, "descr", "uplink to core")

	ok, err := query.X().Attr("vlan").In([]any{10, 20}).Test(subject)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = query.X().Attr("vlan").NotIn([]any{10, 20}).Test(subject)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = query.X().Attr("vlan").In(query.X().Attr("tags")).Test(subject)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = query.X().Attr("descr").In("uplink to core router").Test(subject)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = query.X().Attr("vlan").In(42).Test(subject)
	assert.True(t, errors.Is(err, query.ErrUnsupported))
}

func TestExpr_Match(t *testing.T) {
	_, err := query.X().Attr("host").Match("(")
	require.Error(t, err)

	expr := query.X().Attr("host").MustMatch(`^sw\d+$`)
	ok, err := expr.Test(row("host", "sw12"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = expr.Test(row("host", "rtr1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_AttrThroughNil(t *testing.T) {
	got, err := query.X().Attr("peer").Attr("host").Resolve(row())
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = query.X().Attr("mtu").Attr("x").Resolve(row("mtu", int64(1)))
	assert.True(t, errors.Is(err, query.ErrUnsupported))
}

func TestExpr_OneOnList(t *testing.T) {
	got, err := query.X().Attr("ids").One().Resolve(row("ids", []any{int64(7)}))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	_, err = query.X().Attr("ids").One().Resolve(row("ids", []any{int64(7), int64(8)}))
	assert.Error(t, err)
}

func TestExpr_Immutable(t *testing.T) {
	base := query.X().Attr("mtu")
	a := base.Eq(1)
	b := base.Eq(2)
	assert.Equal(t, "X.mtu", base.String())
	assert.Equal(t, "X.mtu == 1", a.String())
	assert.Equal(t, "X.mtu == 2", b.String())
}

func TestExpr_String(t *testing.T) {
	e := query.X().Attr("switches").Call(
		[]any{query.X().Attr("mtu").Ge(9000)},
		map[string]any{"host": "sw1", "area": query.X().Attr("area")},
	).One().Attr("host").In([]any{"a", "b"})
	assert.Equal(t, `+(X.switches(X.mtu >= 9000, area=X.area, host="sw1")).host in ["a", "b"]`, e.String())
}

func newSites(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(nil)
	sites, err := g.Schema().Child("sites")
	require.NoError(t, err)
	require.NoError(t, sites.AddField(graph.ValueField("id", field.Int)))
	require.NoError(t, sites.AddField(graph.ValueField("mtu", field.Int)))
	sw, err := sites.Child("switches")
	require.NoError(t, err)
	require.NoError(t, sw.AddField(graph.ValueField("host", field.String)))
	require.NoError(t, sw.AddField(graph.ValueField("mtu", field.Int)))

	hq, err := g.Insert(g.Root(), "sites", map[string]any{"id": int64(1), "mtu": int64(1500)})
	require.NoError(t, err)
	br, err := g.Insert(g.Root(), "sites", map[string]any{"id": int64(2), "mtu": int64(9000)})
	require.NoError(t, err)
	for _, ins := range []struct {
		site *graph.Entity
		host string
		mtu  int64
	}{{hq, "sw1", 1500}, {hq, "sw2", 9000}, {br, "sw3", 9000}} {
		_, err := g.Insert(ins.site, "switches", map[string]any{"host": ins.host, "mtu": ins.mtu})
		require.NoError(t, err)
	}
	return g
}

func TestExpr_FiltersCollections(t *testing.T) {
	g := newSites(t)
	sites, err := g.Collection("sites")
	require.NoError(t, err)

	jumbo, err := sites.Filter([]graph.Predicate{query.X().Attr("mtu").Ge(9000)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, jumbo.Len())
	site, err := jumbo.One()
	require.NoError(t, err)
	assert.Equal(t, int64(2), site.Get("id", nil))

	// Sites owning a jumbo switch called sw2.
	owner := query.X().Attr("switches").Call(
		[]any{query.X().Attr("mtu").Ne(1500)}, map[string]any{"host": "sw2"},
	)
	res, err := sites.Filter([]graph.Predicate{owner}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	site, err = res.One()
	require.NoError(t, err)
	assert.Equal(t, int64(1), site.Get("id", nil))
}

func TestExpr_FilterCacheUsesString(t *testing.T) {
	g := newSites(t)
	sites, err := g.Collection("sites")
	require.NoError(t, err)

	a, err := sites.Filter([]graph.Predicate{query.X().Attr("mtu").Lt(2000)}, nil)
	require.NoError(t, err)
	b, err := sites.Filter([]graph.Predicate{query.X().Attr("mtu").Lt(2000)}, nil)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestExpr_ExtractAndMembershipOnEntities(t *testing.T) {
	g := newSites(t)
	switches, err := g.Collection("sites.switches")
	require.NoError(t, err)
	sites, err := g.Collection("sites")
	require.NoError(t, err)

	hq, err := query.X().Where(map[string]any{"id": 1}).One().Resolve(sites)
	require.NoError(t, err)
	hqSite := hq.(*graph.Entity)

	hqSwitches, err := hqSite.Attr("switches")
	require.NoError(t, err)
	res, err := switches.Filter([]graph.Predicate{query.X().In(hqSwitches)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	_, err = query.X().One().Resolve(switches)
	assert.True(t, errors.Is(err, graph.ErrCardinality))
}
