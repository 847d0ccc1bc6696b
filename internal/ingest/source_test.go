package ingest

import (
	"testing"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ',', DetectDelimiter([]byte("sites,id\n,1\n")))
	assert.Equal(t, ';', DetectDelimiter([]byte("sites;id\n;1\n")))
	// First matching line wins even if a later one disagrees.
	assert.Equal(t, ',', DetectDelimiter([]byte("# notes; here\n  ,1;2\n;3\n")))
	assert.Equal(t, DefaultDelimiter, DetectDelimiter([]byte("sites\n")))
}

func TestParseSource_CleansCells(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("sites ; id:int ;  name\n;  1 ; \"HQ; main\"\n")...)
	src, err := ParseSource("a.csv", data)
	require.NoError(t, err)
	assert.Equal(t, ';', src.Delimiter)
	require.Len(t, src.Records, 2)
	assert.Equal(t, []string{"sites", "id:int", "name"}, src.Records[0].Cells)
	assert.Equal(t, []string{"", "1", "HQ; main"}, src.Records[1].Cells)
	assert.Equal(t, 1, src.Records[0].Line)
	assert.Equal(t, 2, src.Records[1].Line)
}

func TestRecord_Helpers(t *testing.T) {
	r := Record{Cells: []string{"", "a", "! ignore", "b"}}
	assert.Equal(t, "", r.First())
	assert.Equal(t, "", r.Cell(10))
	assert.False(t, r.Blank())
	assert.Equal(t, []string{"", "a"}, r.truncated().Cells)

	assert.True(t, Record{Cells: []string{"", ""}}.Blank())
	assert.True(t, Record{Cells: []string{"# comment", "x"}}.Comment())
	assert.True(t, Record{Cells: []string{"!", "x"}}.Comment())
	assert.False(t, Record{Cells: []string{"", "#x"}}.Comment())
}

func segment(t *testing.T, text string) []*Block {
	t.Helper()
	src, err := ParseSource("inv.csv", []byte(text))
	require.NoError(t, err)
	blocks, err := Segment(src, field.Default())
	require.NoError(t, err)
	return blocks
}

func TestSegment_Tables(t *testing.T) {
	blocks := segment(t, `# inventory
sites;id:int;name
;1;HQ
!;9;hidden
;;
;2;Branch
;int;string
sites.switches;sites.id;host;! notes
# a comment row
;1;sw1
`)
	require.Len(t, blocks, 2)

	sites := blocks[0]
	assert.Equal(t, TableBlock, sites.Kind)
	assert.Equal(t, "sites", sites.Path)
	assert.Nil(t, sites.Types)
	require.Len(t, sites.Rows, 2)
	assert.Equal(t, 3, sites.Rows[0].Line)
	assert.Equal(t, 6, sites.Rows[1].Line)

	sw := blocks[1]
	assert.Equal(t, "sites.switches", sw.Path)
	assert.Equal(t, 2, sw.Depth())
	require.NotNil(t, sw.Types)
	assert.Equal(t, "int", sw.typeAt(1))
	assert.Equal(t, []string{"sites.switches", "sites.id", "host"}, sw.Names.Cells)
	require.Len(t, sw.Rows, 1)
	assert.Equal(t, "sw1", sw.Rows[0].Cell(2))
}

func TestSegment_DataRowIsNotATypeRow(t *testing.T) {
	blocks := segment(t, "sites;id\n;1\n;2\nsites.switches;host\n;sw1\n")
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Rows, 2)
	assert.Nil(t, blocks[1].Types)
}

func TestSegment_Link(t *testing.T) {
	blocks := segment(t, `sites;id
;1
;a;b
;;
*links;switches.host;switches.host
;sw1;sw2
`)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Rows, 1)
	l := blocks[1]
	assert.Equal(t, LinkBlock, l.Kind)
	assert.Equal(t, "links", l.Path)
	assert.Equal(t, "a", l.roleAt(1))
	assert.Equal(t, "b", l.roleAt(2))
	require.Len(t, l.Rows, 1)
}

func TestSegment_LinkWithoutHeaders(t *testing.T) {
	src, err := ParseSource("inv.csv", []byte("sites;id\n*links;switches.host\n;sw1\n"))
	require.NoError(t, err)
	_, err = Segment(src, field.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingHeader))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 2, le.Row)
}

func TestSplitAliases(t *testing.T) {
	base, aliases := splitAliases("string // hostname//name")
	assert.Equal(t, "string", base)
	assert.Equal(t, []string{"hostname", "name"}, aliases)

	base, aliases = splitAliases("//alias")
	assert.Equal(t, "", base)
	assert.Equal(t, []string{"alias"}, aliases)
}
