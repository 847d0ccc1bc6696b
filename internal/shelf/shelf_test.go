package shelf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/agentic-research/netmodel/internal/ingest"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitesCSV = `sites;id:int;name
;1;HQ
;2;Branch
sites.switches;sites.id;host
;1;sw1
;2;sw2
`

func TestShelf_GetPut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "graph.db")
	s, err := Open(path)
	require.NoError(t, err)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("k", []byte("one")))
	require.NoError(t, s.Put("k", []byte("two")))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(v))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err = s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(v))

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileSet_Stale(t *testing.T) {
	saved := FileSet{"a.csv": 10, "b.csv": 20}
	assert.Equal(t, "", saved.Stale(FileSet{"a.csv": 10, "b.csv": 20}))
	// Older files are fine: only a newer mtime invalidates.
	assert.Equal(t, "", saved.Stale(FileSet{"a.csv": 5, "b.csv": 20}))
	assert.Contains(t, saved.Stale(FileSet{"a.csv": 11, "b.csv": 20}), "a.csv changed")
	assert.Contains(t, saved.Stale(FileSet{"a.csv": 10}), "missing file b.csv")
	assert.Contains(t, saved.Stale(FileSet{"a.csv": 10, "b.csv": 20, "c.csv": 1}), "new file c.csv")
}

type fixture struct {
	dir    string
	cache  *Cache
	builds int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inv.csv"), []byte(sitesCSV), 0o644))
	s, err := Open(filepath.Join(dir, "cache", "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{
		dir:   dir,
		cache: &Cache{Shelf: s, FS: osfs.New(dir), Sequence: graph.NewSequence()},
	}
}

func (f *fixture) load(t *testing.T, files ...string) (*graph.Graph, bool) {
	t.Helper()
	if len(files) == 0 {
		files = []string{"inv.csv"}
	}
	g, hit, err := f.cache.Load(files, func() (*graph.Graph, error) {
		f.builds++
		e := ingest.NewEngine(f.cache.FS, ingest.Options{Sequence: f.cache.Sequence})
		return e.Load(files...)
	})
	require.NoError(t, err)
	return g, hit
}

func (f *fixture) touch(t *testing.T, name string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(filepath.Join(f.dir, name), at, at))
}

func TestCache_HitRestoresSameGraph(t *testing.T) {
	f := newFixture(t)
	built, hit := f.load(t)
	assert.False(t, hit)
	want, err := built.Export()
	require.NoError(t, err)

	restored, hit := f.load(t)
	assert.True(t, hit)
	assert.Equal(t, 1, f.builds)
	got, err := restored.Export()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Indexes and children work on the reattached graph.
	sites, err := restored.Collection("sites")
	require.NoError(t, err)
	hq, err := sites.Where(map[string]any{"id": 1})
	require.NoError(t, err)
	sw, err := hq.Attr("switches")
	require.NoError(t, err)
	assert.Equal(t, 1, sw.(*graph.Collection).Len())

	// Root plus four rows; new entities continue after the restored identities.
	assert.Equal(t, uint64(5), f.cache.Sequence.Current())
}

func TestCache_NewerFileRebuilds(t *testing.T) {
	f := newFixture(t)
	f.touch(t, "inv.csv", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	f.load(t)

	f.touch(t, "inv.csv", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	_, hit := f.load(t)
	assert.True(t, hit)

	f.touch(t, "inv.csv", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	_, hit = f.load(t)
	assert.False(t, hit)
	assert.Equal(t, 2, f.builds)

	_, hit = f.load(t)
	assert.True(t, hit)
}

func TestCache_FileSetChangeRebuilds(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "extra.csv"), []byte("racks;id:int\n;1\n"), 0o644))

	g, hit := f.load(t, "inv.csv", "extra.csv")
	assert.False(t, hit)
	_, err := g.Collection("racks")
	require.NoError(t, err)

	_, hit = f.load(t)
	assert.False(t, hit)
	assert.Equal(t, 3, f.builds)
}

func TestCache_VersionAndTagMismatchRebuild(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	require.NoError(t, f.cache.Shelf.Put(keyVersion, []byte("0")))
	_, hit := f.load(t)
	assert.False(t, hit)

	f.cache.Tag = "warnings"
	_, hit = f.load(t)
	assert.False(t, hit)
	_, hit = f.load(t)
	assert.True(t, hit)

	require.NoError(t, f.cache.Invalidate())
	_, hit = f.load(t)
	assert.False(t, hit)
	assert.Equal(t, 4, f.builds)
}

func TestCache_CorruptGraphRebuildsSilently(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	require.NoError(t, f.cache.Shelf.Put(keyRoot, []byte("{not json")))
	g, hit := f.load(t)
	assert.False(t, hit)
	assert.Equal(t, 5, g.Len())

	require.NoError(t, f.cache.Shelf.Put(keyRoot, []byte(`{"schema":{},"entities":[]}`)))
	_, hit = f.load(t)
	assert.False(t, hit)
}

func TestCache_MissingSourceFailsThroughBuild(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.cache.Load([]string{"gone.csv"}, func() (*graph.Graph, error) {
		return ingest.NewEngine(f.cache.FS, ingest.Options{}).Load("gone.csv")
	})
	require.Error(t, err)
	var le *ingest.LoadError
	assert.ErrorAs(t, err, &le)
}

func TestCache_LazyBuildErrorFailsLoad(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "inv.csv"), []byte("sites;id:int\n;1\n;oops\n;2\n"), 0o644))
	build := func() (*graph.Graph, error) {
		return ingest.NewEngine(f.cache.FS, ingest.Options{Lazy: true}).Load("inv.csv")
	}
	_, hit, err := f.cache.Load([]string{"inv.csv"}, build)
	require.Error(t, err)
	assert.False(t, hit)
	var le *ingest.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.Row)

	// Nothing was saved, so the next load fails the same way.
	_, ok, err := f.cache.Shelf.Get(keyVersion)
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = f.cache.Load([]string{"inv.csv"}, build)
	assert.Error(t, err)
}
