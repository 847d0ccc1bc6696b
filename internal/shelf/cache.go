package shelf

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
)

// FormatVersion is bumped whenever the saved graph changes shape.
const FormatVersion = 1

const (
	keyVersion = "version"
	keyTag     = "tag"
	keyRoot    = "data_root"
	keyFiles   = "data_files"
)

// FileSet maps a source path to its modification time in Unix nanoseconds.
type FileSet map[string]int64

// Stat records the modification time of every path.
func Stat(fsys billy.Filesystem, paths []string) (FileSet, error) {
	out := make(FileSet, len(paths))
	for _, p := range paths {
		info, err := fsys.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", p)
		}
		out[p] = info.ModTime().UnixNano()
	}
	return out, nil
}

// Stale returns why a graph saved for fs cannot serve cur, or "" when it
// can. Files may not appear, disappear or get newer.
func (fs FileSet) Stale(cur FileSet) string {
	var added []string
	for p := range cur {
		if _, ok := fs[p]; !ok {
			added = append(added, p)
		}
	}
	if len(added) > 0 {
		sort.Strings(added)
		return fmt.Sprintf("new file %s", added[0])
	}
	var gone, newer []string
	for p, saved := range fs {
		now, ok := cur[p]
		switch {
		case !ok:
			gone = append(gone, p)
		case now > saved:
			newer = append(newer, p)
		}
	}
	if len(gone) > 0 {
		sort.Strings(gone)
		return fmt.Sprintf("missing file %s", gone[0])
	}
	if len(newer) > 0 {
		sort.Strings(newer)
		return fmt.Sprintf("%s changed", newer[0])
	}
	return ""
}

// Cache reattaches a saved graph when its sources are unchanged and
// rebuilds it otherwise.
type Cache struct {
	Shelf *Shelf
	FS    billy.Filesystem
	// Tag must match the saved tag for a hit. Callers encode load options
	// that change the result.
	Tag      string
	Catalog  *field.Catalog
	Sequence *graph.Sequence
}

// Load returns the saved graph for files when it is still valid. Otherwise
// it calls build and saves the result. The second return reports a hit.
// Problems with the saved copy never fail the load.
func (c *Cache) Load(files []string, build func() (*graph.Graph, error)) (*graph.Graph, bool, error) {
	start := time.Now()
	cur, err := Stat(c.FS, files)
	if err != nil {
		// A missing source is the loader's error to report.
		return c.rebuild(nil, build)
	}
	g, reason := c.restore(cur)
	if g != nil {
		log.Printf("Shelf: reattached %s entities from %s in %v", humanize.Comma(int64(g.Len()-1)), c.Shelf.Path(), time.Since(start))
		return g, true, nil
	}
	log.Printf("Shelf: rebuilding (%s)", reason)
	return c.rebuild(cur, build)
}

func (c *Cache) restore(cur FileSet) (*graph.Graph, string) {
	raw, ok, err := c.Shelf.Get(keyVersion)
	if err != nil {
		return nil, err.Error()
	}
	if !ok {
		return nil, "empty shelf"
	}
	if v, err := strconv.Atoi(string(raw)); err != nil || v != FormatVersion {
		return nil, fmt.Sprintf("version %q, want %d", raw, FormatVersion)
	}
	tag, _, err := c.Shelf.Get(keyTag)
	if err != nil {
		return nil, err.Error()
	}
	if string(tag) != c.Tag {
		return nil, fmt.Sprintf("options changed from %q", tag)
	}

	raw, ok, err = c.Shelf.Get(keyFiles)
	if err != nil || !ok {
		return nil, "no file set"
	}
	var saved FileSet
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Sprintf("file set: %v", err)
	}
	if reason := saved.Stale(cur); reason != "" {
		return nil, reason
	}

	raw, ok, err = c.Shelf.Get(keyRoot)
	if err != nil || !ok {
		return nil, "no saved graph"
	}
	var snap graph.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Sprintf("saved graph: %v", err)
	}
	cat := c.Catalog
	if cat == nil {
		cat = field.Default()
	}
	seq := c.Sequence
	if seq == nil {
		seq = graph.NewSequence()
	}
	seq.Reset()
	g, err := graph.Restore(&snap, cat, seq)
	if err != nil {
		return nil, fmt.Sprintf("restore: %v", err)
	}
	return g, ""
}

func (c *Cache) rebuild(cur FileSet, build func() (*graph.Graph, error)) (*graph.Graph, bool, error) {
	g, err := build()
	if err != nil {
		return nil, false, err
	}
	// A lazy build still has queued blocks; their errors fail the load
	// rather than the save.
	if err := g.Materialize(); err != nil {
		return nil, false, err
	}
	if cur == nil {
		return g, false, nil
	}
	if err := c.Save(g, cur); err != nil {
		log.Printf("Shelf: save failed: %v", err)
	}
	return g, false, nil
}

// Save stores g as the graph for files.
func (c *Cache) Save(g *graph.Graph, files FileSet) error {
	snap, err := g.Snapshot()
	if err != nil {
		return err
	}
	root, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode graph")
	}
	fs, err := json.Marshal(files)
	if err != nil {
		return errors.Wrap(err, "encode file set")
	}
	if err := c.Shelf.PutAll(map[string][]byte{
		keyVersion: []byte(strconv.Itoa(FormatVersion)),
		keyTag:     []byte(c.Tag),
		keyFiles:   fs,
		keyRoot:    root,
	}); err != nil {
		return err
	}
	log.Printf("Shelf: saved %d files, %s", len(files), humanize.Bytes(uint64(len(root))))
	return nil
}

// Invalidate drops the saved version so the next Load rebuilds.
func (c *Cache) Invalidate() error {
	return c.Shelf.Delete(keyVersion)
}
