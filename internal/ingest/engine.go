package ingest

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Options tune a load.
type Options struct {
	// Lazy leaves blocks queued until their table is first read.
	Lazy bool
	// CollectWarnings records conversion and row problems in
	// Engine.Warnings and keeps going. Without it they fail the load.
	CollectWarnings bool
	TieBreak        graph.TieBreak
	Catalog         *field.Catalog
	Sequence        *graph.Sequence
}

// Engine drives the ingestion process.
type Engine struct {
	FS      billy.Filesystem
	Options Options

	// Set by Ingest.
	Graph    *graph.Graph
	Warnings Warnings
	Files    []string
}

func NewEngine(fsys billy.Filesystem, opts Options) *Engine {
	if opts.Sequence == nil {
		opts.Sequence = graph.NewSequence()
	}
	return &Engine{FS: fsys, Options: opts}
}

func (e *Engine) catalog() *field.Catalog {
	if e.Options.Catalog != nil {
		return e.Options.Catalog
	}
	return field.Default()
}

// Sources expands paths into the CSV files they name. Directories are
// walked for *.csv files; the result is sorted and free of duplicates.
func (e *Engine) Sources(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range paths {
		info, err := e.FS.Stat(p)
		if err != nil {
			return nil, &LoadError{Source: p, Err: err}
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = util.Walk(e.FS, p, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Source: p, Err: err}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Ingest loads paths into a fresh Graph. The identity sequence restarts at
// every load. Table blocks are prepared shallow first, then link blocks;
// unless Lazy, every queued block runs before Ingest returns.
func (e *Engine) Ingest(paths ...string) error {
	files, err := e.Sources(paths...)
	if err != nil {
		return err
	}
	e.Options.Sequence.Reset()
	e.Graph = graph.New(e.Options.Sequence)
	e.Graph.TieBreak = e.Options.TieBreak
	e.Warnings = Warnings{}
	e.Files = files

	var blocks []*Block
	for _, f := range files {
		src, err := ReadSource(e.FS, f)
		if err != nil {
			return err
		}
		bs, err := Segment(src, e.catalog())
		if err != nil {
			return err
		}
		rows := 0
		for _, b := range bs {
			rows += len(b.Rows)
		}
		log.Printf("Engine: read %s (%d blocks, %s rows)", f, len(bs), humanize.Comma(int64(rows)))
		blocks = append(blocks, bs...)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Kind != blocks[j].Kind {
			return blocks[i].Kind < blocks[j].Kind
		}
		return blocks[i].Depth() < blocks[j].Depth()
	})
	for _, b := range blocks {
		if err := e.prepare(b); err != nil {
			return loadErr(b.Source, b.Line(), err)
		}
	}
	if e.Options.Lazy {
		return nil
	}
	if err := e.Graph.Materialize(); err != nil {
		return err
	}
	log.Printf("Engine: loaded %s entities from %d files", humanize.Comma(int64(e.Graph.Len()-1)), len(files))
	return nil
}

// Load is Ingest returning the graph.
func (e *Engine) Load(paths ...string) (*graph.Graph, error) {
	if err := e.Ingest(paths...); err != nil {
		return nil, err
	}
	return e.Graph, nil
}

func (e *Engine) prepare(b *Block) error {
	switch {
	case b.Kind == LinkBlock:
		_, err := e.prepareLink(b)
		return err
	case b.Path == VariablesTable:
		return e.loadVariables(b)
	}
	_, err := e.prepareTable(b)
	return err
}

// warn records a recoverable problem, or returns it as a LoadError when
// warnings are not collected.
func (e *Engine) warn(source string, row int, err error) error {
	if err == nil {
		return nil
	}
	if e.Options.CollectWarnings {
		e.Warnings.add(source, row, err.Error())
		return nil
	}
	return loadErr(source, row, err)
}
