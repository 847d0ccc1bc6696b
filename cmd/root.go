package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/agentic-research/netmodel/api"
	"github.com/agentic-research/netmodel/internal/config"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/agentic-research/netmodel/internal/ingest"
	"github.com/agentic-research/netmodel/internal/shelf"
	"github.com/cockroachdb/errors"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cachePath  string
	noCache    bool
	lazy       bool
	warnings   bool
	tieBreak   string
)

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "Path to config file (yaml or hcl)")
	f.StringVar(&cachePath, "cache", "", "Path to the graph cache")
	f.BoolVar(&noCache, "no-cache", false, "Always rebuild the graph from the sources")
	f.BoolVar(&lazy, "lazy", false, "Load tables on first access")
	f.BoolVarP(&warnings, "warnings", "w", false, "Report bad cells and rows instead of failing")
	f.StringVar(&tieBreak, "tie-break", "", "Index tie-break: declared or requested")
}

var rootCmd = &cobra.Command{
	Use:           "netmodel",
	Short:         "netmodel: a queryable object graph built from network inventory CSV",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// settings merges the config file with the command line.
func settings(cmd *cobra.Command) (*api.Config, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("cache") {
		cfg.Cache.Path = cachePath
	}
	if flags.Changed("no-cache") {
		cfg.Cache.Disabled = noCache
	}
	if flags.Changed("lazy") {
		cfg.Load.Lazy = lazy
	}
	if flags.Changed("warnings") {
		cfg.Load.Warnings = warnings
	}
	if flags.Changed("tie-break") {
		cfg.Load.TieBreak = tieBreak
	}
	return cfg, nil
}

// loaded is the result of one load.
type loaded struct {
	Graph  *graph.Graph
	Engine *ingest.Engine
	Files  []string
	Cached bool
}

// loadGraph loads args, or the configured sources, through the cache.
func loadGraph(cfg *api.Config, args []string) (*loaded, error) {
	sources := args
	if len(sources) == 0 {
		sources = cfg.Sources
	}
	if len(sources) == 0 {
		return nil, errors.New("no sources: pass CSV files or directories, or set sources in the config")
	}
	sources, err := absolute(sources)
	if err != nil {
		return nil, err
	}
	tb, err := config.TieBreak(cfg)
	if err != nil {
		return nil, err
	}

	seq := graph.NewSequence()
	engine := ingest.NewEngine(osfs.New("/"), ingest.Options{
		Lazy:            cfg.Load.Lazy,
		CollectWarnings: cfg.Load.Warnings,
		TieBreak:        tb,
		Sequence:        seq,
	})
	files, err := engine.Sources(sources...)
	if err != nil {
		return nil, err
	}
	out := &loaded{Engine: engine, Files: files}

	if cfg.Cache.Disabled {
		out.Graph, err = engine.Load(files...)
		return out, err
	}
	s, err := shelf.Open(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	cache := &shelf.Cache{
		Shelf:    s,
		FS:       engine.FS,
		Tag:      "warnings=" + strconv.FormatBool(cfg.Load.Warnings),
		Sequence: seq,
	}
	out.Graph, out.Cached, err = cache.Load(files, func() (*graph.Graph, error) {
		return engine.Load(files...)
	})
	if err != nil {
		return nil, err
	}
	out.Graph.TieBreak = tb
	return out, nil
}

// absolute makes paths usable on a filesystem rooted at /.
func absolute(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", p)
		}
		out[i] = abs
	}
	return out, nil
}
