package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentic-research/netmodel/api"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/agentic-research/netmodel/internal/watcher"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [sources...]",
	Short: "Reload the graph whenever a source changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := settings(cmd)
		if err != nil {
			return err
		}
		sources := args
		if len(sources) == 0 {
			sources = cfg.Sources
		}
		out := cmd.OutOrStdout()
		live := graph.NewHotSwap(nil)
		if err := reload(out, cfg, sources, live); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		w := watcher.New(sources, func(changed []string) {
			for _, p := range changed {
				fmt.Fprintf(out, "changed: %s\n", p)
			}
			if err := reload(out, cfg, sources, live); err != nil {
				// Keep watching; the next edit may fix it.
				log.Printf("Watcher: reload failed: %v", err)
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}).WithDebounce(cfg.Watch.Debounce)
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// reload loads sources and installs the result in live. On failure the
// previous graph stays installed.
func reload(out io.Writer, cfg *api.Config, sources []string, live *graph.HotSwap) error {
	res, err := loadGraph(cfg, sources)
	if err != nil {
		return err
	}
	live.Swap(res.Graph)
	how := "loaded"
	if res.Cached {
		how = "cached"
	}
	fmt.Fprintf(out, "%s entities from %d files (%s, generation %d)\n",
		humanize.Comma(int64(res.Graph.Len()-1)), len(res.Files), how, live.Swaps())
	if w := res.Engine.Warnings; !res.Cached && w.Count() > 0 {
		fmt.Fprint(out, w.String())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
