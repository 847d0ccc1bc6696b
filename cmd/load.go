package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load [sources...]",
	Short: "Load CSV sources and print entity counts per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := settings(cmd)
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := loadGraph(cfg, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		table := tablewriter.NewWriter(out)
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"table", "entities", "fields"})
		err = res.Graph.Schema().Walk(func(s *graph.SchemaNode) error {
			if s.IsRoot() {
				return nil
			}
			c, err := res.Graph.Collection(s.Path())
			if err != nil {
				return err
			}
			var names []string
			for _, fd := range s.Fields() {
				if fd.Kind != graph.KindCollection {
					names = append(names, fd.Name)
				}
			}
			table.Append([]string{s.Path(), humanize.Comma(int64(c.Len())), strings.Join(names, ", ")})
			return nil
		})
		if err != nil {
			return err
		}
		table.Render()

		how := "loaded"
		if res.Cached {
			how = "restored from cache"
		}
		fmt.Fprintf(out, "%s entities from %d files %s in %v\n",
			humanize.Comma(int64(res.Graph.Len()-1)), len(res.Files), how, time.Since(start).Round(time.Millisecond))
		if w := res.Engine.Warnings; !res.Cached && w.Count() > 0 {
			fmt.Fprintf(out, "%d warnings:\n%s", w.Count(), w.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
