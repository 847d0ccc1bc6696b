package cmd

import (
	"strings"

	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [sources...]",
	Short: "Print the schema tree with field types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := settings(cmd)
		if err != nil {
			return err
		}
		res, err := loadGraph(cfg, args)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"table", "field", "type", "indexed"})
		return schemaRows(res.Graph.Schema(), table)
	},
}

func schemaRows(root *graph.SchemaNode, table *tablewriter.Table) error {
	err := root.Walk(func(s *graph.SchemaNode) error {
		indent := strings.Repeat("  ", max(s.Depth()-1, 0))
		label := indent + s.Name()
		if s.IsRoot() {
			label = "(root)"
		}
		for _, fd := range s.Fields() {
			if fd.Kind == graph.KindCollection {
				continue
			}
			indexed := ""
			if fd.Indexable() {
				indexed = "yes"
			}
			table.Append([]string{label, fd.Name, fd.TypeName(), indexed})
			label = ""
		}
		if label != "" && !s.IsRoot() {
			table.Append([]string{label, "", "", ""})
		}
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
