package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var selectPath string

var dumpCmd = &cobra.Command{
	Use:   "dump [sources...]",
	Short: "Print the graph as JSON, optionally narrowed by a JSONPath",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := settings(cmd)
		if err != nil {
			return err
		}
		res, err := loadGraph(cfg, args)
		if err != nil {
			return err
		}
		data, err := res.Graph.Export()
		if err != nil {
			return err
		}
		out, err := selectJSON(data, selectPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), oj.JSON(out, &ojg.Options{Indent: 2, Sort: true}))
		return nil
	},
}

// selectJSON applies a JSONPath to the exported graph. An empty path
// returns data unchanged.
func selectJSON(data map[string]any, path string) (any, error) {
	if path == "" {
		return data, nil
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid jsonpath %q", path)
	}
	return x.Get(data), nil
}

func init() {
	dumpCmd.Flags().StringVarP(&selectPath, "select", "s", "", "JSONPath applied to the exported graph")
	rootCmd.AddCommand(dumpCmd)
}
