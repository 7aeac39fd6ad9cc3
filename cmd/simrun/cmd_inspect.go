package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"agentsim.ai/internal/persistence/snapshot"
	"agentsim.ai/internal/sim/scenario"
)

func newInspectCmd() *cobra.Command {
	var headerOnly bool
	cmd := &cobra.Command{
		Use:   "inspect <results-file>",
		Short: "Print a results file written by run --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if headerOnly {
				h, err := snapshot.ReadHeader(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run=%s version=%d rows=%d\n", h.RunID, h.Version, h.Rows)
				return nil
			}
			res, err := snapshot.Read(args[0])
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&headerOnly, "header", false, "only print the file header")
	return cmd
}

func printResults(w io.Writer, res snapshot.ResultsV1) {
	fmt.Fprintf(w, "run=%s scenario=%s agents=%d cores=%d ticks=%d warm_up=%d synced=%v rows=%d\n",
		res.Header.RunID, res.Scenario, res.Agents, res.Cores, res.TotalTicks, res.WarmUpTicks, res.Synced, res.Header.Rows)
	for _, s := range res.Series {
		vals := make([]string, len(s.Values))
		for i, v := range s.Values {
			vals[i] = fmt.Sprintf("%g", v)
		}
		fmt.Fprintf(w, "%s/%s %s %s: %s\n", s.Scope, s.Set, s.Kind, s.Name, strings.Join(vals, " "))
	}
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range scenario.Names() {
				sc, _ := scenario.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", sc.Name, sc.Description)
			}
			return nil
		},
	}
}
