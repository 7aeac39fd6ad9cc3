package main

import (
	"fmt"

	"github.com/spf13/cobra"

	persistlog "agentsim.ai/internal/persistence/log"
	"agentsim.ai/internal/persistence/snapshot"
	"agentsim.ai/internal/sim/results"
)

func newReplayCmd() *cobra.Command {
	var (
		resultsPath string
		fromTick    int
		toTick      int
	)
	cmd := &cobra.Command{
		Use:   "replay <tick-log-run-dir>",
		Short: "Check a run's tick log against its results file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := persistlog.ReadTicks(args[0])
			if err != nil {
				return fmt.Errorf("read ticks: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("no tick log segments found in %s", args[0])
			}
			if resultsPath == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "tick log: rows=%d first=%d last=%d\n", len(rows), rows[0].Tick, rows[len(rows)-1].Tick)
				return nil
			}
			res, err := snapshot.Read(resultsPath)
			if err != nil {
				return fmt.Errorf("read results: %w", err)
			}
			checked, err := verifyTicks(res, rows, fromTick, toTick)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replay ok: checked=%d ticks (run=%s)\n", checked, res.Header.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&resultsPath, "results", "", "results file written by run --out")
	cmd.Flags().IntVar(&fromTick, "from-tick", 0, "start verifying from tick (inclusive)")
	cmd.Flags().IntVar(&toTick, "to-tick", -1, "stop at tick (inclusive, negative for the last)")
	return cmd
}

// verifyTicks checks every logged cell against the value at the same row of
// the matching series.
func verifyTicks(res snapshot.ResultsV1, rows []results.Row, fromTick, toTick int) (int, error) {
	if len(rows) != len(res.Ticks) {
		return 0, fmt.Errorf("row count mismatch: log=%d results=%d", len(rows), len(res.Ticks))
	}
	checked := 0
	for i, row := range rows {
		if row.Tick != res.Ticks[i] {
			return checked, fmt.Errorf("tick mismatch at row %d: log=%d results=%d", i, row.Tick, res.Ticks[i])
		}
		if row.Tick < fromTick {
			continue
		}
		if toTick >= 0 && row.Tick > toTick {
			break
		}
		for _, c := range row.Cells {
			s := res.Find(string(c.Scope), c.Set, c.Kind, c.Name)
			if s == nil {
				return checked, fmt.Errorf("tick %d: %s/%s %s %s missing from results", row.Tick, c.Scope, c.Set, c.Kind, c.Name)
			}
			if i >= len(s.Values) || s.Values[i] != c.Value {
				return checked, fmt.Errorf("value mismatch at tick %d for %s/%s %s: log=%g", row.Tick, c.Set, c.Kind, c.Name, c.Value)
			}
		}
		checked++
	}
	return checked, nil
}
