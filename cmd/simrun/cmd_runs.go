package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agentsim.ai/internal/persistence/indexdb"
)

func newRunsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in a run index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := indexdb.OpenSQLite(dbPath)
			if err != nil {
				return err
			}
			defer idx.Close()
			runs, err := idx.Runs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				status := "running"
				switch {
				case r.Error != "":
					status = "failed: " + r.Error
				case !r.FinishedAt.IsZero():
					status = fmt.Sprintf("done in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
				}
				fmt.Fprintf(out, "%s %s scenario=%s agents=%d cores=%d ticks=%d rows=%d %s\n",
					r.StartedAt.Format(time.RFC3339), r.RunID, r.Scenario, r.Agents, r.Cores, r.TotalTicks, r.Rows, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "index", "./data/runs.sqlite", "run index database")
	return cmd
}
