package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	logger := log.New(os.Stdout, "[simrun] ", log.LstdFlags|log.Lmicroseconds)

	rootCmd := &cobra.Command{
		Use:   "simrun",
		Short: "Run and inspect agent simulations",
		Long: `simrun steps a generated agent population for a number of ticks,
on one goroutine or split across a coordinator and worker goroutines,
and records the reduced per-tick values of every attribute set.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		newRunCmd(logger),
		newInspectCmd(),
		newScenariosCmd(),
		newReplayCmd(),
		newRunsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
