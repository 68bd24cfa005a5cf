package cmd

import (
	"github.com/spf13/cobra"
	"github.com/uswork-ny/godzilla-community/internal/paper"
)

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Run master, ledger, simulated venues and the demo strategy in one process",
	Args:  cobra.NoArgs,
	RunE:  runPaper,
}

func init() {
	rootCmd.AddCommand(paperCmd)
}

func runPaper(*cobra.Command, []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	c, db, err := openMarketDB()
	if err != nil {
		return err
	}
	defer c.Close()

	engine, err := paper.New(loaded, store, db)
	if err != nil {
		return err
	}
	ctx, cancel := shutdownContext()
	defer cancel()

	runErr := engine.Run(ctx)
	if err := engine.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
