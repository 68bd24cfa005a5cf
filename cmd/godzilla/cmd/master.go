package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/yanun0323/logs"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the master that admits locations and wires their journals",
	Args:  cobra.NoArgs,
	RunE:  runMaster,
}

func init() {
	rootCmd.AddCommand(masterCmd)
}

func runMaster(*cobra.Command, []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	metrics := obs.NewMetrics()
	store.WithMetrics(metrics)

	m, err := node.NewMaster(store, loaded.Mode, node.MasterConfig{Metrics: metrics})
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := shutdownContext()
	defer cancel()
	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logs.Infof("master stopped, %+v", metrics.Snapshot())
	return nil
}
