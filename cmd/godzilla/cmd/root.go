package cmd

import (
	"context"

	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/ops"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

var (
	configPath    string
	pyroscopeAddr string

	loaded   ops.Loaded
	profiler *pyroscope.Profiler
)

var rootCmd = &cobra.Command{
	Use:   "godzilla",
	Short: "Journal-backed trading runtime",
	Long: `Godzilla runs the processes of a trading deployment over shared
memory-mapped journals: the master that wires every location, the ledger that
books assets and positions, and a paper setup with simulated venues.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML or JSON config (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&pyroscopeAddr, "pyroscope", "", "pyroscope server address, enables profiling")
}

func setup(*cobra.Command, []string) error {
	var err error
	if loaded, err = ops.Load(configPath); err != nil {
		return err
	}
	if pyroscopeAddr != "" {
		loaded.Profiling.Enabled = true
		loaded.Profiling.ServerAddress = pyroscopeAddr
	}
	if !loaded.Profiling.Enabled {
		return nil
	}
	profiler, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: loaded.Profiling.ApplicationName,
		ServerAddress:   loaded.Profiling.ServerAddress,
		Tags:            loaded.Profiling.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return err
	}
	logs.Infof("profiling to %s as %s", loaded.Profiling.ServerAddress, loaded.Profiling.ApplicationName)
	return nil
}

func teardown(*cobra.Command, []string) error {
	if profiler == nil {
		return nil
	}
	return profiler.Stop()
}

// shutdownContext is cancelled on the first shutdown signal.
func shutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Infof("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func openStore() (*journal.Store, error) {
	return journal.NewStore(loaded.Journal)
}
