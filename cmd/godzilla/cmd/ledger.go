package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/uswork-ny/godzilla-community/internal/ledger"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/marketdb"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/pkg/conn"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Run the ledger service",
	Args:  cobra.NoArgs,
	RunE:  runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}

func openMarketDB() (*conn.Client, *marketdb.Store, error) {
	c, err := conn.New(loaded.MarketDB)
	if err != nil {
		return nil, nil, err
	}
	db, err := marketdb.New(c.DB())
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return c, db, nil
}

func runLedger(*cobra.Command, []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	c, db, err := openMarketDB()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := node.New(store, location.Ledger(loaded.Mode), node.Config{Metrics: obs.NewMetrics()})
	if err != nil {
		return err
	}
	defer n.Close()
	svc, err := ledger.New(n, ledger.Config{MarketDB: db, SnapshotDir: loaded.Ledger.SnapshotDir})
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()
	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return svc.Dump()
}
