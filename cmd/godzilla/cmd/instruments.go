package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
)

var instrumentsExchange string

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "List the instruments stored in the market database",
	Args:  cobra.NoArgs,
	RunE:  listInstruments,
}

func init() {
	instrumentsCmd.Flags().StringVarP(&instrumentsExchange, "exchange", "e", "", "only list this exchange")
	rootCmd.AddCommand(instrumentsCmd)
}

func listInstruments(*cobra.Command, []string) error {
	c, db, err := openMarketDB()
	if err != nil {
		return err
	}
	defer c.Close()

	rows, err := db.List(context.Background(), instrumentsExchange)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXCHANGE\tSYMBOL\tTYPE\tUPDATED")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.ExchangeID, row.Symbol,
			msg.InstrumentType(row.InstrumentType), nanotime.Strftime(row.UpdateTime, nanotime.DefaultFormat))
	}
	return w.Flush()
}
