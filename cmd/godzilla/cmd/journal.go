package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

var errLimitReached = stderrors.New("limit reached")

var (
	journalDest  string
	journalFrom  string
	journalTo    string
	journalLimit int
	replaySpeed  float64
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Read journals",
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <uname>",
	Short: "Print the frames of a journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return playJournal(args[0], 0)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <uname>",
	Short: "Print the frames of a journal paced by their gen time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return playJournal(args[0], replaySpeed)
	},
}

func init() {
	for _, c := range []*cobra.Command{inspectCmd, replayCmd} {
		c.Flags().StringVar(&journalDest, "dest", "0", "dest uid in hex, 0 is the public journal")
		c.Flags().StringVar(&journalFrom, "from", "", "first gen time, "+nanotime.DefaultFormat)
		c.Flags().StringVar(&journalTo, "to", "", "last gen time, "+nanotime.DefaultFormat)
		c.Flags().IntVarP(&journalLimit, "limit", "n", 0, "stop after n frames, 0 prints all")
		journalCmd.AddCommand(c)
	}
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "playback speed, 0 replays without pacing")
	rootCmd.AddCommand(journalCmd)
}

func playJournal(uname string, speed float64) error {
	loc, err := location.Parse(uname)
	if err != nil {
		return err
	}
	cfg := journal.PlaybackConfig{Location: loc, Speed: speed}
	dest, err := strconv.ParseUint(journalDest, 16, 32)
	if err != nil {
		return errors.Wrapf(exception.ErrConfig, "dest %q, err: %+v", journalDest, err)
	}
	cfg.Dest = uint32(dest)
	if cfg.From, err = parseTime(journalFrom); err != nil {
		return err
	}
	if cfg.To, err = parseTime(journalTo); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	playback, err := journal.NewPlayback(store, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()
	count := 0
	err = playback.Run(ctx, func(f journal.Frame) error {
		fmt.Println(formatFrame(f))
		count++
		if journalLimit > 0 && count >= journalLimit {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, errLimitReached) && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func parseTime(text string) (int64, error) {
	if text == "" {
		return 0, nil
	}
	t, err := nanotime.Strptime(text, nanotime.DefaultFormat)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrConfig, "time %q, err: %+v", text, err)
	}
	return t, nil
}

func formatFrame(f journal.Frame) string {
	return fmt.Sprintf("%s %016x %-20s %08x -> %08x %s",
		nanotime.Strftime(f.GenTime, nanotime.DefaultFormat), f.UID, f.MsgType, f.Source, f.Dest, formatPayload(f))
}

func formatPayload(f journal.Frame) string {
	if codec.IsDocument(f.MsgType) {
		return string(f.Payload)
	}
	rec, err := codec.Unmarshal(f.MsgType, f.Payload)
	if err != nil {
		return fmt.Sprintf("<%d bytes>", len(f.Payload))
	}
	return fmt.Sprintf("%+v", rec)
}
