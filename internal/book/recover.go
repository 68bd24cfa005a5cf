package book

import (
	"context"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Stream names one journal to replay.
type Stream struct {
	Source *location.Location
	Dest   uint32
}

// RecoverConfig controls snapshot plus journal recovery.
type RecoverConfig struct {
	Store        *journal.Store
	Location     *location.Location
	SnapshotPath string
	Streams      []Stream
}

// Recover loads the snapshot, if any, and replays the streams from the frame
// after the snapshot to rebuild the book of cfg.Location.
func Recover(ctx context.Context, cfg RecoverConfig) (*PositionBook, error) {
	if cfg.Store == nil || cfg.Location == nil {
		return nil, errors.Wrap(exception.ErrConfig, "recover needs a store and a location")
	}
	book := NewPositionBook(cfg.Location)
	from := int64(0)
	if cfg.SnapshotPath != "" {
		snap, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		if snap.Location != "" && snap.Location != cfg.Location.UName {
			return nil, errors.Wrapf(exception.ErrConfig, "snapshot belongs to %s", snap.Location)
		}
		book.Restore(snap)
		from = snap.LastGenTime + 1
	}

	reader := cfg.Store.NewReader()
	defer reader.Close()
	for _, s := range cfg.Streams {
		if err := reader.Join(s.Source, s.Dest, from); err != nil {
			return nil, err
		}
	}

	b := bus.New(reader, cfg.Store.Clock(), bus.Config{Replay: true})
	defer b.Close()
	subscribeBook(b, cfg.Location, book)
	if err := b.Run(ctx); err != nil {
		return nil, err
	}
	logs.Infof("recovered %s: %d positions, %d orders, last gen time %d",
		cfg.Location.UName, book.Positions(), book.Orders(), book.LastGenTime())
	return book, nil
}
