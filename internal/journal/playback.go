package journal

import (
	"context"
	"time"

	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// PlaybackConfig selects one journal and a time range to replay. To == 0 means
// up to the last committed frame.
type PlaybackConfig struct {
	Location *location.Location
	Dest     uint32
	From     int64
	To       int64
	Speed    float64
}

// Sleeper paces playback.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays the committed frames of one journal.
type Playback struct {
	store   *Store
	cfg     PlaybackConfig
	sleeper Sleeper
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(store *Store, cfg PlaybackConfig) (*Playback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{store: store, cfg: cfg, sleeper: realSleeper{}}, nil
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Location == nil {
		return errors.Wrap(exception.ErrConfig, "playback location is nil")
	}
	if c.Speed < 0 {
		return errors.Wrap(exception.ErrConfig, "playback speed must be >= 0")
	}
	if c.To != 0 && c.To < c.From {
		return errors.Wrap(exception.ErrConfig, "playback range is reversed")
	}
	return nil
}

// WithSleeper swaps the pacing implementation.
func (p *Playback) WithSleeper(s Sleeper) *Playback {
	if s != nil {
		p.sleeper = s
	}
	return p
}

// Run calls handler for every frame in range and returns once the journal has
// nothing more to offer.
func (p *Playback) Run(ctx context.Context, handler func(Frame) error) error {
	if handler == nil {
		return errors.Wrap(exception.ErrConfig, "playback handler is nil")
	}
	reader := p.store.NewReader()
	defer reader.Close()
	if err := reader.Join(p.cfg.Location, p.cfg.Dest, p.cfg.From); err != nil {
		return err
	}

	var prev int64
	for reader.DataAvailable() {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := reader.Current()
		if p.cfg.To != 0 && frame.GenTime > p.cfg.To {
			return nil
		}
		if err := p.pace(ctx, frame.GenTime, &prev); err != nil {
			return err
		}
		if err := handler(frame); err != nil {
			return err
		}
		reader.Next()
	}
	return nil
}

func (p *Playback) pace(ctx context.Context, current int64, prev *int64) error {
	if p.cfg.Speed <= 0 || current <= 0 {
		return nil
	}
	if *prev > 0 {
		if delta := current - *prev; delta > 0 {
			if err := p.sleeper.Sleep(ctx, time.Duration(float64(delta)/p.cfg.Speed)); err != nil {
				return err
			}
		}
	}
	*prev = current
	return nil
}
