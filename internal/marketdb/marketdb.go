package marketdb

import (
	"context"
	stderrors "errors"

	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarketInfo is one row of market_info. Config is opaque to the store.
type MarketInfo struct {
	Symbol         string `gorm:"column:symbol;primaryKey"`
	ExchangeID     string `gorm:"column:exchange_id;primaryKey"`
	InstrumentType int32  `gorm:"column:instrument_type;primaryKey;autoIncrement:false"`
	Config         string `gorm:"column:config"`
	UpdateTime     int64  `gorm:"column:update_time"`
}

func (MarketInfo) TableName() string { return "market_info" }

// Store keeps instrument metadata.
type Store struct {
	db    *gorm.DB
	clock nanotime.Clock
}

// New migrates market_info on db.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&MarketInfo{}); err != nil {
		return nil, errors.Wrapf(exception.ErrIO, "migrate market_info, err: %+v", err)
	}
	return &Store{db: db, clock: nanotime.SystemClock{}}, nil
}

// WithClock sets the clock stamping update_time.
func (s *Store) WithClock(clock nanotime.Clock) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Put inserts info or replaces the row with the same key.
func (s *Store) Put(ctx context.Context, info MarketInfo) error {
	if info.UpdateTime == 0 {
		info.UpdateTime = s.clock.Now()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&info).Error
	if err != nil {
		return errors.Wrapf(exception.ErrIO, "put %s@%s, err: %+v", info.Symbol, info.ExchangeID, err)
	}
	return nil
}

// Config returns the config of one instrument. ok is false when there is none.
func (s *Store) Config(ctx context.Context, symbol, exchange string, instType msg.InstrumentType) (string, bool, error) {
	var info MarketInfo
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND exchange_id = ? AND instrument_type = ?", symbol, exchange, int32(instType)).
		Take(&info).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(exception.ErrIO, "get %s@%s, err: %+v", symbol, exchange, err)
	}
	return info.Config, true, nil
}

// List returns the rows of exchange, or every row when exchange is empty.
func (s *Store) List(ctx context.Context, exchange string) ([]MarketInfo, error) {
	var infos []MarketInfo
	q := s.db.WithContext(ctx).Order("exchange_id, symbol, instrument_type")
	if exchange != "" {
		q = q.Where("exchange_id = ?", exchange)
	}
	if err := q.Find(&infos).Error; err != nil {
		return nil, errors.Wrapf(exception.ErrIO, "list market_info, err: %+v", err)
	}
	return infos, nil
}

// PutInstrument stores inst with the instrument itself as config.
func (s *Store) PutInstrument(ctx context.Context, inst msg.Instrument) error {
	data, err := codec.MarshalJSON(inst)
	if err != nil {
		return err
	}
	return s.Put(ctx, MarketInfo{
		Symbol:         inst.Symbol,
		ExchangeID:     inst.ExchangeID,
		InstrumentType: int32(inst.InstrumentType),
		Config:         string(data),
	})
}

// Instruments decodes the rows written by PutInstrument. Rows whose config is
// not an instrument are skipped.
func (s *Store) Instruments(ctx context.Context, exchange string) ([]msg.Instrument, error) {
	infos, err := s.List(ctx, exchange)
	if err != nil {
		return nil, err
	}
	out := make([]msg.Instrument, 0, len(infos))
	for _, info := range infos {
		var inst msg.Instrument
		if err := codec.UnmarshalJSON([]byte(info.Config), &inst); err != nil || inst.Symbol == "" {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}
