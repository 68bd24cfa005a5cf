package book

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
)

// PositionKey identifies one net position.
type PositionKey struct {
	Symbol         string             `json:"symbol"`
	ExchangeID     string             `json:"exchange_id"`
	InstrumentType msg.InstrumentType `json:"instrument_type"`
	Direction      msg.Direction      `json:"direction"`
}

func keyOf(p msg.Position) PositionKey {
	return PositionKey{p.Symbol, p.ExchangeID, p.InstrumentType, p.Direction}
}

type fillSum struct {
	quote  decimal.Decimal
	volume decimal.Decimal
}

// PositionBook keeps positions, active orders and assets of one location.
// Positions reported by the account overwrite what was derived from fills.
type PositionBook struct {
	loc       *location.Location
	positions map[PositionKey]msg.Position
	orders    map[uint64]msg.Order
	fills     map[uint64]fillSum
	assets    map[string]msg.Asset
	lastGen   int64
}

// NewPositionBook creates an empty book for loc.
func NewPositionBook(loc *location.Location) *PositionBook {
	return &PositionBook{
		loc:       loc,
		positions: make(map[PositionKey]msg.Position),
		orders:    make(map[uint64]msg.Order),
		fills:     make(map[uint64]fillSum),
		assets:    make(map[string]msg.Asset),
	}
}

func (b *PositionBook) Location() *location.Location { return b.loc }

// LastGenTime is the gen time of the newest event applied.
func (b *PositionBook) LastGenTime() int64 { return b.lastGen }

func (b *PositionBook) observe(e bus.Event) {
	if e.GenTime > b.lastGen {
		b.lastGen = e.GenTime
	}
}

// OnDepth marks positions of the quoted instrument to the mid price.
func (b *PositionBook) OnDepth(e bus.Event, d msg.Depth) {
	bid, ask := d.BidPrice[0], d.AskPrice[0]
	if bid <= 0 || ask <= 0 {
		return
	}
	mid := (bid + ask) / 2
	for key, p := range b.positions {
		if key.Symbol != d.Symbol || key.ExchangeID != d.ExchangeID || key.InstrumentType != d.InstrumentType {
			continue
		}
		p.LastPrice = mid
		p.UnrealizedPnl = unrealized(p)
		b.positions[key] = p
	}
	b.observe(e)
}

func (b *PositionBook) OnPosition(e bus.Event, p msg.Position) {
	b.positions[keyOf(p)] = p
	b.observe(e)
}

// OnMyTrade accumulates the fill on its order and moves the net long
// position of the instrument: buys add volume and sells take it away.
func (b *PositionBook) OnMyTrade(e bus.Event, t msg.MyTrade) {
	sum := b.fills[t.OrderID]
	price, volume := decimal.NewFromFloat(t.Price), decimal.NewFromFloat(t.Volume)
	sum.quote = sum.quote.Add(price.Mul(volume))
	sum.volume = sum.volume.Add(volume)
	b.fills[t.OrderID] = sum

	key := PositionKey{t.Symbol, t.ExchangeID, t.InstrumentType, msg.DirectionLong}
	p, ok := b.positions[key]
	if !ok {
		p = msg.Position{
			StrategyID:     t.StrategyID,
			Symbol:         t.Symbol,
			InstrumentType: t.InstrumentType,
			ExchangeID:     t.ExchangeID,
			HolderUID:      b.loc.UID,
			SourceID:       t.SourceID,
			AccountID:      t.AccountID,
			Direction:      msg.DirectionLong,
		}
		if b.loc.Category == location.CategoryTD {
			p.LedgerCategory = msg.LedgerAccount
		} else {
			p.LedgerCategory = msg.LedgerStrategy
		}
	}
	delta := t.Volume
	if t.Side == msg.SideSell {
		delta = -delta
	}
	applyFill(&p, t.Price, delta)
	p.LastPrice = t.Price
	p.UnrealizedPnl = unrealized(p)
	p.UpdateTime = t.TradeTime
	b.positions[key] = p
	b.observe(e)
}

func applyFill(p *msg.Position, price, delta float64) {
	switch {
	case p.Volume == 0 || (p.Volume > 0) == (delta > 0):
		total := math.Abs(p.Volume) + math.Abs(delta)
		p.AvgOpenPrice = (p.AvgOpenPrice*math.Abs(p.Volume) + price*math.Abs(delta)) / total
	default:
		closed := math.Min(math.Abs(p.Volume), math.Abs(delta))
		sign := 1.0
		if p.Volume < 0 {
			sign = -1
		}
		p.RealizedPnl += (price - p.AvgOpenPrice) * closed * sign
		if math.Abs(delta) > math.Abs(p.Volume) {
			p.AvgOpenPrice = price
		}
	}
	p.Volume += delta
	if p.Volume == 0 {
		p.AvgOpenPrice = 0
	}
}

func unrealized(p msg.Position) float64 {
	if p.Volume == 0 || p.LastPrice == 0 {
		return 0
	}
	return (p.LastPrice - p.AvgOpenPrice) * p.Volume
}

// OnOrder keeps active orders. A final status drops the order together with
// its fill sums.
func (b *PositionBook) OnOrder(e bus.Event, o msg.Order) {
	b.observe(e)
	if o.Status.IsFinal() {
		delete(b.orders, o.OrderID)
		delete(b.fills, o.OrderID)
		return
	}
	if o.AvgPrice == 0 {
		if avg, ok := b.AvgFillPrice(o.OrderID); ok {
			o.AvgPrice = avg
		}
	}
	b.orders[o.OrderID] = o
}

func (b *PositionBook) OnAsset(e bus.Event, a msg.Asset) {
	b.assets[a.Coin] = a
	b.observe(e)
}

// AvgFillPrice is cumulative quote over cumulative volume of the fills seen
// for order id.
func (b *PositionBook) AvgFillPrice(id uint64) (float64, bool) {
	sum, ok := b.fills[id]
	if !ok || sum.volume.IsZero() {
		return 0, false
	}
	return sum.quote.Div(sum.volume).InexactFloat64(), true
}

func (b *PositionBook) Position(key PositionKey) (msg.Position, bool) {
	p, ok := b.positions[key]
	return p, ok
}

// LongVolume is the net volume of the long position of an instrument.
func (b *PositionBook) LongVolume(symbol, exchange string, instType msg.InstrumentType) float64 {
	return b.positions[PositionKey{symbol, exchange, instType, msg.DirectionLong}].Volume
}

func (b *PositionBook) Order(id uint64) (msg.Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

func (b *PositionBook) Asset(coin string) (msg.Asset, bool) {
	a, ok := b.assets[coin]
	return a, ok
}

func (b *PositionBook) Positions() int { return len(b.positions) }
func (b *PositionBook) Orders() int    { return len(b.orders) }
